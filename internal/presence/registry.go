// Package presence tracks which users currently hold a live realtime
// connection. State is process-local only: it is rebuilt from nothing on
// restart and clients re-register on reconnect.
package presence

import (
	"sync"

	"cmc-connect/internal/models"
)

// Client is the connection handle the registry hands out. The registry
// never writes itself; routing stays with the caller.
type Client interface {
	TrySend(ev models.ServerEvent) bool
}

type entry struct {
	userID int
	client Client
}

// Registry is the socket-to-user map. All operations are total: there are
// no error conditions, and no two connections ever contend over the same
// entry because each entry is owned by exactly one connection lifecycle.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an entry for the connection unless that exact connection is
// already present. Multiple simultaneous connections for one user are
// tolerated and not merged. It reports whether this is the user's first
// live connection, decided under the same lock as the insert so two
// simultaneous first connections cannot both claim it.
func (r *Registry) Register(userID int, c Client) (wasFirst bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wasFirst = true
	for _, e := range r.entries {
		if e.client == c {
			return false
		}
		if e.userID == userID {
			wasFirst = false
		}
	}
	r.entries = append(r.entries, entry{userID: userID, client: c})
	return wasFirst
}

// Unregister removes the entry for that specific connection; no-op if
// absent. It reports the owning user and whether this was the user's last
// live connection, so the caller can decide on an offline broadcast.
func (r *Registry) Unregister(c Client) (userID int, wasLast bool, found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.client == c {
			userID = e.userID
			found = true
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept

	if !found {
		return 0, false, false
	}
	wasLast = true
	for _, e := range r.entries {
		if e.userID == userID {
			wasLast = false
			break
		}
	}
	return userID, wasLast, true
}

// Lookup returns a live connection for the user, or nil if the user is
// offline. With several simultaneous connections the most recently
// registered one wins; delivery to multiple devices is best-effort only.
func (r *Registry) Lookup(userID int) Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].userID == userID {
			return r.entries[i].client
		}
	}
	return nil
}

// Online returns the distinct ids of currently connected users.
func (r *Registry) Online() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int]struct{}, len(r.entries))
	ids := make([]int, 0, len(r.entries))
	for _, e := range r.entries {
		if _, ok := seen[e.userID]; ok {
			continue
		}
		seen[e.userID] = struct{}{}
		ids = append(ids, e.userID)
	}
	return ids
}

// Clients returns every live connection handle, for whole-process
// broadcasts such as presence deltas.
func (r *Registry) Clients() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]Client, len(r.entries))
	for i, e := range r.entries {
		clients[i] = e.client
	}
	return clients
}
