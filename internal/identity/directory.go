package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/c-pro/geche"

	"cmc-connect/internal/repositories"
)

// Profile is the slice of a user the chat layer renders.
type Profile struct {
	ID          int    `json:"id"`
	DisplayName string `json:"display_name"`
	Photo       string `json:"photo,omitempty"`
}

const cacheTTL = 5 * time.Minute

// Directory resolves user ids to display profiles with a small TTL cache in
// front of the users table. A failed lookup degrades to a placeholder so
// message delivery is never blocked on identity.
type Directory struct {
	users repositories.UserRepository
	cache geche.Geche[int, Profile]
}

// NewDirectory constructs a Directory. ctx bounds the cache janitor.
func NewDirectory(ctx context.Context, users repositories.UserRepository) *Directory {
	return &Directory{
		users: users,
		cache: geche.NewMapTTLCache[int, Profile](ctx, cacheTTL, time.Minute),
	}
}

// Lookup returns the profile for a user id, or a placeholder when the user
// cannot be resolved.
func (d *Directory) Lookup(ctx context.Context, userID int) Profile {
	if p, err := d.cache.Get(userID); err == nil {
		return p
	}

	user, err := d.users.Get(ctx, userID)
	if err != nil {
		slog.Warn("identity lookup failed", "user_id", userID, "error", err)
		return Profile{ID: userID, DisplayName: "Unknown user"}
	}

	p := Profile{ID: user.ID, DisplayName: user.DisplayName(), Photo: user.Photo}
	d.cache.Set(userID, p)
	return p
}
