package presence

import (
	"testing"

	"cmc-connect/internal/models"
)

type fakeClient struct {
	events []models.ServerEvent
}

func (f *fakeClient) TrySend(ev models.ServerEvent) bool {
	f.events = append(f.events, ev)
	return true
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	c := &fakeClient{}

	r.Register(7, c)
	if got := r.Lookup(7); got != c {
		t.Fatalf("expected registered client back")
	}
	if got := r.Lookup(8); got != nil {
		t.Fatalf("expected nil for unknown user")
	}
}

func TestRegisterSameConnectionTwice(t *testing.T) {
	r := NewRegistry()
	c := &fakeClient{}

	r.Register(7, c)
	r.Register(7, c)
	if got := len(r.Online()); got != 1 {
		t.Fatalf("expected one online user, got %d", got)
	}
	if _, _, found := r.Unregister(c); !found {
		t.Fatalf("expected to find the connection")
	}
	if got := r.Lookup(7); got != nil {
		t.Fatalf("expected user offline after single unregister")
	}
}

func TestRegisterReportsFirstConnection(t *testing.T) {
	r := NewRegistry()
	first := &fakeClient{}
	second := &fakeClient{}

	if !r.Register(7, first) {
		t.Fatalf("expected the first connection to be reported as first")
	}
	if r.Register(7, second) {
		t.Fatalf("second connection must not be reported as first")
	}
	if r.Register(7, first) {
		t.Fatalf("re-registering the same connection must not be reported as first")
	}

	r.Unregister(first)
	r.Unregister(second)
	if !r.Register(7, first) {
		t.Fatalf("expected first again after the user went fully offline")
	}
}

func TestLastRegisteredWins(t *testing.T) {
	r := NewRegistry()
	first := &fakeClient{}
	second := &fakeClient{}

	r.Register(7, first)
	r.Register(7, second)
	if got := r.Lookup(7); got != second {
		t.Fatalf("expected the most recently registered connection")
	}
}

func TestUnregisterReportsLastConnection(t *testing.T) {
	r := NewRegistry()
	first := &fakeClient{}
	second := &fakeClient{}
	r.Register(7, first)
	r.Register(7, second)

	userID, wasLast, found := r.Unregister(first)
	if !found || userID != 7 {
		t.Fatalf("expected to remove user 7's connection, got %d found=%v", userID, found)
	}
	if wasLast {
		t.Fatalf("user still has another connection")
	}

	_, wasLast, _ = r.Unregister(second)
	if !wasLast {
		t.Fatalf("expected last connection to be reported")
	}
}

func TestUnregisterUnknownConnection(t *testing.T) {
	r := NewRegistry()
	if _, _, found := r.Unregister(&fakeClient{}); found {
		t.Fatalf("expected unknown connection to be a no-op")
	}
}

func TestOnlineIsDistinct(t *testing.T) {
	r := NewRegistry()
	r.Register(1, &fakeClient{})
	r.Register(1, &fakeClient{})
	r.Register(2, &fakeClient{})

	if got := len(r.Online()); got != 2 {
		t.Fatalf("expected 2 distinct users online, got %d", got)
	}
	if got := len(r.Clients()); got != 3 {
		t.Fatalf("expected 3 connection handles, got %d", got)
	}
}
