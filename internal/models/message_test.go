package models

import (
	"testing"
	"time"
)

func TestEditableWithinWindow(t *testing.T) {
	now := time.Now()
	msg := Message{SenderID: 1, CreatedAt: now.Add(-EditWindow + time.Minute)}

	if !msg.Editable(1, now) {
		t.Fatalf("expected message to be editable inside the window")
	}
}

func TestEditableAfterWindow(t *testing.T) {
	now := time.Now()
	msg := Message{SenderID: 1, CreatedAt: now.Add(-EditWindow - time.Second)}

	if msg.Editable(1, now) {
		t.Fatalf("expected message to be frozen after the window")
	}
}

func TestEditableOnlyBySender(t *testing.T) {
	now := time.Now()
	msg := Message{SenderID: 1, CreatedAt: now}

	if msg.Editable(2, now) {
		t.Fatalf("expected non-sender to be rejected")
	}
}

func TestEditableDeletedMessage(t *testing.T) {
	now := time.Now()
	msg := Message{SenderID: 1, CreatedAt: now, DeletedForAll: true}

	if msg.Editable(1, now) {
		t.Fatalf("expected deleted message to be frozen")
	}
}
