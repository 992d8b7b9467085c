package models

import "time"

// EventType tags every frame exchanged over a chat websocket, in both
// directions. Keeping the whole protocol in one envelope makes the wire
// surface auditable in one place.
type EventType string

const (
	// Client intents.
	EventSend     EventType = "send"
	EventEdit     EventType = "edit"
	EventDelete   EventType = "delete"
	EventMarkRead EventType = "mark_read"

	// Server pushes.
	EventMessage        EventType = "message"
	EventMessageEdited  EventType = "message_edited"
	EventMessageDeleted EventType = "message_deleted"
	EventMessageRead    EventType = "message_read"
	EventPresence       EventType = "presence"
	EventPresenceState  EventType = "presence_state"
)

// ClientEvent is a chat intent read off a client connection. The message
// referenced by a send/edit/delete intent must already be persisted through
// the REST layer; the realtime layer only forwards.
type ClientEvent struct {
	Type           EventType `json:"type"`
	ConversationID int       `json:"conversation_id,omitempty"`
	MessageID      int       `json:"message_id,omitempty"`
	Text           string    `json:"text,omitempty"`
	Receivers      []int     `json:"receivers,omitempty"`
}

// ServerEvent is pushed to client connections.
type ServerEvent struct {
	Type           EventType `json:"type"`
	ConversationID int       `json:"conversation_id,omitempty"`
	MessageID      int       `json:"message_id,omitempty"`
	SenderID       int       `json:"sender_id,omitempty"`
	ReaderID       int       `json:"reader_id,omitempty"`
	Text           string    `json:"text,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`

	// Presence delta (type "presence") and snapshot (type "presence_state").
	UserID int   `json:"user_id,omitempty"`
	Online bool  `json:"online,omitempty"`
	Users  []int `json:"users,omitempty"`
}
