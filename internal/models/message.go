package models

import "time"

// DeletedPlaceholder replaces the content of a message deleted for all
// members. Once applied the message is frozen against further edits.
const DeletedPlaceholder = "Message deleted"

// EditWindow is how long after creation the sender may still edit a message.
const EditWindow = 15 * time.Minute

// Message is a chat message. ReadBy grows monotonically; per-user
// delete-for-me markers live in a separate table and only shape queries.
type Message struct {
	ID             int       `db:"id" json:"id"`
	ConversationID int       `db:"conversation_id" json:"conversation_id"`
	SenderID       int       `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"`
	IsEdited       bool      `db:"is_edited" json:"is_edited"`
	DeletedForAll  bool      `db:"deleted_for_all" json:"deleted_for_all"`
	ReadBy         []int     `json:"read_by"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Editable reports whether the message may still be edited by userID at
// instant now: sender only, inside the edit window, never after a
// delete-for-all.
func (m Message) Editable(userID int, now time.Time) bool {
	if m.DeletedForAll || m.SenderID != userID {
		return false
	}
	return now.Sub(m.CreatedAt) <= EditWindow
}
