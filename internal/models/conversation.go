package models

import "time"

// Conversation links a fixed set of members, either a private pair or a
// named group. updated_at is bumped on every new message and drives the
// recency ordering of conversation lists.
type Conversation struct {
	ID        int       `db:"id" json:"id"`
	IsGroup   bool      `db:"is_group" json:"is_group"`
	Name      string    `db:"name" json:"name,omitempty"`
	AdminID   int       `db:"admin_id" json:"admin_id,omitempty"`
	Members   []int     `json:"members"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// OtherMembers returns the member set minus the given user.
func (c Conversation) OtherMembers(userID int) []int {
	others := make([]int, 0, len(c.Members))
	for _, m := range c.Members {
		if m != userID {
			others = append(others, m)
		}
	}
	return others
}

// HasMember reports whether the user belongs to the conversation.
func (c Conversation) HasMember(userID int) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}
