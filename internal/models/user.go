package models

import "time"

// Roles understood by the application.
const (
	RoleAdmin      = "admin"
	RoleAmbassador = "ambassador"
)

// User is the minimal identity view the chat core needs. Ownership of the
// record sits with the user-management subsystem; chat only reads it.
type User struct {
	ID        int       `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	Photo     string    `db:"photo" json:"photo,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DisplayName is the name rendered next to messages.
func (u User) DisplayName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// PushSubscription is a stored web-push subscription for one user.
type PushSubscription struct {
	UserID    int       `db:"user_id" json:"user_id"`
	Endpoint  string    `db:"endpoint" json:"endpoint"`
	P256dh    string    `db:"p256dh" json:"p256dh"`
	Auth      string    `db:"auth" json:"auth"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
