package models

import (
	"time"

	"github.com/google/uuid"
)

// Presence status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// User represents a registered account.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Password  string    `json:"-"` // bcrypt hash, never serialized
	Status    string    `json:"status"` // "online" or "offline"
	IsAdmin   bool      `json:"is_admin,omitempty"`
	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`
}

// PublicUser is the projection of a user that other users may see.
type PublicUser struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

// Public strips credential and admin fields from a user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID.String(),
		Email:    u.Email,
		Name:     u.Name,
		Status:   u.Status,
		LastSeen: u.LastSeen,
	}
}
