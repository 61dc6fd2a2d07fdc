package models

import (
	"time"

	"github.com/google/uuid"
)

// Friend request states.
const (
	FriendPending  = "pending"
	FriendAccepted = "accepted"
)

// FriendRequest represents a directed friendship edge from requester to target.
type FriendRequest struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`   // requester
	FriendID  uuid.UUID `json:"friend_id"` // target
	Status    string    `json:"status"`    // pending|accepted
	CreatedAt time.Time `json:"created_at"`
}

// FriendEntry is the unified shape returned by the friends listing: an
// accepted friend, an outgoing pending request, or an incoming pending one.
type FriendEntry struct {
	RequestID uuid.UUID  `json:"request_id"`
	User      PublicUser `json:"user"`
	Pending   bool       `json:"pending"`
	Incoming  bool       `json:"incoming"`
}
