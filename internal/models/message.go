package models

// Message delivery states.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Message kinds.
const (
	KindText  = "text"
	KindImage = "image"
	KindVideo = "video"
	KindFile  = "file"
)

// Message represents a direct message between two users.
type Message struct {
	ID         string `json:"id"`                 // ULID
	SenderID   string `json:"senderId"`           // User UUID
	ReceiverID string `json:"receiverId"`         // User UUID
	Content    string `json:"content"`
	Kind       string `json:"type"`               // text|image|video|file
	MediaURL   string `json:"mediaUrl,omitempty"`
	Status     string `json:"status"`             // sent|delivered|read
	Timestamp  int64  `json:"ts"`                 // Unix ms
}
