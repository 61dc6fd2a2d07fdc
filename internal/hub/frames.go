package hub

import (
	"encoding/json"

	"github.com/peerchat-io/peerchat/internal/models"
)

// Frame types exchanged over the websocket.
const (
	FrameAuth        = "auth"
	FrameAuthSuccess = "auth-success"
	FrameClients     = "clients"
	FrameNewMessage  = "new-message"
	FrameSignal      = "signal"
	FrameError       = "error"
)

// Signal kinds carried by signal frames. The payload itself is opaque.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "ice-candidate"
)

// ClientFrame is a frame received from a client.
type ClientFrame struct {
	Type       string          `json:"type"`
	UserID     string          `json:"userId,omitempty"`
	SignalType string          `json:"signalType,omitempty"`
	To         string          `json:"to,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// RosterEntry is one connected identity in a clients frame.
type RosterEntry struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// AuthSuccessFrame acknowledges a successful handshake.
type AuthSuccessFrame struct {
	Type string `json:"type"`
}

// RosterFrame carries the full presence roster. Clients replace their local
// roster wholesale; it is never a delta.
type RosterFrame struct {
	Type    string        `json:"type"`
	Clients []RosterEntry `json:"clients"`
}

// MessageFrame carries a chat message to its receiver.
type MessageFrame struct {
	Type    string          `json:"type"`
	Message *models.Message `json:"message"`
}

// SignalFrame carries a relayed WebRTC signal to its target.
type SignalFrame struct {
	Type       string          `json:"type"`
	SignalType string          `json:"signalType"`
	From       string          `json:"from"`
	Payload    json.RawMessage `json:"payload"`
}

// ErrorFrame reports a per-frame failure without closing the connection.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SignalEnvelope is a signal in flight between two identities. It exists
// only for the duration of one relay hop and is never persisted.
type SignalEnvelope struct {
	Kind    string
	From    string
	To      string
	Payload json.RawMessage
}

func errorFrame(msg string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Message: msg}
}
