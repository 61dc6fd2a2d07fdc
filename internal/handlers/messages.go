package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/peerchat-io/peerchat/internal/api/middleware"
	"github.com/peerchat-io/peerchat/internal/models"
)

const maxContentLength = 8192

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	Kind       string `json:"type"`
	MediaURL   string `json:"mediaUrl,omitempty"`
}

// SendMessage persists a message and pushes it to the receiver if connected.
// The response does not reveal whether the receiver got it live or queued.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	receiverID, err := uuid.Parse(req.ReceiverID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid receiver ID format")
		return
	}
	if req.Content == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(req.Content) > maxContentLength {
		h.Error(w, http.StatusUnprocessableEntity, "content too long")
		return
	}
	switch req.Kind {
	case "", models.KindText, models.KindImage, models.KindVideo, models.KindFile:
	default:
		h.Error(w, http.StatusBadRequest, "invalid message type")
		return
	}

	receiver, err := h.db.GetUserByID(r.Context(), receiverID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if receiver == nil {
		h.Error(w, http.StatusNotFound, "recipient not found")
		return
	}

	msg := &models.Message{
		SenderID:   user.ID.String(),
		ReceiverID: receiver.ID.String(),
		Content:    req.Content,
		Kind:       req.Kind,
		MediaURL:   req.MediaURL,
	}

	msg, err = h.delivery.Send(r.Context(), msg)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "could not send message")
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}

// PendingMessages drains the caller's queued messages. The pollable variant
// of the drain that runs automatically on websocket connect.
func (h *Handler) PendingMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	msgs, err := h.delivery.DrainPending(r.Context(), user.ID.String())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "could not fetch pending messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	h.JSON(w, http.StatusOK, msgs)
}

// Conversation returns the message history with one friend.
func (h *Handler) Conversation(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	friendID, err := uuid.Parse(chi.URLParam(r, "friendId"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid friend ID format")
		return
	}

	msgs, err := h.db.Conversation(r.Context(), user.ID.String(), friendID.String(), 100)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "could not fetch messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	h.JSON(w, http.StatusOK, msgs)
}
