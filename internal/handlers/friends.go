package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/peerchat-io/peerchat/internal/api/middleware"
	"github.com/peerchat-io/peerchat/internal/models"
)

// FriendRequestBody represents the add-friend request body.
type FriendRequestBody struct {
	Email string `json:"email"`
}

// AcceptFriendBody represents the accept-friend request body.
type AcceptFriendBody struct {
	RequestID string `json:"requestId"`
}

// RequestFriend handles sending a friend request by email.
func (h *Handler) RequestFriend(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req FriendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !isValidEmail(req.Email) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}

	friend, err := h.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if friend == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}
	if friend.ID == user.ID {
		h.Error(w, http.StatusBadRequest, "cannot befriend yourself")
		return
	}

	existing, err := h.db.GetFriendRequest(r.Context(), user.ID, friend.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if existing != nil {
		h.Error(w, http.StatusBadRequest, "friend request already exists")
		return
	}

	request, err := h.db.CreateFriendRequest(r.Context(), user.ID, friend.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "could not send friend request")
		return
	}

	h.JSON(w, http.StatusCreated, request)
}

// AcceptFriend handles accepting an incoming friend request.
func (h *Handler) AcceptFriend(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req AcceptFriendBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	requestID, err := uuid.Parse(req.RequestID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request ID format")
		return
	}

	request, err := h.db.AcceptFriendRequest(r.Context(), requestID, user.ID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "could not accept friend request")
		return
	}

	h.JSON(w, http.StatusOK, request)
}

// ListFriends returns the caller's friends and pending requests.
func (h *Handler) ListFriends(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	entries, err := h.db.ListFriends(r.Context(), user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "could not fetch friends")
		return
	}
	if entries == nil {
		entries = []models.FriendEntry{} // never null in JSON
	}

	h.JSON(w, http.StatusOK, entries)
}
