package handlers

import (
	"net/http"

	"github.com/peerchat-io/peerchat/internal/models"
)

// AdminUsers returns all registered users without credential fields.
func (h *Handler) AdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.ListUsers(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "could not fetch users")
		return
	}

	out := make([]models.PublicUser, 0, len(users))
	for i := range users {
		out = append(out, users[i].Public())
	}

	h.JSON(w, http.StatusOK, out)
}

// AdminMessages returns recent messages across all users.
func (h *Handler) AdminMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.db.ListMessages(r.Context(), 200)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "could not fetch messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	h.JSON(w, http.StatusOK, msgs)
}
