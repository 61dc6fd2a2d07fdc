package handlers

import (
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/peerchat-io/peerchat/internal/api/middleware"
	"github.com/peerchat-io/peerchat/internal/models"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles account creation.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !isValidEmail(req.Email) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}
	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Password) < 6 {
		h.Error(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	existing, err := h.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if existing != nil {
		h.Error(w, http.StatusBadRequest, "user already exists")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "could not register user")
		return
	}

	user, err := h.db.CreateUser(r.Context(), req.Email, name, string(hash))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "could not register user")
		return
	}

	h.JSON(w, http.StatusCreated, user.Public())
}

// Login handles credential verification.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusBadRequest, "invalid credentials")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		h.Error(w, http.StatusBadRequest, "invalid credentials")
		return
	}

	if err := h.db.UpdateUserStatus(r.Context(), user.ID, models.StatusOnline); err != nil {
		h.Error(w, http.StatusInternalServerError, "could not login")
		return
	}
	user.Status = models.StatusOnline

	h.JSON(w, http.StatusOK, user.Public())
}

// Me returns the authenticated user's own profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.JSON(w, http.StatusOK, user.Public())
}
