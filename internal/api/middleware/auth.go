package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/peerchat-io/peerchat/internal/models"
	"github.com/peerchat-io/peerchat/internal/store"
)

type contextKey string

const UserContextKey contextKey = "user"

// IdentityHeader carries the caller's user ID. Credential verification
// happened at login; this layer only resolves the identity it is handed.
const IdentityHeader = "User-Id"

// Identity resolves the User-Id header to a stored user and places it in the
// request context. Requests without a valid identity are rejected.
func Identity(db store.DataStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idStr := r.Header.Get(IdentityHeader)
			if idStr == "" {
				jsonError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			id, err := uuid.Parse(idStr)
			if err != nil {
				jsonError(w, http.StatusUnauthorized, "invalid user ID format")
				return
			}

			user, err := db.GetUserByID(r.Context(), id)
			if err != nil {
				jsonError(w, http.StatusInternalServerError, "database error")
				return
			}
			if user == nil {
				jsonError(w, http.StatusUnauthorized, "unknown user")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects requests whose context user is not an admin. Must run
// after Identity.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUserFromContext(r.Context())
		if user == nil {
			jsonError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !user.IsAdmin {
			jsonError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserFromContext retrieves the authenticated user from the request context.
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
