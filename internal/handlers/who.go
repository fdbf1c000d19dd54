package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// WhoResponse represents a public user profile.
type WhoResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
	JoinedAt string `json:"joinedAt"`
}

// Who handles user profile lookup by username.
func (h *Handler) Who(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if !usernameRegex.MatchString(username) {
		h.Error(w, http.StatusBadRequest, "invalid username")
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), username)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	h.JSON(w, http.StatusOK, WhoResponse{
		UserID:   user.ID.String(),
		Username: user.Username,
		Online:   h.hub.Connected(user.Username),
		JoinedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	})
}
