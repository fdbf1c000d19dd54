package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/eldtechnologies/chatline/internal/crypto"
	"github.com/eldtechnologies/chatline/internal/metrics"
	"github.com/eldtechnologies/chatline/internal/store"
)

// Credentials is the register and login request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterResponse represents the registration response.
type RegisterResponse struct {
	OK       bool   `json:"ok"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// LoginResponse represents the login response. wsUrl and websocketUrl
// carry the same value for clients that read either name.
type LoginResponse struct {
	OK           bool   `json:"ok"`
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	Token        string `json:"token"`
	ExpiresAt    int64  `json:"expiresAt"`
	WSURL        string `json:"wsUrl"`
	WebsocketURL string `json:"websocketUrl"`
}

// Register handles account registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req Credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if !usernameRegex.MatchString(username) {
		h.Error(w, http.StatusBadRequest, "username must be 1-32 letters, digits, '_', '.' or '-'")
		return
	}
	if len(req.Password) < minPasswordLength {
		h.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := h.users.CreateUser(r.Context(), username, hash)
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			h.Error(w, http.StatusConflict, "username already taken")
			return
		}
		h.logger.Error().Err(err).Msg("create user")
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	metrics.UsersRegistered.Inc()
	h.JSON(w, http.StatusCreated, RegisterResponse{
		OK:       true,
		UserID:   user.ID.String(),
		Username: user.Username,
	})
}

// Login verifies credentials and issues a bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req Credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		h.Error(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		h.logger.Error().Err(err).Msg("get user")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil || crypto.CheckPassword(user.PasswordHash, req.Password) != nil {
		metrics.LoginsTotal.WithLabelValues("denied").Inc()
		h.Error(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, claims, err := h.tokens.Issue(user.Username, user.ID.String(), h.tokenTTL)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	wsURL := h.wsURL(r)
	h.JSON(w, http.StatusOK, LoginResponse{
		OK:           true,
		UserID:       user.ID.String(),
		Username:     user.Username,
		Token:        token,
		ExpiresAt:    claims.ExpiresAt,
		WSURL:        wsURL,
		WebsocketURL: wsURL,
	})
}

// wsURL returns the configured public websocket URL, or one derived from
// the request host.
func (h *Handler) wsURL(r *http.Request) string {
	if h.publicWSURL != "" {
		return h.publicWSURL
	}
	scheme := "ws"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + "/ws"
}
