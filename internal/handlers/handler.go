package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatline/internal/crypto"
	"github.com/eldtechnologies/chatline/internal/hub"
	"github.com/eldtechnologies/chatline/internal/store"
)

// usernameRegex allows 1-32 letters, digits, underscores, dots and dashes.
var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,32}$`)

const (
	minPasswordLength = 8
	maxContentLength  = 5000

	// maxSocketsPerIdentity caps concurrent websockets per user, enough
	// for a few tabs or devices.
	maxSocketsPerIdentity = 5
)

// Deps are the collaborators shared by all handlers.
type Deps struct {
	Users       store.UserStore
	Messages    store.MessageLog
	Redis       *store.RedisStore // optional, health only
	Hub         *hub.Hub
	Tokens      *crypto.TokenSigner
	TokenTTL    time.Duration
	PublicWSURL string
	Logger      zerolog.Logger
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	users       store.UserStore
	messages    store.MessageLog
	redis       *store.RedisStore
	hub         *hub.Hub
	tokens      *crypto.TokenSigner
	tokenTTL    time.Duration
	publicWSURL string
	logger      zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	if d.TokenTTL <= 0 {
		d.TokenTTL = 24 * time.Hour
	}
	return &Handler{
		users:       d.Users,
		messages:    d.Messages,
		redis:       d.Redis,
		hub:         d.Hub,
		tokens:      d.Tokens,
		tokenTTL:    d.TokenTTL,
		publicWSURL: d.PublicWSURL,
		logger:      d.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Tokens, not cookies, authenticate the socket.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeContent trims content and removes control characters other
// than tab and newline.
func sanitizeContent(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			return -1
		}
		if r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
