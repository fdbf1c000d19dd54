package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/eldtechnologies/chatline/internal/api/middleware"
	"github.com/eldtechnologies/chatline/internal/metrics"
	"github.com/eldtechnologies/chatline/internal/models"
	"github.com/eldtechnologies/chatline/internal/store"
)

// MessagesResponse is the history response.
type MessagesResponse struct {
	Messages []models.StoredMessage `json:"messages"`
	Count    int                    `json:"count"`
}

// PostMessageRequest is the request body for posting a message.
type PostMessageRequest struct {
	MessageID        string `json:"messageId"`
	SenderID         string `json:"senderId"`
	Content          string `json:"content"`
	CreatedAt        string `json:"createdAt"`
	ThreadID         string `json:"threadId"`
	ReplyToMessageID string `json:"replyToMessageId"`
}

// ValidationError lists every problem with a rejected request.
type ValidationError struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}

// LiveFrame is what the hub pushes to websocket clients.
type LiveFrame struct {
	Message models.StoredMessage `json:"message"`
}

// ListMessages returns the whole chat history, oldest first.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.messages.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list messages")
		h.Error(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []models.StoredMessage{}
	}
	h.JSON(w, http.StatusOK, MessagesResponse{Messages: msgs, Count: len(msgs)})
}

// PostMessage stores a message from the authenticated user and
// broadcasts it to every live client.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var problems []string
	senderID := strings.TrimSpace(req.SenderID)
	content := sanitizeContent(req.Content)
	if senderID == "" {
		problems = append(problems, "senderId is required and must be a non-empty string")
	} else if senderID != claims.Subject {
		problems = append(problems, "senderId must match the authenticated user")
	}
	if content == "" {
		problems = append(problems, "content is required and must be a non-empty string")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		problems = append(problems, "content must be 5000 characters or fewer")
	}
	if len(problems) > 0 {
		h.JSON(w, http.StatusBadRequest, ValidationError{Error: "validation failed", Details: problems})
		return
	}

	msg := models.StoredMessage{
		MessageID:        strings.TrimSpace(req.MessageID),
		SenderID:         claims.Subject,
		Content:          content,
		ThreadID:         strings.TrimSpace(req.ThreadID),
		ReplyToMessageID: strings.TrimSpace(req.ReplyToMessageID),
	}
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(req.CreatedAt)); err == nil {
		msg.CreatedAt = t.UTC().Format(time.RFC3339Nano)
	}

	if err := h.messages.Append(r.Context(), &msg); err != nil {
		if errors.Is(err, store.ErrDuplicateMessage) {
			h.JSON(w, http.StatusConflict, map[string]string{"error": "message already exists", "messageId": msg.MessageID})
			return
		}
		h.logger.Error().Err(err).Msg("append message")
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}
	metrics.MessagesPosted.Inc()

	if err := h.hub.Broadcast(LiveFrame{Message: msg}); err != nil {
		h.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("broadcast message")
	}

	h.JSON(w, http.StatusCreated, LiveFrame{Message: msg})
}
