package handlers

import (
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"
)

const (
	recentMessageCount = 5
	previewRunes       = 200
)

// MessagePreview is a shortened message for the stats endpoint.
type MessagePreview struct {
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalUsers     int64            `json:"totalUsers"`
	TotalMessages  int64            `json:"totalMessages"`
	ConnectedUsers int              `json:"connectedUsers"`
	LastActivity   string           `json:"lastActivity"`
	RecentMessages []MessagePreview `json:"recentMessages"`
}

// Stats returns aggregate counts and the latest few messages.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalUsers, err := h.users.CountUsers(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count users")
		return
	}

	totalMessages, err := h.messages.Count(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count messages")
		return
	}

	msgs, err := h.messages.List(ctx)
	if err != nil {
		// Non-fatal, continue with empty previews
		h.logger.Warn().Err(err).Msg("list messages for stats")
		msgs = nil
	}

	lastActivity := "no activity yet"
	if n := len(msgs); n > 0 {
		if t, err := time.Parse(time.RFC3339Nano, msgs[n-1].CreatedAt); err == nil {
			lastActivity = formatTimeAgo(t)
		}
	}

	start := max(len(msgs)-recentMessageCount, 0)
	recent := make([]MessagePreview, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		recent = append(recent, MessagePreview{
			MessageID: m.MessageID,
			SenderID:  m.SenderID,
			Content:   truncateRunes(m.Content, previewRunes),
			CreatedAt: m.CreatedAt,
		})
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalUsers:     totalUsers,
		TotalMessages:  totalMessages,
		ConnectedUsers: h.hub.Len(),
		LastActivity:   lastActivity,
		RecentMessages: recent,
	})
}

// truncateRunes shortens s to at most n runes, marking the cut with "...".
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	default:
		return plural(int(diff.Hours()/24), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
