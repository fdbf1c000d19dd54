package models

import "time"

// UnknownAuthor is used when a payload carries no usable author.
const UnknownAuthor = "unknown"

// Message is the canonical chat message handed to renderers.
type Message struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Body   string `json:"body"`
	SentAt int64  `json:"sentAt"` // Unix ms
}

// Time returns SentAt as a time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.SentAt)
}

// StoredMessage is the server-side record as it travels over the wire.
type StoredMessage struct {
	MessageID        string `json:"messageId"`
	SenderID         string `json:"senderId"`
	Content          string `json:"content"`
	CreatedAt        string `json:"createdAt"` // RFC3339
	ThreadID         string `json:"threadId,omitempty"`
	ReplyToMessageID string `json:"replyToMessageId,omitempty"`
}

// CreatedAtMillis parses CreatedAt, returning 0 when it is not RFC3339.
func (m StoredMessage) CreatedAtMillis() int64 {
	t, err := time.Parse(time.RFC3339Nano, m.CreatedAt)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
