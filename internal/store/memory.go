package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/eldtechnologies/chatline/internal/crypto"
	"github.com/eldtechnologies/chatline/internal/models"
)

// MemoryLog is a process-local MessageLog used when no Redis is configured.
type MemoryLog struct {
	mu       sync.RWMutex
	ids      map[string]struct{}
	messages []models.StoredMessage
}

// NewMemoryLog creates an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{ids: make(map[string]struct{})}
}

// Append stores msg, keeping the log ordered by creation time.
func (l *MemoryLog) Append(ctx context.Context, msg *models.StoredMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = crypto.NewMessageID()
	}
	if msg.CreatedAt == "" {
		msg.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.ids[msg.MessageID]; ok {
		return ErrDuplicateMessage
	}
	l.ids[msg.MessageID] = struct{}{}

	// Insert after every message with the same or an earlier timestamp.
	at := msg.CreatedAtMillis()
	i := len(l.messages)
	for i > 0 && l.messages[i-1].CreatedAtMillis() > at {
		i--
	}
	l.messages = slices.Insert(l.messages, i, *msg)
	return nil
}

// List returns a copy of the log, oldest first.
func (l *MemoryLog) List(ctx context.Context) ([]models.StoredMessage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.messages), nil
}

// Count returns the number of stored messages.
func (l *MemoryLog) Count(ctx context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.messages)), nil
}
