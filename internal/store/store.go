package store

import (
	"context"
	"errors"

	"github.com/eldtechnologies/chatline/internal/models"
)

var (
	ErrUsernameTaken    = errors.New("username already taken")
	ErrDuplicateMessage = errors.New("message id already exists")
)

// UserStore defines persistent storage of accounts.
// Both PostgresStore and SQLiteStore implement this interface.
type UserStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// CreateUser returns ErrUsernameTaken when the username exists.
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	// GetUserByUsername returns nil, nil when no such user exists.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CountUsers(ctx context.Context) (int64, error)
}

// MessageLog is the shared chat history. RedisStore and MemoryLog
// implement it.
type MessageLog interface {
	// Append stores msg. It returns ErrDuplicateMessage when the
	// message id is already present.
	Append(ctx context.Context, msg *models.StoredMessage) error
	// List returns every message, oldest first.
	List(ctx context.Context) ([]models.StoredMessage, error)
	Count(ctx context.Context) (int64, error)
}
