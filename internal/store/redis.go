package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/chatline/internal/crypto"
	"github.com/eldtechnologies/chatline/internal/metrics"
	"github.com/eldtechnologies/chatline/internal/models"
)

const (
	messagesKey   = "chat:messages"
	messageIDsKey = "chat:message:ids"
)

// RedisStore handles Redis operations for the message log.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Client returns the underlying client, shared with the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func observeLatency(start time.Time) {
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
}

// Append stores a message in the log sorted set, scored by creation time.
func (s *RedisStore) Append(ctx context.Context, msg *models.StoredMessage) error {
	defer observeLatency(time.Now())

	if msg.MessageID == "" {
		msg.MessageID = crypto.NewMessageID()
	}
	if msg.CreatedAt == "" {
		msg.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	added, err := s.client.SAdd(ctx, messageIDsKey, msg.MessageID).Result()
	if err != nil {
		return err
	}
	if added == 0 {
		return ErrDuplicateMessage
	}

	err = s.client.ZAdd(ctx, messagesKey, redis.Z{
		Score:  float64(msg.CreatedAtMillis()),
		Member: string(data),
	}).Err()
	if err != nil {
		s.client.SRem(ctx, messageIDsKey, msg.MessageID)
		return err
	}
	return nil
}

// List returns the whole log, oldest first.
func (s *RedisStore) List(ctx context.Context) ([]models.StoredMessage, error) {
	defer observeLatency(time.Now())

	results, err := s.client.ZRange(ctx, messagesKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.StoredMessage, 0, len(results))
	for _, data := range results {
		var msg models.StoredMessage
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Count returns the number of stored messages.
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	return s.client.ZCard(ctx, messagesKey).Result()
}
