package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"assent/internal/ledger/models"
	dErrors "assent/pkg/domain-errors"
)

// RedisStore persists ledger state as one JSON document per user. Record
// ordering survives round-trips because records serialize as an ordered
// array, never a set.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// RedisOption configures the RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the default key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRedisLogger sets a logger for corrupt-payload warnings.
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

// NewRedis constructs a redis-backed repository from an existing client.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "assent:ledger"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(userID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, userID)
}

func (s *RedisStore) Load(ctx context.Context, userID string) (*models.State, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load ledger state")
	}

	var state models.State
	if err := json.Unmarshal(raw, &state); err != nil {
		// Corrupt persisted payload: clear the key and treat as no prior
		// state so the ledger resets to defaults instead of failing.
		if s.logger != nil {
			s.logger.Warn("clearing corrupt ledger state",
				"user_id", userID,
				"error", err,
			)
		}
		if delErr := s.client.Del(ctx, s.key(userID)).Err(); delErr != nil && s.logger != nil {
			s.logger.Warn("failed to clear corrupt ledger state", "user_id", userID, "error", delErr)
		}
		return nil, ErrNotFound
	}
	state.Normalize()
	return &state, nil
}

func (s *RedisStore) Save(ctx context.Context, userID string, state *models.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to encode ledger state")
	}
	if err := s.client.Set(ctx, s.key(userID), raw, 0).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to save ledger state")
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to clear ledger state")
	}
	return nil
}
