package simulator

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// IdentityLookup maps a phone number to the identity shown to observers.
// Implementations return the number unchanged when no mapping exists.
type IdentityLookup interface {
	Lookup(ctx context.Context, phone string) string
}

// PassthroughLookup shows numbers as they are
type PassthroughLookup struct{}

func (PassthroughLookup) Lookup(_ context.Context, phone string) string {
	return phone
}

// StaticLookup resolves numbers from a fixed table, usually SIMULATOR_IDENTITIES
type StaticLookup map[string]string

func (s StaticLookup) Lookup(_ context.Context, phone string) string {
	if id, ok := s[phone]; ok && id != "" {
		return id
	}
	return phone
}

// RedisLookup resolves numbers from a Redis hash so the table can change
// without a restart.
type RedisLookup struct {
	client redis.Cmdable
	key    string
	logger *zap.Logger
}

func NewRedisLookup(client redis.Cmdable, key string, logger *zap.Logger) *RedisLookup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLookup{client: client, key: key, logger: logger}
}

func (l *RedisLookup) Lookup(ctx context.Context, phone string) string {
	id, err := l.client.HGet(ctx, l.key, phone).Result()
	if err == redis.Nil || (err == nil && id == "") {
		return phone
	}
	if err != nil {
		l.logger.Warn("identity lookup failed, showing raw number",
			zap.String("key", l.key),
			zap.Error(err),
		)
		return phone
	}
	return id
}

// Set stores a mapping; used by tooling and tests
func (l *RedisLookup) Set(ctx context.Context, phone, identity string) error {
	if err := l.client.HSet(ctx, l.key, phone, identity).Err(); err != nil {
		return fmt.Errorf("failed to store identity for %s: %w", phone, err)
	}
	return nil
}
