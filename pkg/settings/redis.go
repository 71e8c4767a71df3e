package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/algomatic/statement-builder/pkg/statement"
)

// RedisStore keeps defaults as JSON strings under
// "{prefix}:settings:{scope}:{indicator}".
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore creates a Redis-backed store on an existing client.
func NewRedisStore(client *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) key(scope, name string) string {
	return s.prefix + ":settings:" + scope + ":" + name
}

func (s *RedisStore) Get(ctx context.Context, scope, name string) (statement.Params, error) {
	data, err := s.client.Get(ctx, s.key(scope, name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.key(scope, name), err)
	}

	var p statement.Params
	if err := json.Unmarshal(data, &p); err != nil {
		// A corrupt entry falls back to table defaults instead of blocking
		// the builder.
		s.logger.Warn("Discarding unreadable indicator defaults",
			"key", s.key(scope, name), "error", err,
		)
		return nil, nil
	}
	return statement.NormalizeParams(p), nil
}

func (s *RedisStore) Set(ctx context.Context, scope, name string, params statement.Params) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshalling %s defaults: %w", name, err)
	}
	if err := s.client.Set(ctx, s.key(scope, name), data, 0).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", s.key(scope, name), err)
	}
	s.logger.Debug("Saved indicator defaults", "scope", scope, "indicator", name)
	return nil
}
