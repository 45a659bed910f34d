package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/kuwago-ai/datagate/internal/config"
	"github.com/kuwago-ai/datagate/internal/logger"
	"go.uber.org/zap"
)

// RedisStore counts windows in Redis so replicas share limits. INCR is
// atomic server-side, which gives the per-key critical section for free.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *logger.Logger
}

// NewRedisStore creates a Redis-backed fixed-window store.
func NewRedisStore(cfg config.RedisConfig, log *logger.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = cfg.MaxConnections
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Redis rate limit store initialized",
		zap.String("redis_url", maskRedisURL(cfg.URL)),
		zap.String("key_prefix", cfg.KeyPrefix),
	)

	return &RedisStore{
		client: client,
		prefix: cfg.KeyPrefix,
		logger: log,
	}, nil
}

// Hit increments the key's counter. The first hit in a window creates the
// key and sets its expiry to the window width; Redis then drops stale keys
// on its own, so no sweep routine is needed here.
func (s *RedisStore) Hit(ctx context.Context, key string, rule Rule) (Decision, error) {
	fullKey := fmt.Sprintf("%s:%s", s.prefix, key)

	count, err := s.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("incr failed: %w", err)
	}

	if count == 1 {
		if err := s.client.PExpire(ctx, fullKey, rule.Window).Err(); err != nil {
			s.logger.Error("Failed to set window expiry", zap.String("key", fullKey), zap.Error(err))
		}
	}

	resetIn, err := s.client.PTTL(ctx, fullKey).Result()
	if err != nil || resetIn < 0 {
		resetIn = rule.Window
	}

	remaining := rule.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Limited:   int(count) > rule.Max,
		Remaining: remaining,
		ResetIn:   resetIn,
	}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// maskRedisURL masks credentials in a Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
