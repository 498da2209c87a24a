package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/pharmaerp/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient opens a client from config and pings it
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewIdempotencyStore returns a redis-backed store when a client is given.
// Without one it falls back to an in-memory store if allowed.
func NewIdempotencyStore(client redis.UniversalClient, cfg config.RedisConfig, logger *zap.Logger) (shared.IdempotencyStore, error) {
	if client != nil {
		logger.Info("using Redis idempotency store")
		return NewRedisIdempotencyStore(client, cfg.KeyPrefix), nil
	}
	if !cfg.AllowInMemoryFallback {
		return nil, fmt.Errorf("redis is required for cascade idempotency but is not configured")
	}
	logger.Warn("Redis unavailable, falling back to in-memory idempotency store; " +
		"cascade tasks may run twice across instances")
	return NewInMemoryIdempotencyStore(5 * time.Minute), nil
}
