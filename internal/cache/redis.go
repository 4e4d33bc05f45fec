// Package cache provides an optional read-through cache for upstream
// responses. The pipeline works identically without it; a missing or
// unreachable Redis only costs repeat provider calls.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache is the read-through interface the upstream client consumes.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Redis is a Cache backed by a Redis instance.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects to Redis and verifies the connection. Callers are
// expected to continue without a cache when this fails.
func NewRedis(ctx context.Context, cfg Config) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("Redis cache connected")
	return &Redis{rdb: rdb}, nil
}

// Get fetches a cached payload. Errors are logged and treated as misses.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		return nil, false
	}
	return val, true
}

// Set stores a payload with a TTL. Errors are logged and ignored.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

// Close closes the underlying connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
