// Package cache owns the shared Redis client. Sessions, the submission
// limiter and the location stream all use the same connection pool.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bustrack/internal/config"
)

const (
	clientName  = "bustrack"
	pingTimeout = 5 * time.Second
)

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(Options(cfg))

	if err := Ping(client)(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func Options(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: clientName,
	}
}

// Ping returns a bounded liveness probe, used at startup and by the
// health endpoint.
func Ping(client *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}
}
