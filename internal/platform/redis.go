package platform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions tunes the pool backing the rate limiter, dispatcher wake-up
// pub/sub, and any other Redis-backed component.
type RedisOptions struct {
	PoolSize    int
	MinIdleConn int
	DialTimeout time.Duration
}

// NewRedisClient creates a Redis client from the given URL, sized for the
// combined load of the rate limiter's sliding-window counters and the
// dispatcher's wake-up subscription.
func NewRedisClient(ctx context.Context, redisURL string, opts RedisOptions) (*redis.Client, error) {
	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	if opts.PoolSize > 0 {
		parsed.PoolSize = opts.PoolSize
	}
	if opts.MinIdleConn > 0 {
		parsed.MinIdleConns = opts.MinIdleConn
	}
	if opts.DialTimeout > 0 {
		parsed.DialTimeout = opts.DialTimeout
	}

	client := redis.NewClient(parsed)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	slog.Info("redis client created", "pool_size", parsed.PoolSize, "min_idle_conns", parsed.MinIdleConns)

	return client, nil
}
