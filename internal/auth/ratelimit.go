package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a per-API-key requests-per-minute budget using a
// Redis sorted-set sliding window: each api_key carries its own rpm_limit,
// and exceeding it returns 429 with a precise Retry-After.
type RateLimiter struct {
	redis  *redis.Client
	window time.Duration
}

// NewRateLimiter creates a sliding-window rate limiter over a 60s window.
func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	return &RateLimiter{redis: rdb, window: time.Minute}
}

// RateLimitResult holds the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Allow records one request against apiKeyID's budget and reports whether it
// fits within limit requests over the trailing window. Each request is a
// member of a Redis sorted set scored by its timestamp; members older than
// the window are trimmed before counting, so the window slides continuously
// instead of resetting on fixed boundaries.
func (rl *RateLimiter) Allow(ctx context.Context, apiKeyID uuid.UUID, limit int) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:apikey:%s", apiKeyID)
	now := time.Now()
	windowStart := now.Add(-rl.window)

	pipe := rl.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart.UnixNano()))
	count := pipe.ZCard(ctx, key)
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("checking rate limit: %w", err)
	}

	if int(count.Val()) >= limit {
		retryAfter := rl.window
		if scores := oldest.Val(); len(scores) > 0 {
			oldestTime := time.Unix(0, int64(scores[0].Score))
			retryAfter = rl.window - now.Sub(oldestTime)
			if retryAfter < 0 {
				retryAfter = 0
			}
		}
		return &RateLimitResult{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())
	addPipe := rl.redis.TxPipeline()
	addPipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	addPipe.Expire(ctx, key, rl.window)
	if _, err := addPipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("recording request: %w", err)
	}

	return &RateLimitResult{Allowed: true, Remaining: limit - int(count.Val()) - 1}, nil
}
