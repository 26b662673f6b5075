package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestRateLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewRateLimiter(rdb), mr
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	rl, _ := newTestRateLimiter(t)
	keyID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := rl.Allow(ctx, keyID, 5)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d: expected allowed, got rejected", i)
		}
	}
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	rl, _ := newTestRateLimiter(t)
	keyID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := rl.Allow(ctx, keyID, 3); err != nil {
			t.Fatalf("Allow: %v", err)
		}
	}

	res, err := rl.Allow(ctx, keyID, 3)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected request over limit to be rejected")
	}
	if res.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", res.RetryAfter)
	}
}

func TestRateLimiter_SlidesWindow(t *testing.T) {
	rl, mr := newTestRateLimiter(t)
	keyID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := rl.Allow(ctx, keyID, 2); err != nil {
			t.Fatalf("Allow: %v", err)
		}
	}

	res, err := rl.Allow(ctx, keyID, 2)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected third request to be rejected")
	}

	mr.FastForward(61 * time.Second)

	res, err = rl.Allow(ctx, keyID, 2)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected request to be allowed after window slides past")
	}
}

func TestRateLimiter_IndependentPerKey(t *testing.T) {
	rl, _ := newTestRateLimiter(t)
	ctx := context.Background()
	keyA, keyB := uuid.New(), uuid.New()

	for i := 0; i < 2; i++ {
		if _, err := rl.Allow(ctx, keyA, 2); err != nil {
			t.Fatalf("Allow: %v", err)
		}
	}

	res, err := rl.Allow(ctx, keyB, 2)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected a different api key to have its own budget")
	}
}
