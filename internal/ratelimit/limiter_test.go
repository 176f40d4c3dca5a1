package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestLimiter requires Redis on localhost:6379 and uses DB 15 to avoid
// clobbering real data. Tests are skipped if Redis is unavailable.
func newTestLimiter(t *testing.T) (*Limiter, context.Context) {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: Redis not available: %v", err)
	}
	client.FlushDB(ctx)

	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})
	return NewLimiter(client), ctx
}

func TestAllowWithinLimit(t *testing.T) {
	limiter, ctx := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 3, Window: time.Minute}

	for i := 0; i < rule.Limit; i++ {
		allowed, err := limiter.Allow(ctx, "conn-1", rule)
		if err != nil {
			t.Fatalf("Allow #%d: %v", i+1, err)
		}
		if !allowed {
			t.Fatalf("request %d of %d should be allowed", i+1, rule.Limit)
		}
	}
}

func TestAllowBlocksOverLimit(t *testing.T) {
	limiter, ctx := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 2, Window: time.Minute}

	for i := 0; i < rule.Limit; i++ {
		if _, err := limiter.Allow(ctx, "conn-1", rule); err != nil {
			t.Fatalf("Allow #%d: %v", i+1, err)
		}
	}

	allowed, err := limiter.Allow(ctx, "conn-1", rule)
	if err != nil {
		t.Fatalf("Allow over limit: %v", err)
	}
	if allowed {
		t.Error("expected request over the limit to be blocked")
	}
}

func TestAllowIsPerIdentifier(t *testing.T) {
	limiter, ctx := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 1, Window: time.Minute}

	if _, err := limiter.Allow(ctx, "conn-1", rule); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed, _ := limiter.Allow(ctx, "conn-1", rule); allowed {
		t.Error("conn-1 should be over its limit")
	}
	if allowed, _ := limiter.Allow(ctx, "conn-2", rule); !allowed {
		t.Error("conn-2 has its own counter and should be allowed")
	}
}

func TestRemaining(t *testing.T) {
	limiter, ctx := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 5, Window: time.Minute}

	remaining, err := limiter.Remaining(ctx, "conn-1", rule)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if remaining != 5 {
		t.Errorf("expected full limit for unused identifier, got %d", remaining)
	}

	limiter.Allow(ctx, "conn-1", rule)
	limiter.Allow(ctx, "conn-1", rule)

	remaining, err = limiter.Remaining(ctx, "conn-1", rule)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if remaining != 3 {
		t.Errorf("expected 3 remaining after 2 requests, got %d", remaining)
	}
}
