package account

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// newTestTokenStore requires Redis on localhost:6379 and uses DB 15 to avoid
// clobbering real data. Tests are skipped if Redis is unavailable.
func newTestTokenStore(t *testing.T) (*TokenStore, context.Context) {
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
	return NewTokenStore(client), ctx
}

func TestTokenIssueAndResolve(t *testing.T) {
	store, ctx := newTestTokenStore(t)
	user := &User{ID: 42, Username: "alice"}

	token, err := store.Issue(ctx, user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	userID, username, err := store.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if userID != "42" || username != "alice" {
		t.Errorf("Resolve = (%q, %q), want (42, alice)", userID, username)
	}
}

func TestTokenResolveUnknown(t *testing.T) {
	store, ctx := newTestTokenStore(t)

	if _, _, err := store.Resolve(ctx, "no-such-token"); err != ErrTokenNotFound {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestTokenRevoke(t *testing.T) {
	store, ctx := newTestTokenStore(t)

	token, err := store.Issue(ctx, &User{ID: 7, Username: "bob"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := store.Revoke(ctx, token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, _, err := store.Resolve(ctx, token); err != ErrTokenNotFound {
		t.Errorf("expected ErrTokenNotFound after revoke, got %v", err)
	}
}

func TestFormatUserID(t *testing.T) {
	if got := FormatUserID(42); got != "42" {
		t.Errorf("FormatUserID(42) = %q, want 42", got)
	}
}
