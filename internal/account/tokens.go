package account

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// TokenPrefix is the Redis key prefix for bearer token hashes.
	TokenPrefix = "token:"

	// TokenTTL is how long an issued token stays valid without use.
	TokenTTL = 24 * time.Hour
)

// ErrTokenNotFound is returned when a presented token is unknown or expired.
var ErrTokenNotFound = errors.New("account: token not found")

// TokenStore issues and resolves bearer tokens in Redis. Tokens are opaque
// UUIDs; the hash behind each token carries the identity handed to the chat
// client, which it announces verbatim to the coordinator.
type TokenStore struct {
	client *redis.Client
}

// NewTokenStore creates a TokenStore on the given Redis client.
func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

// Issue creates a fresh token for the user with a 24h TTL.
func (t *TokenStore) Issue(ctx context.Context, user *User) (string, error) {
	token := uuid.New().String()
	key := TokenPrefix + token

	pipe := t.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"user_id":   user.ID,
		"username":  user.Username,
		"issued_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, key, TokenTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("account: store token: %w", err)
	}
	return token, nil
}

// Resolve returns the identity behind a token and refreshes its TTL.
// Unknown or expired tokens yield ErrTokenNotFound.
func (t *TokenStore) Resolve(ctx context.Context, token string) (userID, username string, err error) {
	key := TokenPrefix + token

	fields, err := t.client.HGetAll(ctx, key).Result()
	if err != nil {
		return "", "", fmt.Errorf("account: resolve token: %w", err)
	}
	if len(fields) == 0 {
		return "", "", ErrTokenNotFound
	}

	// Sliding expiry: active sessions stay alive.
	t.client.Expire(ctx, key, TokenTTL)

	return fields["user_id"], fields["username"], nil
}

// Revoke deletes a token. Idempotent.
func (t *TokenStore) Revoke(ctx context.Context, token string) error {
	return t.client.Del(ctx, TokenPrefix+token).Err()
}

// FormatUserID renders a numeric user id the way tokens and announcements
// carry it on the wire.
func FormatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}
