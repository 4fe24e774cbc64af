package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// SessionStore implements domain.SessionStore using Redis string keys with a
// TTL. Tokens are opaque UUIDs; expiry is enforced by Redis.
type SessionStore struct {
	rdb *redis.Client
}

// NewSessionStore creates a SessionStore backed by the given Client.
func NewSessionStore(c *Client) *SessionStore {
	return &SessionStore{rdb: c.Underlying()}
}

func sessionKey(token string) string {
	return "session:" + token
}

// Create issues a new bearer token for the user.
func (ss *SessionStore) Create(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	if err := ss.rdb.Set(ctx, sessionKey(token), userID, ttl).Err(); err != nil {
		return "", fmt.Errorf("redis: create session: %w", err)
	}
	return token, nil
}

// Lookup resolves the token to its user id.
func (ss *SessionStore) Lookup(ctx context.Context, token string) (string, error) {
	userID, err := ss.rdb.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrUnauthorized
	}
	if err != nil {
		return "", fmt.Errorf("redis: lookup session: %w", err)
	}
	return userID, nil
}

// Revoke drops the token. Revoking an unknown token is not an error.
func (ss *SessionStore) Revoke(ctx context.Context, token string) error {
	if err := ss.rdb.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("redis: revoke session: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SessionStore = (*SessionStore)(nil)
