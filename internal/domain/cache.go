package domain

import (
	"context"
	"time"
)

// DiscoveredEndpoints is the resolved endpoint tuple for one account's
// brokerage session. Probing is expensive, so the tuple is cached and
// subsequent connects skip discovery.
type DiscoveredEndpoints struct {
	BaseURL      string    `json:"base_url"`
	AuthEndpoint string    `json:"auth_endpoint"`
	AuthShape    string    `json:"auth_shape"` // "email", "apikey", or "account"
	AccountPath  string    `json:"account_path"`
	TradesPath   string    `json:"trades_path"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// DiscoveryCache stores resolved endpoint tuples keyed by account id.
type DiscoveryCache interface {
	Get(ctx context.Context, accountID string) (DiscoveredEndpoints, bool, error)
	Put(ctx context.Context, accountID string, eps DiscoveredEndpoints) error
	Invalidate(ctx context.Context, accountID string) error
}

// LockManager provides distributed locks so only one engine replica drives a
// given copier.
type LockManager interface {
	// Acquire returns ErrLockHeld when another holder owns the key. On
	// success the returned function releases the lock and is safe to call
	// more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter applies a sliding request budget per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SessionStore maps opaque bearer tokens to user ids.
type SessionStore interface {
	// Create issues a new token for the user, valid for ttl.
	Create(ctx context.Context, userID string, ttl time.Duration) (string, error)
	// Lookup returns ErrUnauthorized for an unknown or expired token.
	Lookup(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}
