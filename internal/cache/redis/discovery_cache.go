package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// discoveryTTL bounds how long a resolved endpoint tuple is trusted before a
// reconnect probes again.
const discoveryTTL = 24 * time.Hour

// DiscoveryCache implements domain.DiscoveryCache using Redis with JSON
// values. A stale or undecodable entry reads as a miss.
type DiscoveryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDiscoveryCache creates a DiscoveryCache backed by the given Client. A
// non-positive ttl falls back to the 24 hour default.
func NewDiscoveryCache(c *Client, ttl time.Duration) *DiscoveryCache {
	if ttl <= 0 {
		ttl = discoveryTTL
	}
	return &DiscoveryCache{rdb: c.Underlying(), ttl: ttl}
}

func discoveryKey(accountID string) string {
	return "discovery:" + accountID
}

// Get returns the cached tuple and whether one was present.
func (dc *DiscoveryCache) Get(ctx context.Context, accountID string) (domain.DiscoveredEndpoints, bool, error) {
	raw, err := dc.rdb.Get(ctx, discoveryKey(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.DiscoveredEndpoints{}, false, nil
	}
	if err != nil {
		return domain.DiscoveredEndpoints{}, false, fmt.Errorf("redis: get discovery %s: %w", accountID, err)
	}

	var eps domain.DiscoveredEndpoints
	if err := json.Unmarshal(raw, &eps); err != nil {
		// Treat a corrupt entry as a miss and drop it.
		_ = dc.rdb.Del(ctx, discoveryKey(accountID)).Err()
		return domain.DiscoveredEndpoints{}, false, nil
	}
	return eps, true, nil
}

// Put stores the tuple with the cache TTL.
func (dc *DiscoveryCache) Put(ctx context.Context, accountID string, eps domain.DiscoveredEndpoints) error {
	raw, err := json.Marshal(eps)
	if err != nil {
		return fmt.Errorf("redis: marshal discovery %s: %w", accountID, err)
	}
	if err := dc.rdb.Set(ctx, discoveryKey(accountID), raw, dc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: put discovery %s: %w", accountID, err)
	}
	return nil
}

// Invalidate drops the cached tuple, forcing the next connect to probe.
func (dc *DiscoveryCache) Invalidate(ctx context.Context, accountID string) error {
	if err := dc.rdb.Del(ctx, discoveryKey(accountID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate discovery %s: %w", accountID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.DiscoveryCache = (*DiscoveryCache)(nil)
