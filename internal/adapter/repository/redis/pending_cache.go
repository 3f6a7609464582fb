package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pending_event:"

// PendingEventCache is a redis-backed implementation of
// domain.PendingEventCache, for deployments where the relay runs as more than
// one replica and the cache must be shared. GETDEL makes the take atomic on
// the server side; redis handles expiry via the per-key TTL.
type PendingEventCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewPendingEventCache creates a redis-backed cache with per-entry TTL.
func NewPendingEventCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *PendingEventCache {
	return &PendingEventCache{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "pending_cache_redis"),
	}
}

// Put stores the event identifier under the given email, replacing any
// existing entry and resetting its TTL.
func (c *PendingEventCache) Put(ctx context.Context, email, eventID string) error {
	if err := c.client.Set(ctx, keyPrefix+email, eventID, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store pending event id: %w", err)
	}
	return nil
}

// Take returns and removes the entry for the given email in one server-side
// operation. A missing key is a miss, not an error.
func (c *PendingEventCache) Take(ctx context.Context, email string) (string, bool, error) {
	id, err := c.client.GetDel(ctx, keyPrefix+email).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to take pending event id: %w", err)
	}
	return id, true, nil
}
