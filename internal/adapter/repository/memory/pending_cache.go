package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const janitorInterval = time.Minute

type entry struct {
	eventID   string
	expiresAt time.Time
}

// PendingEventCache is a bounded, TTL-expiring in-memory implementation of
// domain.PendingEventCache. Take removes the entry under the same lock that
// reads it, so concurrent purchases for one email never consume the same
// identifier twice.
type PendingEventCache struct {
	mu       sync.Mutex
	entries  map[string]entry
	ttl      time.Duration
	capacity int
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPendingEventCache creates a cache holding at most capacity entries, each
// expiring after ttl. A background janitor sweeps expired entries until Stop
// is called.
func NewPendingEventCache(ttl time.Duration, capacity int, logger *slog.Logger) *PendingEventCache {
	c := &PendingEventCache{
		entries:  make(map[string]entry),
		ttl:      ttl,
		capacity: capacity,
		logger:   logger.With("component", "pending_cache"),
		stopCh:   make(chan struct{}),
	}

	go c.janitor()

	return c
}

// Put stores the event identifier under the given email, replacing any
// existing entry. At capacity the entry closest to expiry is evicted.
func (c *PendingEventCache) Put(ctx context.Context, email, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, exists := c.entries[email]; !exists && len(c.entries) >= c.capacity {
		c.purgeExpiredLocked(now)
		if len(c.entries) >= c.capacity {
			c.evictSoonestLocked()
		}
	}

	c.entries[email] = entry{eventID: eventID, expiresAt: now.Add(c.ttl)}
	return nil
}

// Take returns and removes the entry for the given email as one atomic step.
// Expired entries are treated as absent.
func (c *PendingEventCache) Take(ctx context.Context, email string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[email]
	if !ok {
		return "", false, nil
	}
	delete(c.entries, email)

	if time.Now().After(e.expiresAt) {
		return "", false, nil
	}
	return e.eventID, true, nil
}

// Len reports the current number of entries, expired or not.
func (c *PendingEventCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stop terminates the janitor goroutine. Safe to call more than once.
func (c *PendingEventCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *PendingEventCache) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			before := len(c.entries)
			c.purgeExpiredLocked(time.Now())
			swept := before - len(c.entries)
			c.mu.Unlock()
			if swept > 0 {
				c.logger.Debug("swept expired pending entries", "count", swept)
			}
		}
	}
}

func (c *PendingEventCache) purgeExpiredLocked(now time.Time) {
	for email, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, email)
		}
	}
}

func (c *PendingEventCache) evictSoonestLocked() {
	var victim string
	var soonest time.Time
	for email, e := range c.entries {
		if victim == "" || e.expiresAt.Before(soonest) {
			victim = email
			soonest = e.expiresAt
		}
	}
	if victim != "" {
		delete(c.entries, victim)
		c.logger.Warn("pending cache at capacity, evicted oldest entry")
	}
}
