package order

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jthadison/tmt-sub003/internal/types"
)

// completedEntry pairs a terminal order with its completion time for TTL
// accounting.
type completedEntry struct {
	order  *types.Order
	doneAt time.Time
}

// completedCache keeps terminal orders queryable for a bounded time and
// size. A ttl of zero disables expiry; a maxSize of zero disables the size
// cap.
type completedCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	entries map[string]completedEntry
}

func newCompletedCache(ttl time.Duration, maxSize int) *completedCache {
	return &completedCache{
		mu:      sync.Mutex{},
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]completedEntry),
	}
}

// put stores a clone of a terminal order, evicting the oldest entry when the
// cache is at capacity.
func (c *completedCache) put(ord *types.Order, doneAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[ord.ID]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.entries[ord.ID] = completedEntry{order: ord.Clone(), doneAt: doneAt}
}

// get returns a clone of a cached order. Entries past their TTL miss and are
// dropped on the spot.
func (c *completedCache) get(orderID string) (*types.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[orderID]
	if !ok {
		return nil, false
	}

	if c.ttl > 0 && time.Since(entry.doneAt) > c.ttl {
		delete(c.entries, orderID)

		return nil, false
	}

	return entry.order.Clone(), true
}

// sweep drops entries past their TTL and reports how many were removed.
func (c *completedCache) sweep(now time.Time) int {
	if c.ttl <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, entry := range c.entries {
		if now.Sub(entry.doneAt) > c.ttl {
			delete(c.entries, id)
			removed++
		}
	}

	return removed
}

// evictOldestLocked removes the entry with the earliest completion time.
// Linear, but it only runs when the cache is at capacity.
func (c *completedCache) evictOldestLocked() {
	oldestID := ""
	oldestAt := time.Time{}

	for id, entry := range c.entries {
		if oldestID == "" || entry.doneAt.Before(oldestAt) {
			oldestID = id
			oldestAt = entry.doneAt
		}
	}

	if oldestID != "" {
		delete(c.entries, oldestID)
	}
}

// size returns the number of cached orders.
func (c *completedCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// RunJanitor evicts expired completed orders in the background until ctx
// ends. Lookups already expire entries lazily; the janitor bounds memory for
// orders nobody asks about again.
func (m *Manager) RunJanitor(ctx context.Context) error {
	interval := m.cfg.CompletedTTL() / 4
	if interval < time.Second {
		interval = time.Second
	}

	m.log.Info("completed order janitor started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := m.completed.sweep(time.Now()); removed > 0 {
				m.log.Debug("completed orders evicted", zap.Int("count", removed))
			}
		}
	}
}
