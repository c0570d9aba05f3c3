package position

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jthadison/tmt-sub003/internal/types"
)

// summaryCache holds the last broker account summary per account with a TTL,
// so the risk pipeline does not hit the broker on every validation.
type summaryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]summaryEntry

	// pending reports locally tracked pending orders, wired after the order
	// manager exists. Nil until then.
	pending func(accountID string) int
}

type summaryEntry struct {
	summary   types.AccountSummary
	fetchedAt time.Time
}

func newSummaryCache(ttl time.Duration) *summaryCache {
	return &summaryCache{
		mu:      sync.RWMutex{},
		ttl:     ttl,
		entries: make(map[string]summaryEntry),
		pending: nil,
	}
}

func (c *summaryCache) get(accountID string, now time.Time) (types.AccountSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[accountID]
	if !ok || now.Sub(entry.fetchedAt) > c.ttl {
		return types.AccountSummary{}, false //nolint:exhaustruct // zero on miss
	}

	return entry.summary, true
}

func (c *summaryCache) put(accountID string, summary types.AccountSummary, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[accountID] = summaryEntry{summary: summary, fetchedAt: now}
}

func (c *summaryCache) pendingFor(accountID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.pending == nil {
		return 0
	}

	return c.pending(accountID)
}

// SetPendingCounter wires the local pending order count into account
// summaries. Called once during engine assembly, before the loops start.
func (m *Manager) SetPendingCounter(fn func(accountID string) int) {
	m.summaries.mu.Lock()
	defer m.summaries.mu.Unlock()

	m.summaries.pending = fn
}

// AccountSummary returns the account state, served from cache while fresh.
// The broker's pending order count is topped up with orders the engine has
// accepted but the broker has not confirmed yet.
func (m *Manager) AccountSummary(ctx context.Context, accountID string) (*types.AccountSummary, error) {
	now := time.Now()

	if summary, ok := m.summaries.get(accountID, now); ok {
		return m.mergeSummary(accountID, summary), nil
	}

	summary, err := m.refreshSummary(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return m.mergeSummary(accountID, *summary), nil
}

// refreshSummary fetches and caches the broker summary for one account.
func (m *Manager) refreshSummary(ctx context.Context, accountID string) (*types.AccountSummary, error) {
	summary, err := m.gateway.GetAccountSummary(ctx, accountID)
	if err != nil {
		return nil, err
	}

	m.summaries.put(accountID, *summary, time.Now())

	return summary, nil
}

// mergeSummary overlays local knowledge on the broker summary.
func (m *Manager) mergeSummary(accountID string, summary types.AccountSummary) *types.AccountSummary {
	if local := m.summaries.pendingFor(accountID); local > summary.PendingOrderCount {
		summary.PendingOrderCount = local
	}

	return &summary
}

// RunSummaryRefresher keeps the summary cache warm for every known account so
// validations read fresh numbers without waiting on the broker.
func (m *Manager) RunSummaryRefresher(ctx context.Context) error {
	interval := m.cfg.SummaryRefreshInterval()

	m.log.Info("account summary refresher started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, accountID := range m.knownAccounts() {
				if _, err := m.refreshSummary(ctx, accountID); err != nil {
					m.log.Warn("summary refresh failed",
						zap.String("account_id", accountID),
						zap.Error(err),
					)
				}
			}
		}
	}
}
