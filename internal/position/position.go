// Package position owns the per account position ledger. Fills mutate it,
// closes go through the broker and then mutate it, and two background loops
// keep it honest: a price refresher marks open positions to market and a
// reconciler adopts the broker's view on drift.
package position

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jthadison/tmt-sub003/internal/broker"
	"github.com/jthadison/tmt-sub003/internal/config"
	"github.com/jthadison/tmt-sub003/internal/journal"
	"github.com/jthadison/tmt-sub003/internal/logger"
	"github.com/jthadison/tmt-sub003/internal/metrics"
	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

// ExecutionRecorder receives the execution record of every confirmed close so
// realized P&L lands in the journal. A nil recorder disables recording.
type ExecutionRecorder interface {
	RecordExecution(execution journal.Execution) error
}

// Manager is the position ledger. All mutations for one account serialize
// through that account's book mutex; the books map itself only grows.
type Manager struct {
	cfg      config.EngineConfig
	log      *logger.Logger
	registry *metrics.Registry
	gateway  broker.Gateway
	recorder ExecutionRecorder

	// accountID is the default broker account used for price and instrument
	// queries, which are not position scoped.
	accountID string

	mu    sync.RWMutex
	books map[string]*accountBook

	prices    *priceCache
	summaries *summaryCache
}

// accountBook holds one account's open positions. The mutex serializes every
// mutation for the account so average price math never interleaves.
type accountBook struct {
	mu        sync.Mutex
	positions map[string]*types.Position
}

// New builds the manager. The recorder may be nil when close executions do
// not need journaling, as in tests.
func New(cfg config.EngineConfig, accountID string, gateway broker.Gateway, recorder ExecutionRecorder, log *logger.Logger, registry *metrics.Registry) *Manager {
	return &Manager{
		cfg:       cfg,
		log:       log,
		registry:  registry,
		gateway:   gateway,
		recorder:  recorder,
		accountID: accountID,
		mu:        sync.RWMutex{},
		books:     make(map[string]*accountBook),
		prices:    newPriceCache(),
		summaries: newSummaryCache(cfg.SummaryRefreshInterval()),
	}
}

// book returns the account's book, creating it on first use.
func (m *Manager) book(accountID string) *accountBook {
	m.mu.RLock()
	b, ok := m.books[accountID]
	m.mu.RUnlock()

	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok = m.books[accountID]; ok {
		return b
	}

	b = &accountBook{
		mu:        sync.Mutex{},
		positions: make(map[string]*types.Position),
	}
	m.books[accountID] = b

	return b
}

// knownAccounts returns every account the ledger has seen, sorted.
func (m *Manager) knownAccounts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make([]string, 0, len(m.books))
	for accountID := range m.books {
		accounts = append(accounts, accountID)
	}

	sort.Strings(accounts)

	return accounts
}

// ApplyFill applies one confirmed execution to the ledger: open, pyramid,
// reduce, close, or reverse depending on the existing position and the fill's
// direction.
func (m *Manager) ApplyFill(ctx context.Context, fill types.Fill) (*types.FillOutcome, error) {
	if fill.Units.IsZero() {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "fill units must not be zero")
	}

	if !fill.Price.IsPositive() {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "fill price %s must be positive", fill.Price)
	}

	b := m.book(fill.AccountID)

	// Deferred so a panic mid-apply cannot strand the book locked; the order
	// pipeline recovers panics and keeps running.
	b.mu.Lock()
	defer b.mu.Unlock()

	outcome := m.applyFillLocked(b, fill)

	m.registry.Inc(metrics.CounterFillsApplied)
	m.log.Info("fill applied",
		zap.String("account_id", fill.AccountID),
		zap.String("instrument", fill.Instrument),
		zap.String("kind", outcome.Kind),
		zap.String("units", fill.Units.String()),
		zap.String("price", fill.Price.String()),
		zap.String("realized_pnl", outcome.RealizedPnL.String()),
	)

	return outcome, nil
}

// applyFillLocked mutates the book. Callers hold the book mutex.
func (m *Manager) applyFillLocked(b *accountBook, fill types.Fill) *types.FillOutcome {
	now := fill.Time
	if now.IsZero() {
		now = time.Now()
	}

	pos, ok := b.positions[fill.Instrument]
	if !ok || pos.Units.IsZero() {
		pos = m.openPosition(fill, now)
		b.positions[fill.Instrument] = pos

		return &types.FillOutcome{
			Kind:        types.FillOutcomeOpen,
			RealizedPnL: decimal.Zero,
			Position:    pos.Clone(),
		}
	}

	if pos.Units.Sign() == fill.Units.Sign() {
		newUnits := pos.Units.Add(fill.Units)
		pos.AvgPrice = pos.AvgPrice.Mul(pos.Units).Add(fill.Price.Mul(fill.Units)).Div(newUnits)
		pos.Units = newUnits
		m.markPosition(pos, fill.Price, now)

		return &types.FillOutcome{
			Kind:        types.FillOutcomePyramid,
			RealizedPnL: decimal.Zero,
			Position:    pos.Clone(),
		}
	}

	// Opposite side: realize P&L on the closed portion, capped at the held
	// size so a reversal books exactly the old position.
	closing := fill.Units.Abs()
	if closing.GreaterThan(pos.Units.Abs()) {
		closing = pos.Units.Abs()
	}

	closedSigned := closing
	if pos.Units.Sign() < 0 {
		closedSigned = closing.Neg()
	}

	realized := fill.Price.Sub(pos.AvgPrice).Mul(closedSigned)
	remainder := pos.Units.Add(fill.Units)

	switch {
	case remainder.IsZero():
		delete(b.positions, fill.Instrument)

		// Hand back the terminal snapshot; the ledger itself only holds open
		// positions.
		pos.Units = decimal.Zero
		pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		pos.ClosedAt = optional.Some(now)
		m.markPosition(pos, fill.Price, now)

		return &types.FillOutcome{
			Kind:        types.FillOutcomeClose,
			RealizedPnL: realized,
			Position:    pos.Clone(),
		}
	case remainder.Sign() == pos.Units.Sign():
		pos.Units = remainder
		pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		m.markPosition(pos, fill.Price, now)

		return &types.FillOutcome{
			Kind:        types.FillOutcomeReduce,
			RealizedPnL: realized,
			Position:    pos.Clone(),
		}
	default:
		// The excess flips the position: it is a fresh entry at the fill
		// price, opened by the reversing order.
		pos.Units = remainder
		pos.AvgPrice = fill.Price
		pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		pos.OpeningOrderID = fill.OrderID
		pos.OpenedAt = now
		m.markPosition(pos, fill.Price, now)

		return &types.FillOutcome{
			Kind:        types.FillOutcomeReverse,
			RealizedPnL: realized,
			Position:    pos.Clone(),
		}
	}
}

// openPosition builds a fresh ledger entry from the opening fill.
func (m *Manager) openPosition(fill types.Fill, now time.Time) *types.Position {
	pos := &types.Position{
		ID:             uuid.NewString(),
		AccountID:      fill.AccountID,
		Instrument:     fill.Instrument,
		Units:          fill.Units,
		AvgPrice:       fill.Price,
		CurrentPrice:   fill.Price,
		RealizedPnL:    decimal.Zero,
		UnrealizedPnL:  decimal.Zero,
		MarginUsed:     decimal.Zero,
		MarginRate:     decimal.Zero,
		OpenedAt:       now,
		ClosedAt:       optional.None[time.Time](),
		UpdatedAt:      now,
		OpeningOrderID: fill.OrderID,
	}

	if instrument, ok := m.prices.instrument(fill.Instrument); ok {
		pos.MarginRate = instrument.MarginRate
	}

	pos.MarginUsed = pos.Notional(fill.Price).Mul(pos.MarginRate)

	return pos
}

// markPosition revalues a position at the given price. Callers hold the book
// mutex.
func (m *Manager) markPosition(pos *types.Position, price decimal.Decimal, now time.Time) {
	pos.CurrentPrice = price
	pos.UnrealizedPnL = pos.ComputeUnrealizedPnL(price)

	if pos.MarginRate.IsZero() {
		if instrument, ok := m.prices.instrument(pos.Instrument); ok {
			pos.MarginRate = instrument.MarginRate
		}
	}

	pos.MarginUsed = pos.Notional(price).Mul(pos.MarginRate)
	pos.UpdatedAt = now
}

// OpenPositions returns clones of the account's open positions, sorted by
// instrument.
func (m *Manager) OpenPositions(_ context.Context, accountID string) ([]types.Position, error) {
	b := m.book(accountID)

	b.mu.Lock()
	defer b.mu.Unlock()

	positions := make([]types.Position, 0, len(b.positions))
	for _, pos := range b.positions {
		positions = append(positions, *pos.Clone())
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Instrument < positions[j].Instrument
	})

	return positions, nil
}

// Position returns a clone of one open position, or a POSITION_NOT_FOUND
// error when the account holds nothing in the instrument.
func (m *Manager) Position(accountID, instrument string) (*types.Position, error) {
	b := m.book(accountID)

	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[instrument]
	if !ok {
		return nil, errors.Newf(errors.ErrCodePositionNotFound, "no open position in %s for account %s", instrument, accountID)
	}

	return pos.Clone(), nil
}
