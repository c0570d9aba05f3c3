package position

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

// priceCache is the shared quote and instrument metadata store: many readers,
// one writer at a time.
type priceCache struct {
	mu          sync.RWMutex
	prices      map[string]types.Price
	instruments map[string]types.Instrument
}

func newPriceCache() *priceCache {
	return &priceCache{
		mu:          sync.RWMutex{},
		prices:      make(map[string]types.Price),
		instruments: make(map[string]types.Instrument),
	}
}

func (c *priceCache) price(instrument string) (types.Price, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	price, ok := c.prices[instrument]

	return price, ok
}

func (c *priceCache) setPrices(prices []types.Price) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, price := range prices {
		c.prices[price.Instrument] = price
	}
}

func (c *priceCache) instrument(name string) (types.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	instrument, ok := c.instruments[name]

	return instrument, ok
}

func (c *priceCache) setInstruments(instruments []types.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, instrument := range instruments {
		c.instruments[instrument.Name] = instrument
	}
}

// Price returns the current quote for the instrument, fetching it from the
// broker on a cache miss. The refresher keeps cached quotes current for every
// instrument with an open position.
func (m *Manager) Price(ctx context.Context, instrument string) (types.Price, error) {
	if price, ok := m.prices.price(instrument); ok {
		return price, nil
	}

	quotes, err := m.gateway.GetPrices(ctx, m.accountID, []string{instrument})
	if err != nil {
		return types.Price{}, err //nolint:exhaustruct // zero on error
	}

	m.prices.setPrices(quotes)

	price, ok := m.prices.price(instrument)
	if !ok {
		return types.Price{}, errors.Newf(errors.ErrCodeInvalidParameter, "broker returned no price for %s", instrument) //nolint:exhaustruct // zero on error
	}

	return price, nil
}

// Instrument returns the broker's metadata for one instrument. A miss fetches
// the full instrument list since brokers serve it as one document.
func (m *Manager) Instrument(ctx context.Context, name string) (types.Instrument, error) {
	if instrument, ok := m.prices.instrument(name); ok {
		return instrument, nil
	}

	instruments, err := m.gateway.GetInstruments(ctx, m.accountID)
	if err != nil {
		return types.Instrument{}, err //nolint:exhaustruct // zero on error
	}

	m.prices.setInstruments(instruments)

	instrument, ok := m.prices.instrument(name)
	if !ok {
		return types.Instrument{}, errors.Newf(errors.ErrCodeInstrumentNotTradeable, "instrument %s is not available on this account", name) //nolint:exhaustruct // zero on error
	}

	return instrument, nil
}

// RunPriceRefresher pulls quotes for every instrument with an open position
// on a fixed interval and marks the ledger to market. Consecutive failures
// stretch the next attempt with exponential backoff until a pull succeeds.
func (m *Manager) RunPriceRefresher(ctx context.Context) error {
	interval := m.cfg.PriceRefreshInterval()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = interval
	policy.MaxInterval = 10 * interval
	policy.MaxElapsedTime = 0

	m.log.Info("price refresher started", zap.Duration("interval", interval))

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := m.refreshPrices(ctx); err != nil {
				wait := policy.NextBackOff()
				m.log.Warn("price refresh failed",
					zap.Duration("retry_in", wait),
					zap.Error(err),
				)
				timer.Reset(wait)

				continue
			}

			policy.Reset()
			timer.Reset(interval)
		}
	}
}

// refreshPrices does one refresh pass over all open instruments.
func (m *Manager) refreshPrices(ctx context.Context) error {
	instruments := m.openInstruments()
	if len(instruments) == 0 {
		return nil
	}

	quotes, err := m.gateway.GetPrices(ctx, m.accountID, instruments)
	if err != nil {
		return err
	}

	m.prices.setPrices(quotes)
	m.markToMarket(quotes)

	return nil
}

// openInstruments returns the sorted union of instruments with open positions
// across all accounts.
func (m *Manager) openInstruments() []string {
	seen := make(map[string]struct{})

	m.mu.RLock()
	books := make([]*accountBook, 0, len(m.books))
	for _, b := range m.books {
		books = append(books, b)
	}
	m.mu.RUnlock()

	for _, b := range books {
		b.mu.Lock()
		for instrument := range b.positions {
			seen[instrument] = struct{}{}
		}
		b.mu.Unlock()
	}

	instruments := make([]string, 0, len(seen))
	for instrument := range seen {
		instruments = append(instruments, instrument)
	}

	sort.Strings(instruments)

	return instruments
}

// markToMarket revalues every open position against the fresh quotes.
func (m *Manager) markToMarket(quotes []types.Price) {
	byInstrument := make(map[string]types.Price, len(quotes))
	for _, quote := range quotes {
		byInstrument[quote.Instrument] = quote
	}

	now := time.Now()

	m.mu.RLock()
	books := make([]*accountBook, 0, len(m.books))
	for _, b := range m.books {
		books = append(books, b)
	}
	m.mu.RUnlock()

	for _, b := range books {
		b.mu.Lock()
		for _, pos := range b.positions {
			quote, ok := byInstrument[pos.Instrument]
			if !ok {
				continue
			}

			// A long marks at the bid it would sell into, a short at the ask
			// it would buy back at.
			mark := quote.Bid
			if pos.Units.IsNegative() {
				mark = quote.Ask
			}

			m.markPosition(pos, mark, now)
		}
		b.mu.Unlock()
	}
}
