package position

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jthadison/tmt-sub003/internal/metrics"
	"github.com/jthadison/tmt-sub003/internal/types"
)

// RunReconciler periodically replays the broker's view of every known account
// over the local ledger. The broker is authoritative: drift is overwritten,
// not merged.
func (m *Manager) RunReconciler(ctx context.Context) error {
	interval := m.cfg.ReconcileInterval()

	m.log.Info("position reconciler started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, accountID := range m.knownAccounts() {
				if err := m.Reconcile(ctx, accountID); err != nil {
					m.log.Warn("reconcile pass failed",
						zap.String("account_id", accountID),
						zap.Error(err),
					)
				}
			}
		}
	}
}

// Reconcile pulls the broker's open positions for one account and makes the
// local book match: drifted entries are overwritten, local-only entries are
// dropped, broker-only entries are adopted. Also called once at startup to
// seed the ledger.
func (m *Manager) Reconcile(ctx context.Context, accountID string) error {
	brokerPositions, err := m.gateway.GetOpenPositions(ctx, accountID)
	if err != nil {
		return err
	}

	remote := make(map[string]types.Position, len(brokerPositions))
	for _, pos := range brokerPositions {
		remote[pos.Instrument] = pos
	}

	now := time.Now()
	b := m.book(accountID)

	b.mu.Lock()
	defer b.mu.Unlock()

	for instrument, local := range b.positions {
		held, ok := remote[instrument]
		if !ok {
			// The broker does not hold this position; whatever closed it
			// never reached us. Drop the local entry.
			delete(b.positions, instrument)
			m.registry.Inc(metrics.CounterReconcileDrifts)
			m.log.Warn("dropped position not held at broker",
				zap.String("account_id", accountID),
				zap.String("instrument", instrument),
				zap.String("local_units", local.Units.String()),
			)

			continue
		}

		if !local.Units.Equal(held.Units) || !local.AvgPrice.Equal(held.AvgPrice) {
			m.registry.Inc(metrics.CounterReconcileDrifts)
			m.log.Warn("position drift reconciled from broker",
				zap.String("account_id", accountID),
				zap.String("instrument", instrument),
				zap.String("local_units", local.Units.String()),
				zap.String("broker_units", held.Units.String()),
				zap.String("local_avg_price", local.AvgPrice.String()),
				zap.String("broker_avg_price", held.AvgPrice.String()),
			)

			local.Units = held.Units
			local.AvgPrice = held.AvgPrice
			local.RealizedPnL = held.RealizedPnL
			local.UnrealizedPnL = held.UnrealizedPnL
			local.MarginUsed = held.MarginUsed
			local.UpdatedAt = now
		}

		delete(remote, instrument)
	}

	// Whatever remains is held at the broker but unknown locally.
	for instrument := range remote {
		adopted := remote[instrument]
		adopted.ID = uuid.NewString()
		adopted.UpdatedAt = now

		if adopted.OpenedAt.IsZero() {
			adopted.OpenedAt = now
		}

		b.positions[instrument] = &adopted
		m.registry.Inc(metrics.CounterReconcileDrifts)
		m.log.Warn("adopted position held at broker",
			zap.String("account_id", accountID),
			zap.String("instrument", instrument),
			zap.String("units", adopted.Units.String()),
			zap.String("avg_price", adopted.AvgPrice.String()),
		)
	}

	return nil
}
