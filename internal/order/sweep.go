package order

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jthadison/tmt-sub003/internal/broker"
	"github.com/jthadison/tmt-sub003/internal/journal"
	"github.com/jthadison/tmt-sub003/internal/metrics"
	"github.com/jthadison/tmt-sub003/internal/types"
)

// RunSweeper keeps resting orders current against the broker and expires
// overdue GTD orders until ctx ends.
func (m *Manager) RunSweeper(ctx context.Context) error {
	m.log.Info("order sweeper started",
		zap.Duration("interval", m.cfg.ExpirySweepInterval()),
	)

	ticker := time.NewTicker(m.cfg.ExpirySweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Sweep(ctx, time.Now())
		}
	}
}

// Sweep performs one maintenance pass. Resting orders sync first, so a fill
// that landed just before its deadline is booked as a fill and not thrown
// away as an expiry; then overdue GTD orders expire.
func (m *Manager) Sweep(ctx context.Context, now time.Time) {
	for _, orderID := range m.restingOrders() {
		m.syncResting(ctx, orderID)
	}

	for _, orderID := range m.expiredOrders(now) {
		m.expire(ctx, orderID)
	}
}

// restingOrders lists the active orders with a broker-side record to poll.
func (m *Manager) restingOrders() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.active))
	for id, ord := range m.active {
		if ord.BrokerOrderID.IsNone() {
			continue
		}

		if ord.Status != types.OrderStatusSubmitted && ord.Status != types.OrderStatusPartiallyFilled {
			continue
		}

		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// syncResting polls the broker for one resting order and applies what it
// finds. Poll failures are logged and retried on the next pass.
func (m *Manager) syncResting(ctx context.Context, orderID string) {
	if !m.beginProcessing(orderID) {
		return
	}
	defer m.endProcessing(orderID)

	ord := m.activeOrder(orderID)
	if ord == nil || ord.BrokerOrderID.IsNone() {
		return
	}

	state, err := m.gateway.GetOrder(ctx, ord.AccountID, ord.BrokerOrderID.Unwrap())
	if err != nil {
		m.log.Warn("resting order sync failed",
			zap.String("order_id", orderID),
			zap.String("broker_order_id", ord.BrokerOrderID.Unwrap()),
			zap.Error(err),
		)

		return
	}

	m.applyBrokerState(ctx, ord, state)
}

// applyBrokerState reconciles one order against the broker's view, booking
// any new fill units before the status change.
func (m *Manager) applyBrokerState(ctx context.Context, ord *types.Order, state *broker.OrderState) {
	fillDelta := state.FilledUnits.Sub(ord.FilledUnits)

	if !fillDelta.IsZero() && state.AvgFillPrice.IsSome() {
		// Deltas book at the broker's running average; the position
		// reconciler trues up any drift from multi-price partials.
		m.bookFill(ctx, ord, fillDelta, state.AvgFillPrice.Unwrap(), state.UpdatedAt)
	}

	switch state.Status {
	case types.OrderStatusFilled:
		filled := m.complete(ord.ID, types.OrderStatusFilled, func(o *types.Order) {
			o.FilledUnits = state.FilledUnits
			o.AvgFillPrice = state.AvgFillPrice
		})
		if filled == nil {
			return
		}

		m.registry.Inc(metrics.CounterOrdersFilled)
		m.log.Info("resting order filled",
			zap.String("order_id", ord.ID),
			zap.String("instrument", filled.Instrument),
			zap.String("units", state.FilledUnits.String()),
		)

	case types.OrderStatusCancelled:
		cancelled := m.complete(ord.ID, types.OrderStatusCancelled, func(o *types.Order) {
			o.FilledUnits = state.FilledUnits
			o.AvgFillPrice = state.AvgFillPrice
		})
		if cancelled == nil {
			return
		}

		m.registry.Inc(metrics.CounterOrdersCancelled)
		m.log.Info("resting order cancelled at broker",
			zap.String("order_id", ord.ID),
			zap.String("instrument", cancelled.Instrument),
		)

	default:
		if fillDelta.IsZero() {
			return
		}

		m.mutate(ord.ID, func(o *types.Order) {
			o.FilledUnits = state.FilledUnits
			o.AvgFillPrice = state.AvgFillPrice

			if o.Status.CanTransitionTo(types.OrderStatusPartiallyFilled) {
				o.Status = types.OrderStatusPartiallyFilled
			}
		})

		m.log.Info("resting order partially filled",
			zap.String("order_id", ord.ID),
			zap.String("filled_units", state.FilledUnits.String()),
		)
	}
}

// bookFill applies one fill delta to the ledger and journals the leg.
func (m *Manager) bookFill(ctx context.Context, ord *types.Order, units, price decimal.Decimal, at time.Time) {
	outcome, err := m.filler.ApplyFill(ctx, types.Fill{
		OrderID:    ord.ID,
		AccountID:  ord.AccountID,
		Instrument: ord.Instrument,
		Units:      units,
		Price:      price,
		Commission: decimal.Zero,
		Time:       at,
	})
	if err != nil {
		m.log.Error("resting fill not booked",
			zap.String("order_id", ord.ID),
			zap.String("account_id", ord.AccountID),
			zap.Error(err),
		)

		return
	}

	m.journalExecution(journal.Execution{
		OrderID:     ord.ID,
		AccountID:   ord.AccountID,
		Instrument:  ord.Instrument,
		Outcome:     outcome.Kind,
		Units:       units,
		Price:       price,
		RealizedPnL: outcome.RealizedPnL,
		Commission:  decimal.Zero,
		ExecutedAt:  at,
	})
}

// expiredOrders lists the GTD orders whose deadline has passed. Partially
// filled orders never expire locally; the broker cancels their remainder and
// the sync pass picks that up.
func (m *Manager) expiredOrders(now time.Time) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0)
	for id, ord := range m.active {
		if ord.TimeInForce != types.TimeInForceGTD || ord.GTDTime.IsNone() {
			continue
		}

		if ord.Status != types.OrderStatusSubmitted {
			continue
		}

		if ord.GTDTime.Unwrap().After(now) {
			continue
		}

		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// expire withdraws one overdue GTD order. The broker cancel comes first;
// local state only moves to EXPIRED once the broker confirms the order is
// gone, so a fill racing the deadline is never dropped.
func (m *Manager) expire(ctx context.Context, orderID string) {
	if !m.beginProcessing(orderID) {
		return
	}
	defer m.endProcessing(orderID)

	ord := m.activeOrder(orderID)
	if ord == nil || ord.Status != types.OrderStatusSubmitted {
		return
	}

	if ord.BrokerOrderID.IsSome() {
		if err := m.gateway.CancelOrder(ctx, ord.AccountID, ord.BrokerOrderID.Unwrap()); err != nil {
			m.log.Warn("broker cancel of expired order failed",
				zap.String("order_id", orderID),
				zap.String("broker_order_id", ord.BrokerOrderID.Unwrap()),
				zap.Error(err),
			)

			// The order may have filled or cancelled on its own. Adopt
			// whatever the broker has; if it is still resting the next sweep
			// retries the expiry.
			state, stateErr := m.gateway.GetOrder(ctx, ord.AccountID, ord.BrokerOrderID.Unwrap())
			if stateErr == nil {
				m.applyBrokerState(ctx, ord, state)
			}

			return
		}
	}

	expired := m.complete(orderID, types.OrderStatusExpired, nil)
	if expired == nil {
		return
	}

	m.registry.Inc(metrics.CounterOrdersExpired)
	m.log.Info("order expired",
		zap.String("order_id", orderID),
		zap.String("instrument", expired.Instrument),
		zap.Time("gtd_time", expired.GTDTime.Unwrap()),
	)
}
