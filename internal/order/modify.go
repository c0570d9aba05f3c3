package order

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jthadison/tmt-sub003/internal/metrics"
	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

// Modify changes a working order's mutable fields. Orders still queued for
// placement amend in memory with no broker round trip; resting orders go
// through the broker's cancel-and-replace, which assigns a fresh broker
// order id and may fill immediately if the new price crosses the market.
func (m *Manager) Modify(ctx context.Context, orderID string, mod types.OrderModification) (result *types.ExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = m.faultResult(r, orderID, "")
			err = nil
		}
	}()

	snap := m.activeOrder(orderID)
	if snap == nil {
		if cached, ok := m.completed.get(orderID); ok {
			return nil, errors.Newf(errors.ErrCodeInvalidState,
				"order %s is %s and can no longer be modified", orderID, cached.Status)
		}

		return nil, errors.Newf(errors.ErrCodeOrderNotFound, "no active order %s", orderID)
	}

	if snap.Status != types.OrderStatusPending && snap.Status != types.OrderStatusSubmitted {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"order %s is %s and can no longer be modified", orderID, snap.Status)
	}

	if err := mod.Validate(snap); err != nil {
		return nil, err
	}

	if snap.BrokerOrderID.IsNone() {
		amended := m.amendQueued(orderID, &mod)
		if amended != nil {
			m.log.Info("order amended before placement",
				zap.String("order_id", orderID),
				zap.String("instrument", amended.Instrument),
			)

			return resultForOrder(amended, decimal.Zero, "", ""), nil
		}

		// A worker picked the order up between the snapshot and the amend.
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"order %s placement is in flight, retry shortly", orderID)
	}

	if !m.beginProcessing(orderID) {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"order %s has a broker operation in flight", orderID)
	}
	defer m.endProcessing(orderID)

	snap = m.activeOrder(orderID)
	if snap == nil || (snap.Status != types.OrderStatusPending && snap.Status != types.OrderStatusSubmitted) {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"order %s changed state during modify", orderID)
	}

	desired := snap.Clone()
	mod.Apply(desired)

	placement, err := m.gateway.ModifyOrder(ctx, desired)
	if err != nil {
		// The replace failed atomically at the broker; the resting order is
		// untouched, so local state stays as it was.
		return nil, errors.Wrapf(errors.GetCode(err), err, "modify order %s", orderID)
	}

	if placement.Status == types.OrderStatusFilled {
		// The replacement crossed the market immediately.
		return m.commitFill(ctx, orderID, placement, snap.Latency), nil
	}

	modified := m.mutate(orderID, func(o *types.Order) {
		mod.Apply(o)
		if placement.BrokerOrderID != "" {
			o.BrokerOrderID = optional.Some(placement.BrokerOrderID)
		}
	})
	if modified == nil {
		return missingResult(orderID), nil
	}

	m.log.Info("order modified",
		zap.String("order_id", orderID),
		zap.String("broker_order_id", modified.BrokerOrderID.Unwrap()),
		zap.String("instrument", modified.Instrument),
	)

	return resultForOrder(modified, decimal.Zero, "", ""), nil
}

// Cancel withdraws a working order. Orders still queued for placement cancel
// in memory; resting orders cancel at the broker first and finalize locally
// only once the broker confirms.
func (m *Manager) Cancel(ctx context.Context, orderID string) (result *types.ExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = m.faultResult(r, orderID, "")
			err = nil
		}
	}()

	snap := m.activeOrder(orderID)
	if snap == nil {
		if cached, ok := m.completed.get(orderID); ok {
			return nil, errors.Newf(errors.ErrCodeInvalidState,
				"order %s is %s and can no longer be cancelled", orderID, cached.Status)
		}

		return nil, errors.Newf(errors.ErrCodeOrderNotFound, "no active order %s", orderID)
	}

	if snap.BrokerOrderID.IsNone() {
		cancelled := m.cancelQueued(orderID)
		if cancelled != nil {
			m.registry.Inc(metrics.CounterOrdersCancelled)
			m.log.Info("order cancelled before placement",
				zap.String("order_id", orderID),
				zap.String("instrument", cancelled.Instrument),
			)

			return resultForOrder(cancelled, decimal.Zero, "", ""), nil
		}

		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"order %s placement is in flight, retry shortly", orderID)
	}

	if !m.beginProcessing(orderID) {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"order %s has a broker operation in flight", orderID)
	}
	defer m.endProcessing(orderID)

	snap = m.activeOrder(orderID)
	if snap == nil {
		return nil, errors.Newf(errors.ErrCodeInvalidState,
			"order %s changed state during cancel", orderID)
	}

	if err := m.gateway.CancelOrder(ctx, snap.AccountID, snap.BrokerOrderID.Unwrap()); err != nil {
		return nil, errors.Wrapf(errors.GetCode(err), err, "cancel order %s", orderID)
	}

	cancelled := m.complete(orderID, types.OrderStatusCancelled, nil)
	if cancelled == nil {
		return missingResult(orderID), nil
	}

	m.registry.Inc(metrics.CounterOrdersCancelled)
	m.log.Info("order cancelled",
		zap.String("order_id", orderID),
		zap.String("broker_order_id", cancelled.BrokerOrderID.Unwrap()),
		zap.String("instrument", cancelled.Instrument),
	)

	return resultForOrder(cancelled, decimal.Zero, "", ""), nil
}

// amendQueued applies a modification to an order that has not reached the
// broker yet. The check that no placement attempt is in flight and the apply
// happen under one lock so a worker cannot race the amend.
func (m *Manager) amendQueued(orderID string, mod *types.OrderModification) *types.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	ord, ok := m.active[orderID]
	if !ok {
		return nil
	}

	if _, busy := m.processing[orderID]; busy {
		return nil
	}

	if ord.BrokerOrderID.IsSome() {
		return nil
	}

	mod.Apply(ord)

	return ord.Clone()
}

// cancelQueued finalizes an order that has not reached the broker yet. The
// abandoned queue entry is drained later by a worker, which finds the order
// already terminal and walks away.
func (m *Manager) cancelQueued(orderID string) *types.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	ord, ok := m.active[orderID]
	if !ok {
		return nil
	}

	if _, busy := m.processing[orderID]; busy {
		return nil
	}

	if ord.BrokerOrderID.IsSome() {
		return nil
	}

	if !ord.Status.CanTransitionTo(types.OrderStatusCancelled) {
		return nil
	}

	now := time.Now()
	ord.Status = types.OrderStatusCancelled
	ord.CompletedAt = optional.Some(now)

	delete(m.active, orderID)
	if ord.ClientOrderID.IsSome() {
		delete(m.clientIDs, ord.ClientOrderID.Unwrap())
	}

	m.completed.put(ord, now)
	m.journalOrder(ord)

	return ord.Clone()
}
