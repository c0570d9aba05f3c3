package order

import (
	"context"
	"sort"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/jthadison/tmt-sub003/internal/broker"
	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

// GetStatus returns the current view of an order. Active and completed orders
// answer from memory; unknown ids fall through to the broker and the id is
// treated as a broker order id. Terminal orders never change, so repeated
// reads return identical snapshots.
func (m *Manager) GetStatus(ctx context.Context, orderID string) (*types.Order, error) {
	if snap := m.snapshot(orderID); snap != nil {
		return snap, nil
	}

	state, err := m.gateway.GetOrder(ctx, m.accountID, orderID)
	if err != nil {
		return nil, errors.Wrapf(errors.GetCode(err), err, "look up order %s", orderID)
	}

	return orderFromState(m.accountID, state), nil
}

// ListActive returns the working orders, optionally narrowed to one account,
// oldest first.
func (m *Manager) ListActive(_ context.Context, accountID optional.Option[string]) []types.Order {
	m.mu.RLock()

	orders := make([]types.Order, 0, len(m.active))
	for _, ord := range m.active {
		if accountID.IsSome() && ord.AccountID != accountID.Unwrap() {
			continue
		}

		orders = append(orders, *ord.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}

		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})

	return orders
}

// PendingCount returns the number of working orders for an account. The risk
// checks use it to bound total in-flight exposure.
func (m *Manager) PendingCount(accountID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, ord := range m.active {
		if ord.AccountID == accountID {
			count++
		}
	}

	return count
}

// orderFromState builds a read-only order view from the broker's answer for
// an id the manager never tracked, as after a restart.
func orderFromState(accountID string, state *broker.OrderState) *types.Order {
	return &types.Order{
		ID:            state.BrokerOrderID,
		ClientOrderID: optional.None[string](),
		BrokerOrderID: optional.Some(state.BrokerOrderID),
		AccountID:     accountID,
		Instrument:    state.Instrument,
		Units:         decimal.Zero,
		FilledUnits:   state.FilledUnits,
		Kind:          "",
		TimeInForce:   "",
		Price:         optional.None[decimal.Decimal](),
		PriceBound:    optional.None[decimal.Decimal](),
		GTDTime:       optional.None[time.Time](),
		StopLoss:      optional.None[types.BracketSpec](),
		TakeProfit:    optional.None[types.BracketSpec](),
		AvgFillPrice:  state.AvgFillPrice,
		Status:        state.Status,
		RejectCode:    "",
		RejectReason:  "",
		Commission:    decimal.Zero,
		CreatedAt:     state.UpdatedAt,
		SubmittedAt:   optional.None[time.Time](),
		CompletedAt:   optional.None[time.Time](),
		Latency:       0,
		RetryCount:    0,
		Metadata:      nil,
	}
}
