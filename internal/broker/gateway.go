package broker

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/jthadison/tmt-sub003/internal/metrics"
	"github.com/jthadison/tmt-sub003/internal/types"
)

// Operation names used for latency tracking.
const (
	OpExecuteMarketOrder = "execute_market_order"
	OpSubmitPendingOrder = "submit_pending_order"
	OpModifyOrder        = "modify_order"
	OpCancelOrder        = "cancel_order"
	OpClosePosition      = "close_position"
	OpGetAccountSummary  = "get_account_summary"
	OpGetOpenPositions   = "get_open_positions"
	OpGetPrices          = "get_prices"
	OpGetInstruments     = "get_instruments"
	OpGetOrder           = "get_order"
)

// PlacementResult is the broker's answer to an accepted placement or
// replacement. Rejections surface as errors, never as a result.
type PlacementResult struct {
	BrokerOrderID string
	Status        types.OrderStatus
	// FillPrice is set when the placement filled immediately.
	FillPrice   optional.Option[decimal.Decimal]
	FilledUnits decimal.Decimal
	Commission  decimal.Decimal
	// RealizedPnL is non-zero when the fill reduced or closed opposing trades.
	RealizedPnL decimal.Decimal
	// Reason carries the broker's explanation when Status is CANCELLED.
	Reason string
	Time   time.Time
}

// CloseResult reports a confirmed position close.
type CloseResult struct {
	Units       decimal.Decimal
	Price       decimal.Decimal
	RealizedPnL decimal.Decimal
	Commission  decimal.Decimal
	Time        time.Time
}

// OrderState is the broker's view of one order, used as the status fallback
// for orders already evicted from local caches.
type OrderState struct {
	BrokerOrderID string
	Status        types.OrderStatus
	Instrument    string
	FilledUnits   decimal.Decimal
	AvgFillPrice  optional.Option[decimal.Decimal]
	UpdatedAt     time.Time
}

// Gateway is the single entry point to the broker's REST API. Implementations
// must bound in-flight requests with a rate gate that queues callers rather
// than failing them, and may retry idempotent reads only: a placement is
// never retried blindly because the first attempt may have succeeded.
type Gateway interface {
	// ExecuteMarketOrder places a market order and waits for the fill.
	ExecuteMarketOrder(ctx context.Context, order *types.Order) (*PlacementResult, error)
	// SubmitPendingOrder places a limit, stop, or market-if-touched order.
	SubmitPendingOrder(ctx context.Context, order *types.Order) (*PlacementResult, error)
	// ModifyOrder replaces a working order with the given desired state.
	ModifyOrder(ctx context.Context, order *types.Order) (*PlacementResult, error)
	// CancelOrder cancels a working order.
	CancelOrder(ctx context.Context, accountID, brokerOrderID string) error
	// ClosePosition closes all (units None) or part of an instrument position.
	ClosePosition(ctx context.Context, accountID, instrument string, units optional.Option[decimal.Decimal]) (*CloseResult, error)
	// GetAccountSummary returns the account state including balance and margin.
	GetAccountSummary(ctx context.Context, accountID string) (*types.AccountSummary, error)
	// GetOpenPositions returns all open positions for the account.
	GetOpenPositions(ctx context.Context, accountID string) ([]types.Position, error)
	// GetPrices returns current quotes for the instruments.
	GetPrices(ctx context.Context, accountID string, instruments []string) ([]types.Price, error)
	// GetInstruments returns the account's tradeable instrument metadata.
	GetInstruments(ctx context.Context, accountID string) ([]types.Instrument, error)
	// GetOrder returns the broker's view of one order.
	GetOrder(ctx context.Context, accountID, brokerOrderID string) (*OrderState, error)
	// Metrics returns per operation latency summaries.
	Metrics() map[string]metrics.LatencySnapshot
}
