// Package engine defines the execution engine: the single facade a service
// embeds to submit, modify, and cancel orders, manage positions, and operate
// the risk controls. Implementations live in versioned subpackages.
package engine

import (
	"context"

	"github.com/moznion/go-optional"

	"github.com/jthadison/tmt-sub003/internal/config"
	"github.com/jthadison/tmt-sub003/internal/journal"
	"github.com/jthadison/tmt-sub003/internal/metrics"
	"github.com/jthadison/tmt-sub003/internal/types"
)

// GetConfigSchema returns the JSON schema for the engine configuration file.
func GetConfigSchema() (string, error) {
	return config.Schema()
}

// ExecutionEngine orchestrates order execution against a broker. Construction
// wires the components; Run starts the execution workers and background loops
// and must be active for orders to execute. Every operation maps 1:1 onto a
// service endpoint.
//
//nolint:interfacebloat // the engine is the service surface and mirrors it 1:1
type ExecutionEngine interface {
	// Run starts the workers and background loops and blocks until the
	// context is cancelled or a loop fails.
	Run(ctx context.Context) error

	// SubmitOrder runs the full intake pipeline for a new order. Requests
	// refused before an order exists return an error; once an order exists
	// the caller always receives a result.
	SubmitOrder(ctx context.Context, req *types.OrderRequest) (*types.ExecutionResult, error)

	// ModifyOrder amends an order that has not started filling.
	ModifyOrder(ctx context.Context, orderID string, mod types.OrderModification) (*types.ExecutionResult, error)

	// CancelOrder cancels an active order.
	CancelOrder(ctx context.Context, orderID string) (*types.ExecutionResult, error)

	// GetOrderStatus returns the order's current snapshot, falling back to
	// the broker for ids the engine does not track.
	GetOrderStatus(ctx context.Context, orderID string) (*types.Order, error)

	// GetActiveOrders lists non-terminal orders, optionally filtered by
	// account.
	GetActiveOrders(ctx context.Context, accountID optional.Option[string]) []types.Order

	// GetOrderHistory returns the most recent journaled orders for an
	// account.
	GetOrderHistory(accountID string, limit int) ([]journal.OrderRecord, error)

	// ClosePosition closes an open position fully or partially at market.
	ClosePosition(ctx context.Context, req *types.CloseRequest) (*types.ExecutionResult, error)

	// GetOpenPositions lists the account's open positions.
	GetOpenPositions(ctx context.Context, accountID string) ([]types.Position, error)

	// GetAccountSummary returns the account's balance, margin, and exposure
	// summary.
	GetAccountSummary(ctx context.Context, accountID string) (*types.AccountSummary, error)

	// ValidateOrder runs the risk pipeline without submitting anything.
	ValidateOrder(ctx context.Context, req *types.OrderRequest) (*types.ValidationResult, error)

	// ActivateKillSwitch halts new orders for the account, optionally
	// flattening every open position.
	ActivateKillSwitch(ctx context.Context, accountID, reason string, flatten bool) error

	// DeactivateKillSwitch lifts the halt.
	DeactivateKillSwitch(accountID, reason string) error

	// GetKillSwitchState reports whether the account's kill switch is active.
	GetKillSwitchState(accountID string) types.KillSwitchState

	// GetRiskLimits returns the limits in force for the account.
	GetRiskLimits(accountID string) types.RiskLimits

	// UpdateRiskLimits replaces the account's limit overrides.
	UpdateRiskLimits(accountID string, limits types.RiskLimits) error

	// GetMetrics returns a point-in-time snapshot of counters and latency
	// percentiles.
	GetMetrics() metrics.Snapshot

	// ExportJournal writes the journal tables as parquet files into dir.
	ExportJournal(dir string) error

	// GetConfigSchema returns the JSON schema for engine configuration.
	GetConfigSchema() (string, error)

	// Close releases the journal. Call after Run has returned.
	Close() error
}
