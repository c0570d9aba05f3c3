// Package engine_v1 is the first execution engine implementation. The
// constructor wires the broker gateway, journal, position ledger, risk
// manager, and order manager into one unit; Run supervises the execution
// workers and every background loop under a single errgroup.
package engine_v1

import (
	"context"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jthadison/tmt-sub003/internal/broker"
	"github.com/jthadison/tmt-sub003/internal/config"
	"github.com/jthadison/tmt-sub003/internal/engine"
	"github.com/jthadison/tmt-sub003/internal/journal"
	"github.com/jthadison/tmt-sub003/internal/logger"
	"github.com/jthadison/tmt-sub003/internal/metrics"
	"github.com/jthadison/tmt-sub003/internal/order"
	"github.com/jthadison/tmt-sub003/internal/position"
	"github.com/jthadison/tmt-sub003/internal/risk"
	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

// ExecutionEngineV1 implements the ExecutionEngine interface against a REST
// broker.
type ExecutionEngineV1 struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *metrics.Registry
	gateway  broker.Gateway

	journal   *journal.Journal
	positions *position.Manager
	risk      *risk.Manager
	orders    *order.Manager
}

// NewExecutionEngineV1 wires a complete engine from configuration. The
// returned engine is ready for facade calls, but orders only execute once
// Run is active. A nil log builds a production logger.
func NewExecutionEngineV1(cfg *config.Config, log *logger.Logger) (engine.ExecutionEngine, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrCodeEngineInitFailed, "config is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		var err error

		log, err = logger.NewLogger()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeEngineInitFailed, "build logger", err)
		}
	}

	registry := metrics.NewRegistry(cfg.Broker.LatencyWindow)
	gateway := broker.NewRestGateway(cfg.Broker, cfg.BrokerBaseURL(), log, registry)

	jnl, err := journal.New(cfg.Journal.Path, log)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEngineInitFailed, "open journal", err)
	}

	if err := jnl.Initialize(); err != nil {
		_ = jnl.Close()

		return nil, errors.Wrap(errors.ErrCodeEngineInitFailed, "initialize journal", err)
	}

	positions := position.New(cfg.Engine, cfg.Broker.AccountID, gateway, jnl, log, registry)

	riskManager, err := risk.NewManager(cfg.Risk, risk.Sources{
		Accounts:  positions,
		Prices:    positions,
		Losses:    jnl,
		Flattener: positions,
	}, log, registry)
	if err != nil {
		_ = jnl.Close()

		return nil, errors.Wrap(errors.ErrCodeEngineInitFailed, "build risk manager", err)
	}

	orders := order.New(cfg.Engine, cfg.Broker.AccountID, gateway, riskManager, positions, jnl, log, registry)

	// Queued orders count against margin headroom before the broker knows
	// about them.
	positions.SetPendingCounter(orders.PendingCount)

	log.Debug("execution engine assembled",
		zap.String("environment", cfg.Broker.Environment),
		zap.String("account_id", cfg.Broker.AccountID),
		zap.Int("workers", cfg.Engine.Workers),
		zap.Int("queue_size", cfg.Engine.QueueSize),
	)

	return &ExecutionEngineV1{
		cfg:       cfg,
		log:       log,
		registry:  registry,
		gateway:   gateway,
		journal:   jnl,
		positions: positions,
		risk:      riskManager,
		orders:    orders,
	}, nil
}

// Run implements engine.ExecutionEngine. It seeds the position ledger from
// the broker, then runs the execution workers and every background loop until
// the context is cancelled or one of them fails.
func (e *ExecutionEngineV1) Run(ctx context.Context) error {
	// Export the journal on the way out when configured, even when Run ends
	// on an error.
	defer func() {
		if e.cfg.Journal.ExportDir == "" {
			return
		}

		if err := e.journal.Export(e.cfg.Journal.ExportDir); err != nil {
			e.log.Warn("journal export failed",
				zap.String("dir", e.cfg.Journal.ExportDir),
				zap.Error(err),
			)
		}
	}()

	// Seed the ledger before anything trades so the first risk checks see
	// the broker's open positions.
	if err := e.positions.Reconcile(ctx, e.cfg.Broker.AccountID); err != nil {
		return errors.Wrap(errors.ErrCodeEngineInitFailed, "seed position ledger", err)
	}

	e.log.Info("execution engine running",
		zap.String("environment", e.cfg.Broker.Environment),
		zap.String("account_id", e.cfg.Broker.AccountID),
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error { return e.orders.RunWorkers(groupCtx) })
	group.Go(func() error { return e.orders.RunSweeper(groupCtx) })
	group.Go(func() error { return e.orders.RunJanitor(groupCtx) })
	group.Go(func() error { return e.positions.RunPriceRefresher(groupCtx) })
	group.Go(func() error { return e.positions.RunReconciler(groupCtx) })
	group.Go(func() error { return e.positions.RunSummaryRefresher(groupCtx) })
	group.Go(func() error { return e.risk.RunMonitor(groupCtx, []string{e.cfg.Broker.AccountID}) })

	err := group.Wait()

	e.log.Info("execution engine stopped", zap.Error(err))

	return err
}

// SubmitOrder implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) SubmitOrder(ctx context.Context, req *types.OrderRequest) (*types.ExecutionResult, error) {
	return e.orders.Submit(ctx, req)
}

// ModifyOrder implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) ModifyOrder(ctx context.Context, orderID string, mod types.OrderModification) (*types.ExecutionResult, error) {
	return e.orders.Modify(ctx, orderID, mod)
}

// CancelOrder implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) CancelOrder(ctx context.Context, orderID string) (*types.ExecutionResult, error) {
	return e.orders.Cancel(ctx, orderID)
}

// GetOrderStatus implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) GetOrderStatus(ctx context.Context, orderID string) (*types.Order, error) {
	return e.orders.GetStatus(ctx, orderID)
}

// GetActiveOrders implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) GetActiveOrders(ctx context.Context, accountID optional.Option[string]) []types.Order {
	return e.orders.ListActive(ctx, accountID)
}

// GetOrderHistory implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) GetOrderHistory(accountID string, limit int) ([]journal.OrderRecord, error) {
	return e.journal.OrderHistory(accountID, limit)
}

// ClosePosition implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) ClosePosition(ctx context.Context, req *types.CloseRequest) (*types.ExecutionResult, error) {
	return e.positions.Close(ctx, req)
}

// GetOpenPositions implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) GetOpenPositions(ctx context.Context, accountID string) ([]types.Position, error) {
	return e.positions.OpenPositions(ctx, accountID)
}

// GetAccountSummary implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) GetAccountSummary(ctx context.Context, accountID string) (*types.AccountSummary, error) {
	return e.positions.AccountSummary(ctx, accountID)
}

// ValidateOrder implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) ValidateOrder(ctx context.Context, req *types.OrderRequest) (*types.ValidationResult, error) {
	return e.risk.Validate(ctx, req)
}

// ActivateKillSwitch implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) ActivateKillSwitch(ctx context.Context, accountID, reason string, flatten bool) error {
	return e.risk.Activate(ctx, accountID, reason, flatten)
}

// DeactivateKillSwitch implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) DeactivateKillSwitch(accountID, reason string) error {
	return e.risk.Deactivate(accountID, reason)
}

// GetKillSwitchState implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) GetKillSwitchState(accountID string) types.KillSwitchState {
	return e.risk.State(accountID)
}

// GetRiskLimits implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) GetRiskLimits(accountID string) types.RiskLimits {
	return e.risk.LimitsFor(accountID)
}

// UpdateRiskLimits implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) UpdateRiskLimits(accountID string, limits types.RiskLimits) error {
	return e.risk.UpdateLimits(accountID, limits)
}

// GetMetrics implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) GetMetrics() metrics.Snapshot {
	return e.registry.Snapshot()
}

// ExportJournal implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) ExportJournal(dir string) error {
	return e.journal.Export(dir)
}

// GetConfigSchema implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) GetConfigSchema() (string, error) {
	return engine.GetConfigSchema()
}

// Close implements engine.ExecutionEngine.
func (e *ExecutionEngineV1) Close() error {
	return e.journal.Close()
}

// Verify ExecutionEngineV1 implements engine.ExecutionEngine.
var _ engine.ExecutionEngine = (*ExecutionEngineV1)(nil)
