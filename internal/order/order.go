// Package order owns the order lifecycle from intake to terminal state:
// request validation, a pre-trade risk verdict, asynchronous execution
// through a bounded worker pool, and the bookkeeping that keeps every
// outcome queryable afterwards.
package order

import (
	"context"
	"fmt"
	"runtime/debug"
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

// Validator issues the pre-trade verdict for an order request.
type Validator interface {
	// Validate returns the risk verdict, or an error when the account state
	// needed for the checks could not be gathered.
	Validate(ctx context.Context, req *types.OrderRequest) (*types.ValidationResult, error)
}

// Filler applies confirmed executions to the position ledger.
type Filler interface {
	// ApplyFill books one confirmed execution.
	ApplyFill(ctx context.Context, fill types.Fill) (*types.FillOutcome, error)
}

// Recorder persists the order audit trail. A nil recorder disables it.
type Recorder interface {
	// RecordOrder writes the order's audit row.
	RecordOrder(order *types.Order) error
	// RecordExecution appends one executed fill leg.
	RecordExecution(execution journal.Execution) error
}

// Manager owns every order the engine has seen. Active orders live in a map
// owned by this manager and are mutated only under its lock; completed orders
// move to a TTL cache so status queries stay answerable after the fact.
type Manager struct {
	cfg       config.EngineConfig
	log       *logger.Logger
	registry  *metrics.Registry
	gateway   broker.Gateway
	validator Validator
	filler    Filler
	recorder  Recorder

	// accountID is the default broker account used when a status query falls
	// through the local maps to the broker.
	accountID string

	mu     sync.RWMutex
	active map[string]*types.Order
	// clientIDs maps the client order ids of active orders to order ids so a
	// duplicate submission is refused before it can reach the broker.
	clientIDs map[string]string
	// processing holds order ids with a broker mutation in flight. At most
	// one placement, replacement, or cancel per order runs at a time.
	processing map[string]struct{}

	completed *completedCache
	tasks     chan task
}

// New builds the manager. The recorder may be nil when the audit trail is not
// needed, as in tests.
func New(cfg config.EngineConfig, accountID string, gateway broker.Gateway, validator Validator, filler Filler, recorder Recorder, log *logger.Logger, registry *metrics.Registry) *Manager {
	return &Manager{
		cfg:        cfg,
		log:        log,
		registry:   registry,
		gateway:    gateway,
		validator:  validator,
		filler:     filler,
		recorder:   recorder,
		accountID:  accountID,
		mu:         sync.RWMutex{},
		active:     make(map[string]*types.Order),
		clientIDs:  make(map[string]string),
		processing: make(map[string]struct{}),
		completed:  newCompletedCache(cfg.CompletedTTL(), cfg.CompletedCapacity),
		tasks:      make(chan task, cfg.QueueSize),
	}
}

// Submit runs the intake pipeline: request validation, risk validation,
// registration, then execution. Market orders wait for the broker outcome up
// to the configured market timeout; resting orders return once queued and
// complete asynchronously. Submissions refused before an order exists
// (malformed request, duplicate client order id) return an error; from the
// moment an order is built the caller always receives a result, including
// for recovered internal faults.
func (m *Manager) Submit(ctx context.Context, req *types.OrderRequest) (result *types.ExecutionResult, err error) {
	orderID := ""

	defer func() {
		if r := recover(); r != nil {
			result = m.faultResult(r, orderID, req.AccountID)
			err = nil
		}
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	ord := buildOrder(req)
	orderID = ord.ID

	verdict, err := m.validator.Validate(ctx, req)
	if err != nil {
		// Fail closed: an account whose state cannot be read does not trade.
		return m.rejectNew(ord, errors.GetCode(err), err.Error()), nil
	}

	if !verdict.Valid {
		res := m.rejectNew(ord, verdict.Code, verdict.Message)
		res.Warnings = verdict.Warnings

		return res, nil
	}

	if err := m.register(ord); err != nil {
		return nil, err
	}

	m.registry.Inc(metrics.CounterOrdersSubmitted)

	if ord.Kind == types.OrderKindMarket {
		return m.executeMarket(ctx, ord, verdict.Warnings)
	}

	return m.executeResting(ctx, ord, verdict.Warnings)
}

// executeMarket queues the placement and waits for the worker's outcome. On
// timeout the placement keeps running; the caller gets a timeout result and
// polls status for the eventual outcome.
func (m *Manager) executeMarket(ctx context.Context, ord *types.Order, warnings []string) (*types.ExecutionResult, error) {
	done := make(chan *types.ExecutionResult, 1)

	if !m.enqueue(ctx, task{orderID: ord.ID, done: done}) {
		res := m.rejectQueued(ord.ID)
		res.Warnings = warnings

		return res, nil
	}

	timer := time.NewTimer(m.cfg.MarketTimeout())
	defer timer.Stop()

	select {
	case res := <-done:
		res.Warnings = warnings

		return res, nil
	case <-timer.C:
	case <-ctx.Done():
	}

	snap := m.snapshot(ord.ID)
	if snap == nil {
		snap = ord
	}

	res := resultForOrder(snap, decimal.Zero, errors.ErrCodeBrokerTimeout,
		"market order still executing; poll status for the outcome")
	res.Warnings = warnings

	return res, nil
}

// executeResting marks the order submitted into the pipeline and queues the
// broker placement. The caller gets the queued snapshot; completion is
// asynchronous.
func (m *Manager) executeResting(ctx context.Context, ord *types.Order, warnings []string) (*types.ExecutionResult, error) {
	now := time.Now()

	snap := m.mutate(ord.ID, func(o *types.Order) {
		o.Status = types.OrderStatusSubmitted
		o.SubmittedAt = optional.Some(now)
	})
	if snap == nil {
		return missingResult(ord.ID), nil
	}

	if !m.enqueue(ctx, task{orderID: ord.ID, done: nil}) {
		res := m.rejectQueued(ord.ID)
		res.Warnings = warnings

		return res, nil
	}

	res := resultForOrder(snap, decimal.Zero, "", "")
	res.Warnings = warnings

	return res, nil
}

// enqueue hands a task to the worker pool, waiting when the queue is full so
// inbound volume cannot grow the in-flight set without bound.
func (m *Manager) enqueue(ctx context.Context, t task) bool {
	select {
	case m.tasks <- t:
		return true
	case <-ctx.Done():
		return false
	}
}

// register admits the order into the active map. Client order ids are unique
// among active orders, so a concurrent duplicate submission cannot produce a
// second broker attempt.
func (m *Manager) register(ord *types.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ord.ClientOrderID.IsSome() {
		clientID := ord.ClientOrderID.Unwrap()
		if existing, ok := m.clientIDs[clientID]; ok {
			return errors.Newf(errors.ErrCodeDuplicateOrder,
				"client order id %s is already active as order %s", clientID, existing)
		}

		m.clientIDs[clientID] = ord.ID
	}

	m.active[ord.ID] = ord

	return nil
}

// rejectNew finalizes an order that never reached the active map. It goes
// straight to the completed cache so its outcome stays queryable.
func (m *Manager) rejectNew(ord *types.Order, code errors.ErrorCode, message string) *types.ExecutionResult {
	now := time.Now()
	ord.Status = types.OrderStatusRejected
	ord.RejectCode = code
	ord.RejectReason = message
	ord.CompletedAt = optional.Some(now)

	m.completed.put(ord, now)
	m.registry.Inc(metrics.CounterOrdersRejected)
	m.journalOrder(ord)

	m.log.Info("order refused before submission",
		zap.String("order_id", ord.ID),
		zap.String("account_id", ord.AccountID),
		zap.String("instrument", ord.Instrument),
		zap.String("code", string(code)),
	)

	return resultForOrder(ord, decimal.Zero, code, message)
}

// rejectQueued finalizes an order whose task never reached the worker pool.
func (m *Manager) rejectQueued(orderID string) *types.ExecutionResult {
	message := "execution queue saturated"

	rejected := m.complete(orderID, types.OrderStatusRejected, func(o *types.Order) {
		o.RejectCode = errors.ErrCodeRateLimited
		o.RejectReason = message
	})
	if rejected == nil {
		if snap := m.snapshot(orderID); snap != nil {
			return resultForOrder(snap, decimal.Zero, errors.ErrCodeRateLimited, message)
		}

		return missingResult(orderID)
	}

	m.registry.Inc(metrics.CounterOrdersRejected)
	m.log.Warn("order not enqueued",
		zap.String("order_id", orderID),
		zap.Int("queue_size", m.cfg.QueueSize),
	)

	return resultForOrder(rejected, decimal.Zero, errors.ErrCodeRateLimited, message)
}

// mutate runs fn on an active order under the manager lock and returns a
// clone of the result, nil when the order is not active.
func (m *Manager) mutate(orderID string, fn func(*types.Order)) *types.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	ord, ok := m.active[orderID]
	if !ok {
		return nil
	}

	fn(ord)

	return ord.Clone()
}

// complete moves an active order to a terminal status and into the completed
// cache, returning a clone. Returns nil when the order is not active or the
// transition is not legal, so no order ever leaves a terminal state.
func (m *Manager) complete(orderID string, status types.OrderStatus, fn func(*types.Order)) *types.Order {
	now := time.Now()

	m.mu.Lock()

	ord, ok := m.active[orderID]
	if !ok {
		m.mu.Unlock()

		return nil
	}

	if !ord.Status.CanTransitionTo(status) {
		from := ord.Status
		m.mu.Unlock()
		m.log.Warn("refused illegal order transition",
			zap.String("order_id", orderID),
			zap.String("from", string(from)),
			zap.String("to", string(status)),
		)

		return nil
	}

	ord.Status = status
	if fn != nil {
		fn(ord)
	}

	ord.CompletedAt = optional.Some(now)

	delete(m.active, orderID)

	if ord.ClientOrderID.IsSome() {
		delete(m.clientIDs, ord.ClientOrderID.Unwrap())
	}
	m.mu.Unlock()

	m.completed.put(ord, now)
	m.journalOrder(ord)

	return ord.Clone()
}

// activeOrder returns a clone of an active order, nil when there is none.
func (m *Manager) activeOrder(orderID string) *types.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if ord, ok := m.active[orderID]; ok {
		return ord.Clone()
	}

	return nil
}

// snapshot returns the current view of an order from the active map or the
// completed cache, nil when unknown.
func (m *Manager) snapshot(orderID string) *types.Order {
	if ord := m.activeOrder(orderID); ord != nil {
		return ord
	}

	if cached, ok := m.completed.get(orderID); ok {
		return cached
	}

	return nil
}

// beginProcessing claims the single broker mutation slot for an order.
func (m *Manager) beginProcessing(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, inFlight := m.processing[orderID]; inFlight {
		return false
	}

	m.processing[orderID] = struct{}{}

	return true
}

// endProcessing releases the mutation slot.
func (m *Manager) endProcessing(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.processing, orderID)
}

// journalOrder writes the order's audit row. Journal failures are logged and
// swallowed; the trade path never blocks on the audit trail.
func (m *Manager) journalOrder(ord *types.Order) {
	if m.recorder == nil {
		return
	}

	if err := m.recorder.RecordOrder(ord); err != nil {
		m.log.Error("order not journaled",
			zap.String("order_id", ord.ID),
			zap.String("account_id", ord.AccountID),
			zap.Error(err),
		)
	}
}

// journalExecution appends one executed fill leg, stamping the execution
// time when the broker did not provide one.
func (m *Manager) journalExecution(execution journal.Execution) {
	if m.recorder == nil {
		return
	}

	if execution.ExecutedAt.IsZero() {
		execution.ExecutedAt = time.Now()
	}

	if err := m.recorder.RecordExecution(execution); err != nil {
		m.log.Error("execution not journaled",
			zap.String("order_id", execution.OrderID),
			zap.String("account_id", execution.AccountID),
			zap.Error(err),
		)
	}
}

// faultResult converts a recovered panic at an operation boundary into a
// typed failure so the caller still receives a result. The order, if any, is
// left as it was.
func (m *Manager) faultResult(r any, orderID, accountID string) *types.ExecutionResult {
	m.registry.Inc(metrics.CounterExecutionExceptions)
	m.log.Error("internal fault in order operation",
		zap.String("order_id", orderID),
		zap.String("account_id", accountID),
		zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()),
	)

	message := fmt.Sprintf("internal fault: %v", r)

	if snap := m.snapshot(orderID); snap != nil {
		return resultForOrder(snap, decimal.Zero, errors.ErrCodeExecutionException, message)
	}

	res := missingResult(orderID)
	res.Code = errors.ErrCodeExecutionException
	res.Message = message

	return res
}

// buildOrder turns a validated request into a PENDING order.
func buildOrder(req *types.OrderRequest) *types.Order {
	metadata := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	return &types.Order{
		ID:            uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		BrokerOrderID: optional.None[string](),
		AccountID:     req.AccountID,
		Instrument:    req.Instrument,
		Units:         req.Units,
		FilledUnits:   decimal.Zero,
		Kind:          req.Kind,
		TimeInForce:   req.TimeInForce,
		Price:         req.Price,
		PriceBound:    req.PriceBound,
		GTDTime:       req.GTDTime,
		StopLoss:      req.StopLoss,
		TakeProfit:    req.TakeProfit,
		AvgFillPrice:  optional.None[decimal.Decimal](),
		Status:        types.OrderStatusPending,
		RejectCode:    "",
		RejectReason:  "",
		Commission:    decimal.Zero,
		CreatedAt:     time.Now(),
		SubmittedAt:   optional.None[time.Time](),
		CompletedAt:   optional.None[time.Time](),
		Latency:       0,
		RetryCount:    0,
		Metadata:      metadata,
	}
}

// resultForOrder derives the caller-facing result from an order snapshot. An
// empty code means success.
func resultForOrder(ord *types.Order, realized decimal.Decimal, code errors.ErrorCode, message string) *types.ExecutionResult {
	return &types.ExecutionResult{
		Success:       code == "",
		OrderID:       ord.ID,
		BrokerOrderID: ord.BrokerOrderID,
		Status:        ord.Status,
		FillPrice:     ord.AvgFillPrice,
		FilledUnits:   ord.FilledUnits,
		RealizedPnL:   realized,
		Commission:    ord.Commission,
		Slippage:      ord.Slippage(),
		Latency:       ord.Latency,
		Code:          code,
		Message:       message,
		Warnings:      nil,
	}
}

// missingResult reports an order id the manager does not track.
func missingResult(orderID string) *types.ExecutionResult {
	return &types.ExecutionResult{
		Success:       false,
		OrderID:       orderID,
		BrokerOrderID: optional.None[string](),
		Status:        "",
		FillPrice:     optional.None[decimal.Decimal](),
		FilledUnits:   decimal.Zero,
		RealizedPnL:   decimal.Zero,
		Commission:    decimal.Zero,
		Slippage:      optional.None[decimal.Decimal](),
		Latency:       0,
		Code:          errors.ErrCodeOrderNotFound,
		Message:       "order is not tracked",
		Warnings:      nil,
	}
}
