package order

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jthadison/tmt-sub003/internal/broker"
	"github.com/jthadison/tmt-sub003/internal/journal"
	"github.com/jthadison/tmt-sub003/internal/metrics"
	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

// opExecution is the latency tracking key for the full placement attempt,
// queue wait excluded.
const opExecution = "order_execution"

// task asks a worker to run one broker placement. done, when non-nil,
// receives the outcome exactly once and must be buffered so a worker never
// blocks on a caller that stopped waiting.
type task struct {
	orderID string
	done    chan *types.ExecutionResult
}

// RunWorkers drains the execution queue with a fixed pool until ctx ends.
// Tasks left queued at shutdown are abandoned; their orders stay queryable.
func (m *Manager) RunWorkers(ctx context.Context) error {
	m.log.Info("execution workers started",
		zap.Int("workers", m.cfg.Workers),
		zap.Int("queue_size", m.cfg.QueueSize),
	)

	group, groupCtx := errgroup.WithContext(ctx)

	for i := 0; i < m.cfg.Workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-groupCtx.Done():
					return groupCtx.Err()
				case t := <-m.tasks:
					m.runTask(groupCtx, t)
				}
			}
		})
	}

	return group.Wait()
}

// runTask executes one placement and delivers the outcome to a waiting
// submitter, if any.
func (m *Manager) runTask(ctx context.Context, t task) {
	result := m.execute(ctx, t.orderID)

	if t.done != nil {
		t.done <- result
	}
}

// execute performs the single broker placement attempt for an order. A panic
// anywhere in the attempt becomes an EXECUTION_EXCEPTION outcome so the
// worker survives and the caller still receives a result.
func (m *Manager) execute(ctx context.Context, orderID string) (result *types.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = m.faultOutcome(r, orderID)
		}
	}()

	if !m.beginProcessing(orderID) {
		snap := m.snapshot(orderID)
		if snap == nil {
			return missingResult(orderID)
		}

		return resultForOrder(snap, decimal.Zero, errors.ErrCodeDuplicateOrder,
			"an execution attempt is already in flight")
	}
	defer m.endProcessing(orderID)

	now := time.Now()

	ord := m.mutate(orderID, func(o *types.Order) {
		if o.Status == types.OrderStatusPending {
			o.Status = types.OrderStatusSubmitted
			o.SubmittedAt = optional.Some(now)
		}
	})
	if ord == nil {
		// Cancelled or finalized while queued; nothing to place.
		if cached, ok := m.completed.get(orderID); ok {
			return resultForOrder(cached, decimal.Zero, errors.ErrCodeInvalidState,
				fmt.Sprintf("order reached %s before placement", cached.Status))
		}

		return missingResult(orderID)
	}

	started := time.Now()

	var placement *broker.PlacementResult
	var err error

	if ord.Kind == types.OrderKindMarket {
		placement, err = m.gateway.ExecuteMarketOrder(ctx, ord)
	} else {
		placement, err = m.gateway.SubmitPendingOrder(ctx, ord)
	}

	latency := time.Since(started)
	m.registry.Latency().Observe(opExecution, latency, err == nil)

	if err != nil {
		code := errors.GetCode(err)
		message := err.Error()

		if ctx.Err() != nil {
			code = errors.ErrCodeEngineShutdown
			message = "placement aborted by shutdown; broker outcome unknown"
		}

		return m.commitRejected(orderID, code, message, latency)
	}

	return m.commitPlacement(ctx, orderID, placement, latency)
}

// commitPlacement applies the broker's placement answer to the order.
func (m *Manager) commitPlacement(ctx context.Context, orderID string, placement *broker.PlacementResult, latency time.Duration) *types.ExecutionResult {
	switch placement.Status {
	case types.OrderStatusFilled:
		return m.commitFill(ctx, orderID, placement, latency)

	case types.OrderStatusCancelled:
		// The broker accepted the order and immediately cancelled it, as with
		// a halted market or a violated price bound. To the caller that is a
		// rejection carrying the broker's reason.
		return m.commitRejected(orderID, errors.ErrCodeBrokerRejected, placement.Reason, latency)

	default:
		accepted := m.mutate(orderID, func(o *types.Order) {
			o.BrokerOrderID = optional.Some(placement.BrokerOrderID)
			o.Latency = latency
		})
		if accepted == nil {
			return missingResult(orderID)
		}

		m.log.Info("order resting at broker",
			zap.String("order_id", orderID),
			zap.String("broker_order_id", placement.BrokerOrderID),
			zap.String("instrument", accepted.Instrument),
		)

		return resultForOrder(accepted, decimal.Zero, "", "")
	}
}

// commitFill books the fill into the ledger, finalizes the order, and
// records the execution leg.
func (m *Manager) commitFill(ctx context.Context, orderID string, placement *broker.PlacementResult, latency time.Duration) *types.ExecutionResult {
	snap := m.snapshot(orderID)
	if snap == nil {
		return missingResult(orderID)
	}

	price := placement.FillPrice.Unwrap()

	outcome, err := m.filler.ApplyFill(ctx, types.Fill{
		OrderID:    orderID,
		AccountID:  snap.AccountID,
		Instrument: snap.Instrument,
		Units:      placement.FilledUnits,
		Price:      price,
		Commission: placement.Commission,
		Time:       placement.Time,
	})
	if err != nil {
		// The broker filled the order, so refusing the ledger entry leaves
		// money unaccounted. Surface loudly; reconciliation repairs the book.
		m.log.Error("filled order not booked",
			zap.String("order_id", orderID),
			zap.String("account_id", snap.AccountID),
			zap.Error(err),
		)
	}

	filled := m.complete(orderID, types.OrderStatusFilled, func(o *types.Order) {
		o.BrokerOrderID = optional.Some(placement.BrokerOrderID)
		o.FilledUnits = placement.FilledUnits
		o.AvgFillPrice = optional.Some(price)
		o.Commission = placement.Commission
		o.Latency = latency
	})
	if filled == nil {
		return missingResult(orderID)
	}

	kind := types.FillOutcomeOpen
	if outcome != nil {
		kind = outcome.Kind
	}

	m.registry.Inc(metrics.CounterOrdersFilled)
	m.journalExecution(journal.Execution{
		OrderID:     orderID,
		AccountID:   filled.AccountID,
		Instrument:  filled.Instrument,
		Outcome:     kind,
		Units:       placement.FilledUnits,
		Price:       price,
		RealizedPnL: placement.RealizedPnL,
		Commission:  placement.Commission,
		ExecutedAt:  placement.Time,
	})

	m.log.Info("order filled",
		zap.String("order_id", orderID),
		zap.String("account_id", filled.AccountID),
		zap.String("instrument", filled.Instrument),
		zap.String("units", placement.FilledUnits.String()),
		zap.String("price", price.String()),
		zap.Duration("latency", latency),
	)

	return resultForOrder(filled, placement.RealizedPnL, "", "")
}

// commitRejected finalizes a failed placement with the captured reason.
func (m *Manager) commitRejected(orderID string, code errors.ErrorCode, message string, latency time.Duration) *types.ExecutionResult {
	rejected := m.complete(orderID, types.OrderStatusRejected, func(o *types.Order) {
		o.RejectCode = code
		o.RejectReason = message
		o.Latency = latency
	})
	if rejected == nil {
		return missingResult(orderID)
	}

	m.registry.Inc(metrics.CounterOrdersRejected)
	m.log.Warn("order rejected",
		zap.String("order_id", orderID),
		zap.String("account_id", rejected.AccountID),
		zap.String("instrument", rejected.Instrument),
		zap.String("code", string(code)),
		zap.String("reason", message),
	)

	return resultForOrder(rejected, decimal.Zero, code, message)
}

// faultOutcome converts a recovered execution panic into a terminal order
// and an EXECUTION_EXCEPTION result.
func (m *Manager) faultOutcome(r any, orderID string) *types.ExecutionResult {
	m.registry.Inc(metrics.CounterExecutionExceptions)

	accountID := ""
	if snap := m.snapshot(orderID); snap != nil {
		accountID = snap.AccountID
	}

	m.log.Error("execution panic",
		zap.String("order_id", orderID),
		zap.String("account_id", accountID),
		zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()),
	)

	message := fmt.Sprintf("internal execution fault: %v", r)

	rejected := m.complete(orderID, types.OrderStatusRejected, func(o *types.Order) {
		o.RejectCode = errors.ErrCodeExecutionException
		o.RejectReason = message
	})
	if rejected == nil {
		if snap := m.snapshot(orderID); snap != nil {
			return resultForOrder(snap, decimal.Zero, errors.ErrCodeExecutionException, message)
		}

		return missingResult(orderID)
	}

	m.registry.Inc(metrics.CounterOrdersRejected)

	return resultForOrder(rejected, decimal.Zero, errors.ErrCodeExecutionException, message)
}
