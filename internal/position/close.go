package position

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jthadison/tmt-sub003/internal/broker"
	"github.com/jthadison/tmt-sub003/internal/journal"
	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

// Close closes all or part of a position through the broker and applies the
// confirmed result to the ledger. The broker call happens outside the book
// mutex; the local apply serializes with concurrent fills afterwards.
func (m *Manager) Close(ctx context.Context, req *types.CloseRequest) (*types.ExecutionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	accountID, instrument, held, err := m.resolveClose(req)
	if err != nil {
		return nil, err
	}

	closeUnits := held.Abs()
	if req.Units.IsSome() {
		closeUnits = req.Units.Unwrap()
		if closeUnits.GreaterThan(held.Abs()) {
			return nil, errors.Newf(errors.ErrCodeUnitsExceedPosition,
				"close units %s exceed held units %s", closeUnits, held.Abs())
		}
	}

	units := optional.None[decimal.Decimal]()
	if req.Units.IsSome() {
		units = optional.Some(closeUnits)
	}

	started := time.Now()

	res, err := m.gateway.ClosePosition(ctx, accountID, instrument, units)
	if err != nil {
		return nil, errors.Wrapf(errors.GetCode(err), err, "close %s for account %s", instrument, accountID)
	}

	latency := time.Since(started)

	// Re-book the confirmed close as an opposite-side fill so the ledger
	// math stays in one place.
	fillUnits := closeUnits.Neg()
	if held.IsNegative() {
		fillUnits = closeUnits
	}

	closeID := uuid.NewString()

	outcome, err := m.ApplyFill(ctx, types.Fill{
		OrderID:    closeID,
		AccountID:  accountID,
		Instrument: instrument,
		Units:      fillUnits,
		Price:      res.Price,
		Commission: res.Commission,
		Time:       res.Time,
	})
	if err != nil {
		return nil, err
	}

	m.recordClose(closeID, accountID, instrument, fillUnits, outcome.Kind, res)

	return &types.ExecutionResult{
		Success:       true,
		OrderID:       closeID,
		BrokerOrderID: optional.None[string](),
		Status:        types.OrderStatusFilled,
		FillPrice:     optional.Some(res.Price),
		FilledUnits:   fillUnits,
		RealizedPnL:   res.RealizedPnL,
		Commission:    res.Commission,
		Slippage:      optional.None[decimal.Decimal](),
		Latency:       latency,
		Code:          "",
		Message:       "",
		Warnings:      nil,
	}, nil
}

// resolveClose maps the request onto an open position and returns its signed
// held units.
func (m *Manager) resolveClose(req *types.CloseRequest) (accountID, instrument string, held decimal.Decimal, err error) {
	if req.PositionID.IsSome() {
		return m.findByID(req.PositionID.Unwrap())
	}

	pos, err := m.Position(req.AccountID, req.Instrument)
	if err != nil {
		return "", "", decimal.Zero, err
	}

	return pos.AccountID, pos.Instrument, pos.Units, nil
}

// findByID scans the books for a position id. The ledger is small (open
// positions only) so a scan beats maintaining a second index.
func (m *Manager) findByID(positionID string) (accountID, instrument string, held decimal.Decimal, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for acct, b := range m.books {
		b.mu.Lock()
		for _, pos := range b.positions {
			if pos.ID == positionID {
				units := pos.Units
				name := pos.Instrument
				b.mu.Unlock()

				return acct, name, units, nil
			}
		}
		b.mu.Unlock()
	}

	return "", "", decimal.Zero, errors.Newf(errors.ErrCodePositionNotFound, "no open position with id %s", positionID)
}

// recordClose journals the close execution so realized P&L feeds the daily
// loss window.
func (m *Manager) recordClose(closeID, accountID, instrument string, units decimal.Decimal, kind string, res *broker.CloseResult) {
	if m.recorder == nil {
		return
	}

	executedAt := res.Time
	if executedAt.IsZero() {
		executedAt = time.Now()
	}

	err := m.recorder.RecordExecution(journal.Execution{
		OrderID:     closeID,
		AccountID:   accountID,
		Instrument:  instrument,
		Outcome:     kind,
		Units:       units,
		Price:       res.Price,
		RealizedPnL: res.RealizedPnL,
		Commission:  res.Commission,
		ExecutedAt:  executedAt,
	})
	if err != nil {
		m.log.Error("close execution not journaled",
			zap.String("account_id", accountID),
			zap.String("instrument", instrument),
			zap.Error(err),
		)
	}
}

// FlattenAll closes every open position for the account. It keeps going on
// individual failures so one stuck instrument cannot block the rest, then
// reports what could not be closed.
func (m *Manager) FlattenAll(ctx context.Context, accountID string) error {
	positions, err := m.OpenPositions(ctx, accountID)
	if err != nil {
		return err
	}

	var failed []string

	for _, pos := range positions {
		req := &types.CloseRequest{
			PositionID: optional.None[string](),
			AccountID:  accountID,
			Instrument: pos.Instrument,
			Units:      optional.None[decimal.Decimal](),
		}

		if _, err := m.Close(ctx, req); err != nil {
			m.log.Error("flatten close failed",
				zap.String("account_id", accountID),
				zap.String("instrument", pos.Instrument),
				zap.Error(err),
			)

			failed = append(failed, pos.Instrument)
		}
	}

	if len(failed) > 0 {
		return errors.Newf(errors.ErrCodeBrokerError, "flatten left %s open for account %s", strings.Join(failed, ", "), accountID)
	}

	return nil
}
