package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/jthadison/tmt-sub003/pkg/errors"
)

// ExecutionResult is the tagged outcome of a submit, cancel, modify, or
// close operation. Every path produces one: broker rejections carry the
// broker's reason, recovered internal faults carry EXECUTION_EXCEPTION.
type ExecutionResult struct {
	Success       bool                             `yaml:"success" json:"success"`
	OrderID       string                           `yaml:"order_id" json:"order_id"`
	BrokerOrderID optional.Option[string]          `yaml:"broker_order_id" json:"broker_order_id"`
	Status        OrderStatus                      `yaml:"status" json:"status"`
	FillPrice     optional.Option[decimal.Decimal] `yaml:"fill_price" json:"fill_price"`
	FilledUnits   decimal.Decimal                  `yaml:"filled_units" json:"filled_units"`
	RealizedPnL   decimal.Decimal                  `yaml:"realized_pnl" json:"realized_pnl"`
	Commission    decimal.Decimal                  `yaml:"commission" json:"commission"`
	Slippage      optional.Option[decimal.Decimal] `yaml:"slippage" json:"slippage"`
	Latency       time.Duration                    `yaml:"latency" json:"latency"`
	// Code is the stable machine code on failure, empty on success.
	Code    errors.ErrorCode `yaml:"code" json:"code"`
	Message string           `yaml:"message" json:"message"`
	// Warnings carries risk warnings attached by validation even on success.
	Warnings []string `yaml:"warnings" json:"warnings"`
}

// CloseRequest asks for a full or partial position close. Position is
// addressed either by id or by account+instrument. Units, when present, is
// the positive magnitude to close and must not exceed the held units.
type CloseRequest struct {
	PositionID optional.Option[string]          `yaml:"position_id" json:"position_id"`
	AccountID  string                           `yaml:"account_id" json:"account_id"`
	Instrument string                           `yaml:"instrument" json:"instrument"`
	Units      optional.Option[decimal.Decimal] `yaml:"units" json:"units"`
}

// Validate validates the CloseRequest struct.
func (r *CloseRequest) Validate() error {
	if r.PositionID.IsNone() && (r.AccountID == "" || r.Instrument == "") {
		return errors.New(errors.ErrCodeInvalidParameter, "close requires position_id or account_id and instrument")
	}

	if r.Units.IsSome() && !r.Units.Unwrap().IsPositive() {
		return errors.New(errors.ErrCodeInvalidParameter, "close units must be positive")
	}

	return nil
}
