package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/jthadison/tmt-sub003/pkg/errors"
)

// OrderModification is an explicit change set for a working order. Only the
// fields listed here can change after submission; each one is optional and
// None means leave untouched. Unknown fields are impossible by construction.
type OrderModification struct {
	Units       optional.Option[decimal.Decimal] `yaml:"units" json:"units"`
	Price       optional.Option[decimal.Decimal] `yaml:"price" json:"price"`
	PriceBound  optional.Option[decimal.Decimal] `yaml:"price_bound" json:"price_bound"`
	TimeInForce optional.Option[TimeInForce]     `yaml:"time_in_force" json:"time_in_force"`
	GTDTime     optional.Option[time.Time]       `yaml:"gtd_time" json:"gtd_time"`
	StopLoss    optional.Option[BracketSpec]     `yaml:"stop_loss" json:"stop_loss"`
	TakeProfit  optional.Option[BracketSpec]     `yaml:"take_profit" json:"take_profit"`
}

// IsEmpty reports whether the modification changes nothing.
func (m *OrderModification) IsEmpty() bool {
	return m.Units.IsNone() &&
		m.Price.IsNone() &&
		m.PriceBound.IsNone() &&
		m.TimeInForce.IsNone() &&
		m.GTDTime.IsNone() &&
		m.StopLoss.IsNone() &&
		m.TakeProfit.IsNone()
}

// Validate validates the modification against the order it targets.
func (m *OrderModification) Validate(o *Order) error {
	if m.IsEmpty() {
		return errors.New(errors.ErrCodeInvalidModification, "modification changes nothing")
	}

	if m.Units.IsSome() {
		units := m.Units.Unwrap()
		if units.IsZero() {
			return errors.New(errors.ErrCodeInvalidModification, "units must be non-zero")
		}

		if units.Sign() != o.Units.Sign() {
			return errors.New(errors.ErrCodeInvalidModification, "modification cannot flip order direction")
		}
	}

	if m.Price.IsSome() {
		if o.Kind == OrderKindMarket {
			return errors.New(errors.ErrCodeInvalidModification, "market orders have no price to modify")
		}

		if p := m.Price.Unwrap(); !p.IsPositive() {
			return errors.Newf(errors.ErrCodeInvalidModification, "price must be positive, got %s", p)
		}
	}

	if m.TimeInForce.IsSome() {
		tif := m.TimeInForce.Unwrap()
		if tif == TimeInForceGTD && m.GTDTime.IsNone() && o.GTDTime.IsNone() {
			return errors.New(errors.ErrCodeInvalidModification, "GTD time in force requires gtd_time")
		}
	}

	if m.StopLoss.IsSome() {
		if err := validateBracket(m.StopLoss.Unwrap()); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidModification, "invalid stop loss", err)
		}
	}

	if m.TakeProfit.IsSome() {
		if err := validateBracket(m.TakeProfit.Unwrap()); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidModification, "invalid take profit", err)
		}
	}

	return nil
}

// Apply writes the present fields onto the order. Callers apply to a clone
// and swap it in only after the broker accepts the change.
func (m *OrderModification) Apply(o *Order) {
	if m.Units.IsSome() {
		o.Units = m.Units.Unwrap()
	}

	if m.Price.IsSome() {
		o.Price = optional.Some(m.Price.Unwrap())
	}

	if m.PriceBound.IsSome() {
		o.PriceBound = optional.Some(m.PriceBound.Unwrap())
	}

	if m.TimeInForce.IsSome() {
		o.TimeInForce = m.TimeInForce.Unwrap()
	}

	if m.GTDTime.IsSome() {
		o.GTDTime = optional.Some(m.GTDTime.Unwrap())
	}

	if m.StopLoss.IsSome() {
		o.StopLoss = optional.Some(m.StopLoss.Unwrap())
	}

	if m.TakeProfit.IsSome() {
		o.TakeProfit = optional.Some(m.TakeProfit.Unwrap())
	}
}
