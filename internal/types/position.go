package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
	PositionSideFlat  PositionSide = "FLAT"
)

// Position represents current holdings in one instrument for one account.
// Units are signed: positive long, negative short. AvgPrice is the
// volume-weighted entry price of the open units.
type Position struct {
	ID           string          `yaml:"id" json:"id"`
	AccountID    string          `yaml:"account_id" json:"account_id"`
	Instrument   string          `yaml:"instrument" json:"instrument"`
	Units        decimal.Decimal `yaml:"units" json:"units"`
	AvgPrice     decimal.Decimal `yaml:"avg_price" json:"avg_price"`
	CurrentPrice decimal.Decimal `yaml:"current_price" json:"current_price"`
	// RealizedPnL accumulates profit booked by reductions and reversals over
	// the lifetime of this position record.
	RealizedPnL   decimal.Decimal `yaml:"realized_pnl" json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `yaml:"unrealized_pnl" json:"unrealized_pnl"`
	MarginUsed    decimal.Decimal `yaml:"margin_used" json:"margin_used"`
	MarginRate    decimal.Decimal `yaml:"margin_rate" json:"margin_rate"`
	OpenedAt      time.Time       `yaml:"opened_at" json:"opened_at"`
	// ClosedAt is None while the position is open. Only the terminal snapshot
	// handed out when a fill flattens the position carries a value.
	ClosedAt  optional.Option[time.Time] `yaml:"closed_at" json:"closed_at"`
	UpdatedAt time.Time                  `yaml:"updated_at" json:"updated_at"`
	// OpeningOrderID is the order that opened (or last reversed) the position.
	OpeningOrderID string `yaml:"opening_order_id" json:"opening_order_id"`
}

// Side returns the direction implied by the signed units.
func (p *Position) Side() PositionSide {
	switch {
	case p.Units.IsPositive():
		return PositionSideLong
	case p.Units.IsNegative():
		return PositionSideShort
	default:
		return PositionSideFlat
	}
}

// Notional returns the absolute exposure at the given price.
func (p *Position) Notional(price decimal.Decimal) decimal.Decimal {
	return p.Units.Abs().Mul(price)
}

// ComputeUnrealizedPnL returns the mark to market profit at the given price.
// Signed units make one formula cover both directions: (price - avg) * units.
func (p *Position) ComputeUnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.AvgPrice).Mul(p.Units)
}

// Clone returns a copy of the position. The manager hands out clones so
// callers can never mutate the ledger.
func (p *Position) Clone() *Position {
	clone := *p

	return &clone
}

// Fill is a confirmed execution reported by the broker. Units are signed in
// the direction of the trade.
type Fill struct {
	OrderID    string          `yaml:"order_id" json:"order_id"`
	AccountID  string          `yaml:"account_id" json:"account_id"`
	Instrument string          `yaml:"instrument" json:"instrument"`
	Units      decimal.Decimal `yaml:"units" json:"units"`
	Price      decimal.Decimal `yaml:"price" json:"price"`
	Commission decimal.Decimal `yaml:"commission" json:"commission"`
	Time       time.Time       `yaml:"time" json:"time"`
}

// FillOutcome reports what applying a fill did to the ledger.
type FillOutcome struct {
	// Kind is one of OPEN, PYRAMID, REDUCE, CLOSE, REVERSE.
	Kind string `yaml:"kind" json:"kind"`
	// RealizedPnL is the profit booked by this fill, zero for opens and
	// pyramids.
	RealizedPnL decimal.Decimal `yaml:"realized_pnl" json:"realized_pnl"`
	// Position is a clone of the ledger entry after the fill. A full close
	// returns the terminal snapshot: zero units with ClosedAt set.
	Position *Position `yaml:"position" json:"position"`
}

const (
	FillOutcomeOpen    = "OPEN"
	FillOutcomePyramid = "PYRAMID"
	FillOutcomeReduce  = "REDUCE"
	FillOutcomeClose   = "CLOSE"
	FillOutcomeReverse = "REVERSE"
)
