package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/jthadison/tmt-sub003/pkg/errors"
)

type OrderSide string

type OrderKind string

type OrderStatus string

type TimeInForce string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

const (
	OrderKindMarket          OrderKind = "MARKET"
	OrderKindLimit           OrderKind = "LIMIT"
	OrderKindStop            OrderKind = "STOP"
	OrderKindMarketIfTouched OrderKind = "MARKET_IF_TOUCHED"
)

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusSubmitted       OrderStatus = "SUBMITTED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceGTD TimeInForce = "GTD"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// orderTransitions is the full lifecycle graph. Any transition not listed
// here is refused with INVALID_STATE.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:         {OrderStatusSubmitted, OrderStatusRejected, OrderStatusCancelled},
	OrderStatusSubmitted:       {OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusRejected, OrderStatusCancelled, OrderStatusExpired},
	OrderStatusPartiallyFilled: {OrderStatusFilled, OrderStatusCancelled},
}

// CanTransitionTo reports whether the lifecycle graph permits moving from s
// to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// IsTerminal reports whether s is a final state. Terminal orders never
// change again; repeated status reads return identical results.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusRejected, OrderStatusCancelled, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// IsActive reports whether the order still occupies a slot in the active
// order map.
func (s OrderStatus) IsActive() bool {
	return !s.IsTerminal()
}

// BracketSpec describes a dependent stop-loss or take-profit order attached
// to an entry order.
type BracketSpec struct {
	Price       decimal.Decimal `yaml:"price" json:"price"`
	TimeInForce TimeInForce     `yaml:"time_in_force" json:"time_in_force" validate:"omitempty,oneof=GTC GTD"`
}

// OrderRequest is the intake DTO for new orders. Units are signed: positive
// buys, negative sells. Price semantics depend on Kind: LIMIT and
// MARKET_IF_TOUCHED treat it as the limit/touch price, STOP as the trigger
// price; MARKET orders may carry a PriceBound instead to cap slippage.
type OrderRequest struct {
	AccountID     string                           `yaml:"account_id" json:"account_id" validate:"required"`
	Instrument    string                           `yaml:"instrument" json:"instrument" validate:"required"`
	Units         decimal.Decimal                  `yaml:"units" json:"units"`
	Kind          OrderKind                        `yaml:"kind" json:"kind" validate:"required,oneof=MARKET LIMIT STOP MARKET_IF_TOUCHED"`
	TimeInForce   TimeInForce                      `yaml:"time_in_force" json:"time_in_force" validate:"omitempty,oneof=GTC GTD IOC FOK"`
	Price         optional.Option[decimal.Decimal] `yaml:"price" json:"price"`
	PriceBound    optional.Option[decimal.Decimal] `yaml:"price_bound" json:"price_bound"`
	GTDTime       optional.Option[time.Time]       `yaml:"gtd_time" json:"gtd_time"`
	ClientOrderID optional.Option[string]          `yaml:"client_order_id" json:"client_order_id"`
	// StopLoss is the dependent stop loss order. Can be None if not set.
	StopLoss optional.Option[BracketSpec] `yaml:"stop_loss" json:"stop_loss"`
	// TakeProfit is the dependent take profit order. Can be None if not set.
	TakeProfit optional.Option[BracketSpec] `yaml:"take_profit" json:"take_profit"`
	Metadata   map[string]string            `yaml:"metadata" json:"metadata"`
}

// Validate validates the OrderRequest struct.
func (r *OrderRequest) Validate() error {
	validate := validator.New()

	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order request", err)
	}

	if r.Units.IsZero() {
		return errors.New(errors.ErrCodeInvalidOrder, "units must be non-zero")
	}

	switch r.Kind {
	case OrderKindMarket:
		if r.Price.IsSome() {
			return errors.New(errors.ErrCodeInvalidOrder, "market orders must not carry a price, use price_bound to cap slippage")
		}

		if tif := r.TimeInForce; tif != "" && tif != TimeInForceFOK && tif != TimeInForceIOC {
			return errors.Newf(errors.ErrCodeInvalidOrder, "market orders require FOK or IOC time in force, got %s", tif)
		}
	case OrderKindLimit, OrderKindStop, OrderKindMarketIfTouched:
		if r.Price.IsNone() {
			return errors.Newf(errors.ErrCodeInvalidOrder, "%s orders require a price", r.Kind)
		}

		if p := r.Price.Unwrap(); !p.IsPositive() {
			return errors.Newf(errors.ErrCodeInvalidOrder, "price must be positive, got %s", p)
		}
	}

	if r.TimeInForce == TimeInForceGTD && r.GTDTime.IsNone() {
		return errors.New(errors.ErrCodeInvalidOrder, "GTD orders require gtd_time")
	}

	// Validate stop loss if present
	if r.StopLoss.IsSome() {
		if err := validateBracket(r.StopLoss.Unwrap()); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid stop loss", err)
		}
	}

	// Validate take profit if present
	if r.TakeProfit.IsSome() {
		if err := validateBracket(r.TakeProfit.Unwrap()); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid take profit", err)
		}
	}

	return nil
}

func validateBracket(b BracketSpec) error {
	if !b.Price.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidParameter, "bracket price must be positive, got %s", b.Price)
	}

	if tif := b.TimeInForce; tif != "" && tif != TimeInForceGTC && tif != TimeInForceGTD {
		return errors.Newf(errors.ErrCodeInvalidParameter, "bracket time in force must be GTC or GTD, got %s", tif)
	}

	return nil
}

// Side returns the direction implied by the signed units.
func (r *OrderRequest) Side() OrderSide {
	if r.Units.IsNegative() {
		return OrderSideSell
	}

	return OrderSideBuy
}

// Order is the owned lifecycle record for a single order. All mutation goes
// through the order manager; callers receive copies.
type Order struct {
	ID            string                           `yaml:"id" json:"id"`
	ClientOrderID optional.Option[string]          `yaml:"client_order_id" json:"client_order_id"`
	BrokerOrderID optional.Option[string]          `yaml:"broker_order_id" json:"broker_order_id"`
	AccountID     string                           `yaml:"account_id" json:"account_id"`
	Instrument    string                           `yaml:"instrument" json:"instrument"`
	Units         decimal.Decimal                  `yaml:"units" json:"units"`
	FilledUnits   decimal.Decimal                  `yaml:"filled_units" json:"filled_units"`
	Kind          OrderKind                        `yaml:"kind" json:"kind"`
	TimeInForce   TimeInForce                      `yaml:"time_in_force" json:"time_in_force"`
	Price         optional.Option[decimal.Decimal] `yaml:"price" json:"price"`
	PriceBound    optional.Option[decimal.Decimal] `yaml:"price_bound" json:"price_bound"`
	GTDTime       optional.Option[time.Time]       `yaml:"gtd_time" json:"gtd_time"`
	StopLoss      optional.Option[BracketSpec]     `yaml:"stop_loss" json:"stop_loss"`
	TakeProfit    optional.Option[BracketSpec]     `yaml:"take_profit" json:"take_profit"`
	AvgFillPrice  optional.Option[decimal.Decimal] `yaml:"avg_fill_price" json:"avg_fill_price"`
	Status        OrderStatus                      `yaml:"status" json:"status"`
	// RejectCode carries the stable machine code when Status is REJECTED.
	RejectCode   errors.ErrorCode           `yaml:"reject_code" json:"reject_code"`
	RejectReason string                     `yaml:"reject_reason" json:"reject_reason"`
	Commission   decimal.Decimal            `yaml:"commission" json:"commission"`
	CreatedAt    time.Time                  `yaml:"created_at" json:"created_at"`
	SubmittedAt  optional.Option[time.Time] `yaml:"submitted_at" json:"submitted_at"`
	CompletedAt  optional.Option[time.Time] `yaml:"completed_at" json:"completed_at"`
	// Latency is the broker round trip for the placing call.
	Latency    time.Duration     `yaml:"latency" json:"latency"`
	RetryCount int               `yaml:"retry_count" json:"retry_count"`
	Metadata   map[string]string `yaml:"metadata" json:"metadata"`
}

// Side returns the direction implied by the signed units.
func (o *Order) Side() OrderSide {
	if o.Units.IsNegative() {
		return OrderSideSell
	}

	return OrderSideBuy
}

// RemainingUnits returns the units not yet filled.
func (o *Order) RemainingUnits() decimal.Decimal {
	return o.Units.Sub(o.FilledUnits)
}

// Slippage returns the difference between the average fill price and the
// reference price (request price bound or limit price), None when either
// side is unknown.
func (o *Order) Slippage() optional.Option[decimal.Decimal] {
	if o.AvgFillPrice.IsNone() {
		return optional.None[decimal.Decimal]()
	}

	ref := o.Price
	if ref.IsNone() {
		ref = o.PriceBound
	}

	if ref.IsNone() {
		return optional.None[decimal.Decimal]()
	}

	return optional.Some(o.AvgFillPrice.Unwrap().Sub(ref.Unwrap()))
}

// Clone returns a deep copy. Modification applies to a clone first so
// readers never observe a partially applied change.
func (o *Order) Clone() *Order {
	clone := *o

	if o.Metadata != nil {
		clone.Metadata = make(map[string]string, len(o.Metadata))
		for k, v := range o.Metadata {
			clone.Metadata[k] = v
		}
	}

	return &clone
}
