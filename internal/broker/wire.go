package broker

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

// Wire DTOs for the broker's v20-style REST API. All money fields travel as
// decimal strings and are parsed exactly; floats never touch order math.

type orderSpec struct {
	Type             string            `json:"type"`
	Instrument       string            `json:"instrument"`
	Units            string            `json:"units"`
	TimeInForce      string            `json:"timeInForce,omitempty"`
	Price            string            `json:"price,omitempty"`
	PriceBound       string            `json:"priceBound,omitempty"`
	GTDTime          string            `json:"gtdTime,omitempty"`
	StopLossOnFill   *bracketOnFill    `json:"stopLossOnFill,omitempty"`
	TakeProfitOnFill *bracketOnFill    `json:"takeProfitOnFill,omitempty"`
	ClientExtensions *clientExtensions `json:"clientExtensions,omitempty"`
}

type bracketOnFill struct {
	Price       string `json:"price"`
	TimeInForce string `json:"timeInForce,omitempty"`
}

type clientExtensions struct {
	ID  string `json:"id,omitempty"`
	Tag string `json:"tag,omitempty"`
}

type createOrderRequest struct {
	Order orderSpec `json:"order"`
}

type transaction struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Time         string `json:"time"`
	OrderID      string `json:"orderID,omitempty"`
	Instrument   string `json:"instrument,omitempty"`
	Units        string `json:"units,omitempty"`
	Price        string `json:"price,omitempty"`
	Commission   string `json:"commission,omitempty"`
	PL           string `json:"pl,omitempty"`
	Reason       string `json:"reason,omitempty"`
	RejectReason string `json:"rejectReason,omitempty"`
}

type createOrderResponse struct {
	OrderCreateTransaction *transaction `json:"orderCreateTransaction"`
	OrderFillTransaction   *transaction `json:"orderFillTransaction"`
	OrderCancelTransaction *transaction `json:"orderCancelTransaction"`
	OrderRejectTransaction *transaction `json:"orderRejectTransaction"`
	LastTransactionID      string       `json:"lastTransactionID"`
}

type cancelOrderResponse struct {
	OrderCancelTransaction *transaction `json:"orderCancelTransaction"`
	LastTransactionID      string       `json:"lastTransactionID"`
}

type closePositionRequest struct {
	LongUnits  string `json:"longUnits,omitempty"`
	ShortUnits string `json:"shortUnits,omitempty"`
}

type closePositionResponse struct {
	LongOrderFillTransaction  *transaction `json:"longOrderFillTransaction"`
	ShortOrderFillTransaction *transaction `json:"shortOrderFillTransaction"`
	LastTransactionID         string       `json:"lastTransactionID"`
}

type accountSummaryResponse struct {
	Account struct {
		ID                string `json:"id"`
		Currency          string `json:"currency"`
		Balance           string `json:"balance"`
		NAV               string `json:"NAV"`
		PL                string `json:"pl"`
		UnrealizedPL      string `json:"unrealizedPL"`
		MarginUsed        string `json:"marginUsed"`
		MarginAvailable   string `json:"marginAvailable"`
		OpenPositionCount int    `json:"openPositionCount"`
		PendingOrderCount int    `json:"pendingOrderCount"`
	} `json:"account"`
	LastTransactionID string `json:"lastTransactionID"`
}

type positionSide struct {
	Units        string `json:"units"`
	AveragePrice string `json:"averagePrice"`
	UnrealizedPL string `json:"unrealizedPL"`
	PL           string `json:"pl"`
}

type wirePosition struct {
	Instrument   string       `json:"instrument"`
	Long         positionSide `json:"long"`
	Short        positionSide `json:"short"`
	MarginUsed   string       `json:"marginUsed"`
	UnrealizedPL string       `json:"unrealizedPL"`
}

type openPositionsResponse struct {
	Positions         []wirePosition `json:"positions"`
	LastTransactionID string         `json:"lastTransactionID"`
}

type priceBucket struct {
	Price     string `json:"price"`
	Liquidity int64  `json:"liquidity"`
}

type wirePrice struct {
	Instrument string        `json:"instrument"`
	Time       string        `json:"time"`
	Tradeable  bool          `json:"tradeable"`
	Bids       []priceBucket `json:"bids"`
	Asks       []priceBucket `json:"asks"`
}

type pricingResponse struct {
	Prices []wirePrice `json:"prices"`
	Time   string      `json:"time"`
}

type wireInstrument struct {
	Name              string `json:"name"`
	DisplayName       string `json:"displayName"`
	PipLocation       int    `json:"pipLocation"`
	MarginRate        string `json:"marginRate"`
	MinimumTradeSize  string `json:"minimumTradeSize"`
	MaximumOrderUnits string `json:"maximumOrderUnits"`
}

type instrumentsResponse struct {
	Instruments []wireInstrument `json:"instruments"`
}

type wireOrder struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	Instrument    string `json:"instrument"`
	Units         string `json:"units"`
	FilledUnits   string `json:"filledUnits"`
	AveragePrice  string `json:"averagePrice"`
	CreateTime    string `json:"createTime"`
	FilledTime    string `json:"filledTime"`
	CancelledTime string `json:"cancelledTime"`
}

type getOrderResponse struct {
	Order             wireOrder `json:"order"`
	LastTransactionID string    `json:"lastTransactionID"`
}

type brokerErrorBody struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Conversions

// buildOrderSpec converts an order into the broker's wire representation.
func buildOrderSpec(order *types.Order) orderSpec {
	spec := orderSpec{
		Type:             string(order.Kind),
		Instrument:       order.Instrument,
		Units:            order.Units.String(),
		TimeInForce:      string(order.TimeInForce),
		Price:            "",
		PriceBound:       "",
		GTDTime:          "",
		StopLossOnFill:   nil,
		TakeProfitOnFill: nil,
		ClientExtensions: nil,
	}

	if order.Price.IsSome() {
		spec.Price = order.Price.Unwrap().String()
	}

	if order.PriceBound.IsSome() {
		spec.PriceBound = order.PriceBound.Unwrap().String()
	}

	if order.GTDTime.IsSome() {
		spec.GTDTime = order.GTDTime.Unwrap().UTC().Format(time.RFC3339Nano)
	}

	if order.StopLoss.IsSome() {
		stopLoss := order.StopLoss.Unwrap()
		spec.StopLossOnFill = &bracketOnFill{
			Price:       stopLoss.Price.String(),
			TimeInForce: string(stopLoss.TimeInForce),
		}
	}

	if order.TakeProfit.IsSome() {
		takeProfit := order.TakeProfit.Unwrap()
		spec.TakeProfitOnFill = &bracketOnFill{
			Price:       takeProfit.Price.String(),
			TimeInForce: string(takeProfit.TimeInForce),
		}
	}

	if order.ClientOrderID.IsSome() {
		spec.ClientExtensions = &clientExtensions{
			ID:  order.ClientOrderID.Unwrap(),
			Tag: "",
		}
	}

	return spec
}

// parseWireDecimal parses a decimal string field exactly, treating empty as
// zero.
func parseWireDecimal(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(errors.ErrCodeBrokerError, err, "parse %s %q", field, s)
	}

	return d, nil
}

// parseWireTime parses an RFC3339 timestamp, returning the zero time for
// empty input.
func parseWireTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}

	return t
}

// placementFromFill builds a PlacementResult from a fill transaction.
func placementFromFill(txn *transaction, brokerOrderID string) (*PlacementResult, error) {
	price, err := parseWireDecimal(txn.Price, "fill price")
	if err != nil {
		return nil, err
	}

	units, err := parseWireDecimal(txn.Units, "fill units")
	if err != nil {
		return nil, err
	}

	commission, err := parseWireDecimal(txn.Commission, "commission")
	if err != nil {
		return nil, err
	}

	realized, err := parseWireDecimal(txn.PL, "pl")
	if err != nil {
		return nil, err
	}

	return &PlacementResult{
		BrokerOrderID: brokerOrderID,
		Status:        types.OrderStatusFilled,
		FillPrice:     optional.Some(price),
		FilledUnits:   units,
		Commission:    commission,
		RealizedPnL:   realized,
		Reason:        "",
		Time:          parseWireTime(txn.Time),
	}, nil
}

// placementFromCreate interprets an order creation response. A fill
// transaction wins; a cancel transaction means the broker accepted the order
// then immediately cancelled it, as with an unfillable FOK market order;
// otherwise the order is resting.
func placementFromCreate(res *createOrderResponse) (*PlacementResult, error) {
	if res.OrderRejectTransaction != nil {
		reason := res.OrderRejectTransaction.RejectReason

		return nil, errors.Wrap(errors.ErrCodeBrokerRejected,
			"broker rejected order",
			errors.NewBrokerError(0, reason, false, reason))
	}

	brokerOrderID := ""
	createdAt := time.Time{}

	if res.OrderCreateTransaction != nil {
		brokerOrderID = res.OrderCreateTransaction.ID
		createdAt = parseWireTime(res.OrderCreateTransaction.Time)
	}

	if res.OrderFillTransaction != nil {
		if brokerOrderID == "" {
			brokerOrderID = res.OrderFillTransaction.OrderID
		}

		return placementFromFill(res.OrderFillTransaction, brokerOrderID)
	}

	if res.OrderCancelTransaction != nil {
		return &PlacementResult{
			BrokerOrderID: brokerOrderID,
			Status:        types.OrderStatusCancelled,
			FillPrice:     optional.None[decimal.Decimal](),
			FilledUnits:   decimal.Zero,
			Commission:    decimal.Zero,
			RealizedPnL:   decimal.Zero,
			Reason:        res.OrderCancelTransaction.Reason,
			Time:          parseWireTime(res.OrderCancelTransaction.Time),
		}, nil
	}

	return &PlacementResult{
		BrokerOrderID: brokerOrderID,
		Status:        types.OrderStatusSubmitted,
		FillPrice:     optional.None[decimal.Decimal](),
		FilledUnits:   decimal.Zero,
		Commission:    decimal.Zero,
		RealizedPnL:   decimal.Zero,
		Reason:        "",
		Time:          createdAt,
	}, nil
}

// placementFromReplace interprets an order replacement response. The cancel
// transaction refers to the order being replaced, so only the create and
// fill transactions describe the new order.
func placementFromReplace(res *createOrderResponse) (*PlacementResult, error) {
	if res.OrderRejectTransaction != nil {
		reason := res.OrderRejectTransaction.RejectReason

		return nil, errors.Wrap(errors.ErrCodeBrokerRejected,
			"broker rejected replacement",
			errors.NewBrokerError(0, reason, false, reason))
	}

	brokerOrderID := ""
	createdAt := time.Time{}

	if res.OrderCreateTransaction != nil {
		brokerOrderID = res.OrderCreateTransaction.ID
		createdAt = parseWireTime(res.OrderCreateTransaction.Time)
	}

	if res.OrderFillTransaction != nil {
		if brokerOrderID == "" {
			brokerOrderID = res.OrderFillTransaction.OrderID
		}

		return placementFromFill(res.OrderFillTransaction, brokerOrderID)
	}

	return &PlacementResult{
		BrokerOrderID: brokerOrderID,
		Status:        types.OrderStatusSubmitted,
		FillPrice:     optional.None[decimal.Decimal](),
		FilledUnits:   decimal.Zero,
		Commission:    decimal.Zero,
		RealizedPnL:   decimal.Zero,
		Reason:        "",
		Time:          createdAt,
	}, nil
}

// closeResultFromWire combines the long and short side fills of a position
// close into one result.
func closeResultFromWire(res *closePositionResponse) (*CloseResult, error) {
	result := &CloseResult{
		Units:       decimal.Zero,
		Price:       decimal.Zero,
		RealizedPnL: decimal.Zero,
		Commission:  decimal.Zero,
		Time:        time.Time{},
	}

	apply := func(txn *transaction) error {
		if txn == nil {
			return nil
		}

		units, err := parseWireDecimal(txn.Units, "close units")
		if err != nil {
			return err
		}

		price, err := parseWireDecimal(txn.Price, "close price")
		if err != nil {
			return err
		}

		realized, err := parseWireDecimal(txn.PL, "close pl")
		if err != nil {
			return err
		}

		commission, err := parseWireDecimal(txn.Commission, "close commission")
		if err != nil {
			return err
		}

		result.Units = result.Units.Add(units)
		result.RealizedPnL = result.RealizedPnL.Add(realized)
		result.Commission = result.Commission.Add(commission)

		if result.Price.IsZero() {
			result.Price = price
		}

		if t := parseWireTime(txn.Time); t.After(result.Time) {
			result.Time = t
		}

		return nil
	}

	if err := apply(res.LongOrderFillTransaction); err != nil {
		return nil, err
	}

	if err := apply(res.ShortOrderFillTransaction); err != nil {
		return nil, err
	}

	return result, nil
}

// accountSummaryFromWire converts a broker account summary.
func accountSummaryFromWire(res *accountSummaryResponse) (*types.AccountSummary, error) {
	account := res.Account

	balance, err := parseWireDecimal(account.Balance, "balance")
	if err != nil {
		return nil, err
	}

	nav, err := parseWireDecimal(account.NAV, "nav")
	if err != nil {
		return nil, err
	}

	realized, err := parseWireDecimal(account.PL, "pl")
	if err != nil {
		return nil, err
	}

	unrealized, err := parseWireDecimal(account.UnrealizedPL, "unrealized pl")
	if err != nil {
		return nil, err
	}

	marginUsed, err := parseWireDecimal(account.MarginUsed, "margin used")
	if err != nil {
		return nil, err
	}

	marginAvailable, err := parseWireDecimal(account.MarginAvailable, "margin available")
	if err != nil {
		return nil, err
	}

	return &types.AccountSummary{
		AccountID:         account.ID,
		Currency:          account.Currency,
		Balance:           balance,
		NAV:               nav,
		RealizedPnL:       realized,
		UnrealizedPnL:     unrealized,
		MarginUsed:        marginUsed,
		MarginAvailable:   marginAvailable,
		OpenPositionCount: account.OpenPositionCount,
		PendingOrderCount: account.PendingOrderCount,
		UpdatedAt:         time.Now(),
	}, nil
}

// positionFromWire converts a broker position. The v20 model carries long
// and short sides separately; a hedged account could hold both, in which
// case the net exposure is returned.
func positionFromWire(accountID string, wp wirePosition) (types.Position, error) {
	longUnits, err := parseWireDecimal(wp.Long.Units, "long units")
	if err != nil {
		return types.Position{}, err //nolint:exhaustruct // zero on error
	}

	shortUnits, err := parseWireDecimal(wp.Short.Units, "short units")
	if err != nil {
		return types.Position{}, err //nolint:exhaustruct // zero on error
	}

	units := longUnits.Add(shortUnits)

	avgField := wp.Long.AveragePrice
	if shortUnits.Abs().GreaterThan(longUnits) {
		avgField = wp.Short.AveragePrice
	}

	avgPrice, err := parseWireDecimal(avgField, "average price")
	if err != nil {
		return types.Position{}, err //nolint:exhaustruct // zero on error
	}

	marginUsed, err := parseWireDecimal(wp.MarginUsed, "margin used")
	if err != nil {
		return types.Position{}, err //nolint:exhaustruct // zero on error
	}

	unrealized, err := parseWireDecimal(wp.UnrealizedPL, "unrealized pl")
	if err != nil {
		return types.Position{}, err //nolint:exhaustruct // zero on error
	}

	realizedLong, err := parseWireDecimal(wp.Long.PL, "long pl")
	if err != nil {
		return types.Position{}, err //nolint:exhaustruct // zero on error
	}

	realizedShort, err := parseWireDecimal(wp.Short.PL, "short pl")
	if err != nil {
		return types.Position{}, err //nolint:exhaustruct // zero on error
	}

	return types.Position{
		ID:             "",
		AccountID:      accountID,
		Instrument:     wp.Instrument,
		Units:          units,
		AvgPrice:       avgPrice,
		CurrentPrice:   decimal.Zero,
		RealizedPnL:    realizedLong.Add(realizedShort),
		UnrealizedPnL:  unrealized,
		MarginUsed:     marginUsed,
		MarginRate:     decimal.Zero,
		OpenedAt:       time.Time{},
		ClosedAt:       optional.None[time.Time](),
		UpdatedAt:      time.Now(),
		OpeningOrderID: "",
	}, nil
}

// priceFromWire converts a broker quote, taking the top of book on each side.
func priceFromWire(wp wirePrice) (types.Price, error) {
	price := types.Price{
		Instrument: wp.Instrument,
		Bid:        decimal.Zero,
		Ask:        decimal.Zero,
		Time:       parseWireTime(wp.Time),
		Tradeable:  wp.Tradeable,
	}

	if len(wp.Bids) > 0 {
		bid, err := parseWireDecimal(wp.Bids[0].Price, "bid")
		if err != nil {
			return types.Price{}, err //nolint:exhaustruct // zero on error
		}

		price.Bid = bid
	}

	if len(wp.Asks) > 0 {
		ask, err := parseWireDecimal(wp.Asks[0].Price, "ask")
		if err != nil {
			return types.Price{}, err //nolint:exhaustruct // zero on error
		}

		price.Ask = ask
	}

	return price, nil
}

// instrumentFromWire converts broker instrument metadata.
func instrumentFromWire(wi wireInstrument) (types.Instrument, error) {
	marginRate, err := parseWireDecimal(wi.MarginRate, "margin rate")
	if err != nil {
		return types.Instrument{}, err //nolint:exhaustruct // zero on error
	}

	minUnits, err := parseWireDecimal(wi.MinimumTradeSize, "minimum trade size")
	if err != nil {
		return types.Instrument{}, err //nolint:exhaustruct // zero on error
	}

	maxUnits, err := parseWireDecimal(wi.MaximumOrderUnits, "maximum order units")
	if err != nil {
		return types.Instrument{}, err //nolint:exhaustruct // zero on error
	}

	return types.Instrument{
		Name:        wi.Name,
		DisplayName: wi.DisplayName,
		PipLocation: wi.PipLocation,
		MarginRate:  marginRate,
		MinUnits:    minUnits,
		MaxUnits:    maxUnits,
		Tradeable:   true,
	}, nil
}

// orderStateFromWire converts the broker's order view. Broker states map
// onto the local lifecycle: the broker's PENDING is a working order, which
// locally is SUBMITTED.
func orderStateFromWire(wo wireOrder) (*OrderState, error) {
	filled, err := parseWireDecimal(wo.FilledUnits, "filled units")
	if err != nil {
		return nil, err
	}

	state := &OrderState{
		BrokerOrderID: wo.ID,
		Status:        types.OrderStatusSubmitted,
		Instrument:    wo.Instrument,
		FilledUnits:   filled,
		AvgFillPrice:  optional.None[decimal.Decimal](),
		UpdatedAt:     parseWireTime(wo.CreateTime),
	}

	switch wo.State {
	case "PENDING", "TRIGGERED":
		state.Status = types.OrderStatusSubmitted
	case "FILLED":
		state.Status = types.OrderStatusFilled
		state.UpdatedAt = parseWireTime(wo.FilledTime)
	case "CANCELLED":
		state.Status = types.OrderStatusCancelled
		state.UpdatedAt = parseWireTime(wo.CancelledTime)
	}

	if wo.AveragePrice != "" {
		avg, err := parseWireDecimal(wo.AveragePrice, "average price")
		if err != nil {
			return nil, err
		}

		state.AvgFillPrice = optional.Some(avg)
	}

	return state, nil
}
