package brokertest

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type orderPayload struct {
	Type        string `json:"type"`
	Instrument  string `json:"instrument"`
	Units       string `json:"units"`
	TimeInForce string `json:"timeInForce"`
	Price       string `json:"price"`
	PriceBound  string `json:"priceBound"`
	GTDTime     string `json:"gtdTime"`
}

type createOrderPayload struct {
	Order orderPayload `json:"order"`
}

type closePositionPayload struct {
	LongUnits  string `json:"longUnits"`
	ShortUnits string `json:"shortUnits"`
}

// handleCreateOrder handles POST /v3/accounts/{accountID}/orders. Market
// orders fill against the current quote; other kinds rest as PENDING.
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r, "createOrder") {
		return
	}

	var payload createOrderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed order body")

		return
	}

	spec := payload.Order

	units, err := decimal.NewFromString(spec.Units)
	if err != nil || units.IsZero() {
		writeError(w, http.StatusBadRequest, "UNITS_INVALID", "units must be a non-zero decimal")

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	quote, ok := s.quotes[spec.Instrument]
	if !ok {
		writeError(w, http.StatusBadRequest, "INSTRUMENT_UNKNOWN", "no pricing for "+spec.Instrument)

		return
	}

	now := time.Now()
	createTxnID := s.nextTxnID()
	createTxn := map[string]any{
		"id":         createTxnID,
		"type":       spec.Type + "_ORDER",
		"time":       wireTime(now),
		"instrument": spec.Instrument,
		"units":      spec.Units,
	}

	if spec.Type != "MARKET" {
		price, err := decimal.NewFromString(spec.Price)
		if err != nil {
			writeError(w, http.StatusBadRequest, "PRICE_INVALID", "resting orders need a price")

			return
		}

		ord := &order{
			id:            createTxnID,
			kind:          spec.Type,
			instrument:    spec.Instrument,
			units:         units,
			filledUnits:   decimal.Zero,
			price:         price,
			hasPrice:      true,
			avgFillPrice:  decimal.Zero,
			state:         "PENDING",
			createTime:    now,
			filledTime:    time.Time{},
			cancelledTime: time.Time{},
		}
		s.orders[createTxnID] = ord

		writeJSON(w, http.StatusCreated, map[string]any{
			"orderCreateTransaction": createTxn,
			"lastTransactionID":      createTxnID,
		})

		return
	}

	if !quote.Tradeable {
		cancelTxnID := s.nextTxnID()
		writeJSON(w, http.StatusCreated, map[string]any{
			"orderCreateTransaction": createTxn,
			"orderCancelTransaction": map[string]any{
				"id":      cancelTxnID,
				"type":    "ORDER_CANCEL",
				"time":    wireTime(now),
				"orderID": createTxnID,
				"reason":  "MARKET_HALTED",
			},
			"lastTransactionID": cancelTxnID,
		})

		return
	}

	price := s.executionPrice(spec.Instrument, units)

	if spec.PriceBound != "" {
		bound, err := decimal.NewFromString(spec.PriceBound)
		if err == nil && boundViolated(units, price, bound) {
			cancelTxnID := s.nextTxnID()
			writeJSON(w, http.StatusCreated, map[string]any{
				"orderCreateTransaction": createTxn,
				"orderCancelTransaction": map[string]any{
					"id":      cancelTxnID,
					"type":    "ORDER_CANCEL",
					"time":    wireTime(now),
					"orderID": createTxnID,
					"reason":  "BOUND_VIOLATION",
				},
				"lastTransactionID": cancelTxnID,
			})

			return
		}
	}

	realized := s.applyFill(spec.Instrument, units, price)
	s.balance = s.balance.Add(realized).Sub(s.commission)
	s.realized = s.realized.Add(realized)

	s.orders[createTxnID] = &order{
		id:            createTxnID,
		kind:          spec.Type,
		instrument:    spec.Instrument,
		units:         units,
		filledUnits:   units,
		price:         price,
		hasPrice:      false,
		avgFillPrice:  price,
		state:         "FILLED",
		createTime:    now,
		filledTime:    now,
		cancelledTime: time.Time{},
	}

	fillTxnID := s.nextTxnID()
	writeJSON(w, http.StatusCreated, map[string]any{
		"orderCreateTransaction": createTxn,
		"orderFillTransaction": map[string]any{
			"id":         fillTxnID,
			"type":       "ORDER_FILL",
			"time":       wireTime(now),
			"orderID":    createTxnID,
			"instrument": spec.Instrument,
			"units":      units.String(),
			"price":      price.String(),
			"pl":         realized.String(),
			"commission": s.commission.String(),
		},
		"lastTransactionID": fillTxnID,
	})
}

// boundViolated reports whether a market execution price breaks the caller's
// worst price bound.
func boundViolated(units, price, bound decimal.Decimal) bool {
	if units.Sign() > 0 {
		return price.GreaterThan(bound)
	}

	return price.LessThan(bound)
}

// handleGetOrder handles GET /v3/accounts/{accountID}/orders/{orderID}.
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r, "getOrder") {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ord, ok := s.orders[mux.Vars(r)["orderID"]]
	if !ok {
		writeError(w, http.StatusNotFound, "ORDER_DOESNT_EXIST", "order not found")

		return
	}

	avgPrice := ""
	if !ord.avgFillPrice.IsZero() {
		avgPrice = ord.avgFillPrice.String()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"order": map[string]any{
			"id":            ord.id,
			"state":         ord.state,
			"instrument":    ord.instrument,
			"units":         ord.units.String(),
			"filledUnits":   ord.filledUnits.String(),
			"averagePrice":  avgPrice,
			"createTime":    wireTime(ord.createTime),
			"filledTime":    wireTime(ord.filledTime),
			"cancelledTime": wireTime(ord.cancelledTime),
		},
		"lastTransactionID": "0",
	})
}

// handleReplaceOrder handles PUT /v3/accounts/{accountID}/orders/{orderID}.
// The working order is cancelled and a new one created from the body.
func (s *Server) handleReplaceOrder(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r, "replaceOrder") {
		return
	}

	var payload createOrderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed order body")

		return
	}

	spec := payload.Order

	s.mu.Lock()
	defer s.mu.Unlock()

	ord, ok := s.orders[mux.Vars(r)["orderID"]]
	if !ok {
		writeError(w, http.StatusNotFound, "ORDER_DOESNT_EXIST", "order not found")

		return
	}

	if ord.state != "PENDING" {
		writeError(w, http.StatusBadRequest, "ORDER_NOT_REPLACEABLE", "order is "+ord.state)

		return
	}

	if spec.Type == "MARKET" {
		writeError(w, http.StatusBadRequest, "REPLACE_INVALID", "cannot replace with a market order")

		return
	}

	units, err := decimal.NewFromString(spec.Units)
	if err != nil || units.IsZero() {
		writeError(w, http.StatusBadRequest, "UNITS_INVALID", "units must be a non-zero decimal")

		return
	}

	price, err := decimal.NewFromString(spec.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "PRICE_INVALID", "resting orders need a price")

		return
	}

	now := time.Now()
	ord.state = "CANCELLED"
	ord.cancelledTime = now

	cancelTxnID := s.nextTxnID()
	createTxnID := s.nextTxnID()

	s.orders[createTxnID] = &order{
		id:            createTxnID,
		kind:          spec.Type,
		instrument:    spec.Instrument,
		units:         units,
		filledUnits:   decimal.Zero,
		price:         price,
		hasPrice:      true,
		avgFillPrice:  decimal.Zero,
		state:         "PENDING",
		createTime:    now,
		filledTime:    time.Time{},
		cancelledTime: time.Time{},
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"orderCancelTransaction": map[string]any{
			"id":      cancelTxnID,
			"type":    "ORDER_CANCEL",
			"time":    wireTime(now),
			"orderID": ord.id,
			"reason":  "CLIENT_REQUEST_REPLACED",
		},
		"orderCreateTransaction": map[string]any{
			"id":         createTxnID,
			"type":       spec.Type + "_ORDER",
			"time":       wireTime(now),
			"instrument": spec.Instrument,
			"units":      spec.Units,
		},
		"lastTransactionID": createTxnID,
	})
}

// handleCancelOrder handles PUT /v3/accounts/{accountID}/orders/{orderID}/cancel.
func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r, "cancelOrder") {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ord, ok := s.orders[mux.Vars(r)["orderID"]]
	if !ok {
		writeError(w, http.StatusNotFound, "ORDER_DOESNT_EXIST", "order not found")

		return
	}

	if ord.state != "PENDING" {
		writeError(w, http.StatusBadRequest, "ORDER_NOT_CANCELABLE", "order is "+ord.state)

		return
	}

	now := time.Now()
	ord.state = "CANCELLED"
	ord.cancelledTime = now

	writeJSON(w, http.StatusOK, map[string]any{
		"orderCancelTransaction": map[string]any{
			"id":      s.nextTxnID(),
			"type":    "ORDER_CANCEL",
			"time":    wireTime(now),
			"orderID": ord.id,
			"reason":  "CLIENT_REQUEST",
		},
		"lastTransactionID": "0",
	})
}

// handleClosePosition handles PUT /v3/accounts/{accountID}/positions/{instrument}/close.
func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r, "closePosition") {
		return
	}

	var payload closePositionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed close body")

		return
	}

	instrument := mux.Vars(r)["instrument"]

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[instrument]
	if !ok {
		writeError(w, http.StatusNotFound, "CLOSEOUT_POSITION_DOESNT_EXIST", "no open position")

		return
	}

	now := time.Now()
	response := map[string]any{}

	closeSide := func(requested string, long bool) (map[string]any, bool) {
		if requested == "" {
			return nil, true
		}

		sideUnits := pos.units
		if long && sideUnits.Sign() <= 0 || !long && sideUnits.Sign() >= 0 {
			// Nothing on this side; ALL is a no-op, explicit units are an error.
			return nil, requested == "ALL"
		}

		toClose := sideUnits.Abs()

		if requested != "ALL" {
			amount, err := decimal.NewFromString(requested)
			if err != nil || amount.Sign() <= 0 {
				return nil, false
			}

			if amount.GreaterThan(toClose) {
				return nil, false
			}

			toClose = amount
		}

		closeUnits := toClose.Neg()
		if !long {
			closeUnits = toClose
		}

		price := s.executionPrice(instrument, closeUnits)
		realized := s.applyFill(instrument, closeUnits, price)
		s.balance = s.balance.Add(realized).Sub(s.commission)
		s.realized = s.realized.Add(realized)

		return map[string]any{
			"id":         s.nextTxnID(),
			"type":       "ORDER_FILL",
			"time":       wireTime(now),
			"instrument": instrument,
			"units":      closeUnits.String(),
			"price":      price.String(),
			"pl":         realized.String(),
			"commission": s.commission.String(),
		}, true
	}

	longTxn, ok := closeSide(payload.LongUnits, true)
	if !ok {
		writeError(w, http.StatusBadRequest, "CLOSEOUT_POSITION_REJECT", "long close units invalid")

		return
	}

	shortTxn, ok := closeSide(payload.ShortUnits, false)
	if !ok {
		writeError(w, http.StatusBadRequest, "CLOSEOUT_POSITION_REJECT", "short close units invalid")

		return
	}

	if longTxn == nil && shortTxn == nil {
		writeError(w, http.StatusBadRequest, "CLOSEOUT_POSITION_REJECT", "nothing to close")

		return
	}

	if longTxn != nil {
		response["longOrderFillTransaction"] = longTxn
	}

	if shortTxn != nil {
		response["shortOrderFillTransaction"] = shortTxn
	}

	response["lastTransactionID"] = "0"
	writeJSON(w, http.StatusOK, response)
}

// handleSummary handles GET /v3/accounts/{accountID}/summary.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r, "summary") {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	unrealized := decimal.Zero
	marginUsed := decimal.Zero
	openCount := 0

	for instrument, pos := range s.positions {
		if pos.units.IsZero() {
			continue
		}

		openCount++
		closePrice := s.executionPrice(instrument, pos.units.Neg())
		unrealized = unrealized.Add(closePrice.Sub(pos.avgPrice).Mul(pos.units))
		marginUsed = marginUsed.Add(pos.units.Abs().Mul(pos.avgPrice).Mul(s.marginRates[instrument]))
	}

	pendingCount := 0

	for _, ord := range s.orders {
		if ord.state == "PENDING" {
			pendingCount++
		}
	}

	nav := s.balance.Add(unrealized)

	writeJSON(w, http.StatusOK, map[string]any{
		"account": map[string]any{
			"id":                s.accountID,
			"currency":          s.currency,
			"balance":           s.balance.String(),
			"NAV":               nav.String(),
			"pl":                s.realized.String(),
			"unrealizedPL":      unrealized.String(),
			"marginUsed":        marginUsed.String(),
			"marginAvailable":   nav.Sub(marginUsed).String(),
			"openPositionCount": openCount,
			"pendingOrderCount": pendingCount,
		},
		"lastTransactionID": "0",
	})
}

// handleOpenPositions handles GET /v3/accounts/{accountID}/openPositions.
func (s *Server) handleOpenPositions(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r, "openPositions") {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]map[string]any, 0, len(s.positions))

	for instrument, pos := range s.positions {
		if pos.units.IsZero() {
			continue
		}

		closePrice := s.executionPrice(instrument, pos.units.Neg())
		unrealized := closePrice.Sub(pos.avgPrice).Mul(pos.units)
		marginUsed := pos.units.Abs().Mul(pos.avgPrice).Mul(s.marginRates[instrument])

		long := map[string]any{"units": "0", "averagePrice": "", "unrealizedPL": "0", "pl": "0"}
		short := map[string]any{"units": "0", "averagePrice": "", "unrealizedPL": "0", "pl": "0"}

		side := long
		if pos.units.Sign() < 0 {
			side = short
		}

		side["units"] = pos.units.String()
		side["averagePrice"] = pos.avgPrice.String()
		side["unrealizedPL"] = unrealized.String()
		side["pl"] = pos.realized.String()

		positions = append(positions, map[string]any{
			"instrument":   instrument,
			"long":         long,
			"short":        short,
			"marginUsed":   marginUsed.String(),
			"unrealizedPL": unrealized.String(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"positions":         positions,
		"lastTransactionID": "0",
	})
}

// handlePricing handles GET /v3/accounts/{accountID}/pricing. Unknown
// instruments are skipped.
func (s *Server) handlePricing(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r, "pricing") {
		return
	}

	requested := strings.Split(r.URL.Query().Get("instruments"), ",")

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	prices := make([]map[string]any, 0, len(requested))

	for _, instrument := range requested {
		quote, ok := s.quotes[instrument]
		if !ok {
			continue
		}

		prices = append(prices, map[string]any{
			"instrument": instrument,
			"time":       wireTime(now),
			"tradeable":  quote.Tradeable,
			"bids":       []map[string]any{{"price": quote.Bid.String(), "liquidity": 1000000}},
			"asks":       []map[string]any{{"price": quote.Ask.String(), "liquidity": 1000000}},
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"prices": prices,
		"time":   wireTime(now),
	})
}

// handleInstruments handles GET /v3/accounts/{accountID}/instruments.
func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	if !s.gate(w, r, "instruments") {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	instruments := make([]map[string]any, 0, len(s.quotes))

	for instrument := range s.quotes {
		instruments = append(instruments, map[string]any{
			"name":              instrument,
			"displayName":       strings.ReplaceAll(instrument, "_", "/"),
			"pipLocation":       -4,
			"marginRate":        s.marginRates[instrument].String(),
			"minimumTradeSize":  "1",
			"maximumOrderUnits": "100000000",
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"instruments": instruments,
	})
}
