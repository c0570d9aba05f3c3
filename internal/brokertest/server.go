// Package brokertest provides an in-process broker server for testing.
// It implements the v20-style REST endpoints the gateway talks to, keeps a
// real position ledger, and offers handles for driving fills and failures
// from tests.
package brokertest

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// Quote is a two-sided price for one instrument.
type Quote struct {
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Tradeable bool
}

// Config holds the initial state of the mock broker.
type Config struct {
	// AccountID is the only account the server knows.
	AccountID string
	Currency  string
	// Token, when set, is required as a bearer token on every request.
	Token   string
	Balance decimal.Decimal
	// Commission is charged per fill.
	Commission decimal.Decimal
	// Quotes maps instrument to its starting price.
	Quotes map[string]Quote
}

// position is the server side ledger entry for one instrument.
type position struct {
	units    decimal.Decimal
	avgPrice decimal.Decimal
	realized decimal.Decimal
}

// order is a broker side order record.
type order struct {
	id            string
	kind          string
	instrument    string
	units         decimal.Decimal
	filledUnits   decimal.Decimal
	price         decimal.Decimal
	hasPrice      bool
	avgFillPrice  decimal.Decimal
	state         string
	createTime    time.Time
	filledTime    time.Time
	cancelledTime time.Time
}

// Server is a mock broker. All state is guarded by one mutex; handlers hold
// it for the whole request so observed state is always consistent.
type Server struct {
	mu sync.RWMutex

	httpServer *http.Server
	listener   net.Listener

	accountID string
	currency  string
	token     string

	balance     decimal.Decimal
	realized    decimal.Decimal
	commission  decimal.Decimal
	quotes      map[string]Quote
	marginRates map[string]decimal.Decimal
	positions   map[string]*position
	orders      map[string]*order

	txnSeq int64

	failRemaining int
	failStatus    int

	calls map[string]int
}

// NewServer creates a mock broker with the given initial state. Zero config
// fields get working defaults: account 101-001-0000001-001 holding 100000
// USD with EUR_USD, GBP_USD, and USD_JPY quoted.
func NewServer(cfg Config) *Server {
	server := &Server{
		mu:            sync.RWMutex{},
		httpServer:    nil,
		listener:      nil,
		accountID:     cfg.AccountID,
		currency:      cfg.Currency,
		token:         cfg.Token,
		balance:       cfg.Balance,
		realized:      decimal.Zero,
		commission:    cfg.Commission,
		quotes:        make(map[string]Quote),
		marginRates:   make(map[string]decimal.Decimal),
		positions:     make(map[string]*position),
		orders:        make(map[string]*order),
		txnSeq:        1000,
		failRemaining: 0,
		failStatus:    0,
		calls:         make(map[string]int),
	}

	if server.accountID == "" {
		server.accountID = "101-001-0000001-001"
	}

	if server.currency == "" {
		server.currency = "USD"
	}

	if server.balance.IsZero() {
		server.balance = decimal.NewFromInt(100000)
	}

	for instrument, quote := range cfg.Quotes {
		server.quotes[instrument] = quote
	}

	if len(server.quotes) == 0 {
		server.quotes["EUR_USD"] = Quote{Bid: decimal.RequireFromString("1.1000"), Ask: decimal.RequireFromString("1.1002"), Tradeable: true}
		server.quotes["GBP_USD"] = Quote{Bid: decimal.RequireFromString("1.2700"), Ask: decimal.RequireFromString("1.2703"), Tradeable: true}
		server.quotes["USD_JPY"] = Quote{Bid: decimal.RequireFromString("147.10"), Ask: decimal.RequireFromString("147.13"), Tradeable: true}
	}

	for instrument := range server.quotes {
		server.marginRates[instrument] = decimal.RequireFromString("0.02")
	}

	return server
}

// Start begins serving on the given address. Empty or ":0" picks a free
// port.
func (s *Server) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener

	router := mux.NewRouter()

	router.HandleFunc("/v3/accounts/{accountID}/orders", s.handleCreateOrder).Methods("POST")
	router.HandleFunc("/v3/accounts/{accountID}/orders/{orderID}", s.handleGetOrder).Methods("GET")
	router.HandleFunc("/v3/accounts/{accountID}/orders/{orderID}", s.handleReplaceOrder).Methods("PUT")
	router.HandleFunc("/v3/accounts/{accountID}/orders/{orderID}/cancel", s.handleCancelOrder).Methods("PUT")
	router.HandleFunc("/v3/accounts/{accountID}/positions/{instrument}/close", s.handleClosePosition).Methods("PUT")
	router.HandleFunc("/v3/accounts/{accountID}/summary", s.handleSummary).Methods("GET")
	router.HandleFunc("/v3/accounts/{accountID}/openPositions", s.handleOpenPositions).Methods("GET")
	router.HandleFunc("/v3/accounts/{accountID}/pricing", s.handlePricing).Methods("GET")
	router.HandleFunc("/v3/accounts/{accountID}/instruments", s.handleInstruments).Methods("GET")

	s.httpServer = &http.Server{ //nolint:exhaustruct // default server with handler
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			fmt.Printf("mock broker error: %v\n", err)
		}
	}()

	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

// BaseURL returns the server's base URL.
func (s *Server) BaseURL() string {
	if s.listener == nil {
		return ""
	}

	return "http://" + s.listener.Addr().String()
}

// Test handles

// SetQuote updates an instrument's price.
func (s *Server) SetQuote(instrument string, bid, ask decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quote := s.quotes[instrument]
	quote.Bid = bid
	quote.Ask = ask
	quote.Tradeable = true
	s.quotes[instrument] = quote

	if _, ok := s.marginRates[instrument]; !ok {
		s.marginRates[instrument] = decimal.RequireFromString("0.02")
	}
}

// SetTradeable halts or resumes an instrument.
func (s *Server) SetTradeable(instrument string, tradeable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quote := s.quotes[instrument]
	quote.Tradeable = tradeable
	s.quotes[instrument] = quote
}

// SetPosition overwrites the broker side position for an instrument, used to
// stage reconciliation drift.
func (s *Server) SetPosition(instrument string, units, avgPrice decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if units.IsZero() {
		delete(s.positions, instrument)
		return
	}

	s.positions[instrument] = &position{units: units, avgPrice: avgPrice, realized: decimal.Zero}
}

// Position returns the broker side position, zero values if flat.
func (s *Server) Position(instrument string) (units, avgPrice decimal.Decimal) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[instrument]
	if !ok {
		return decimal.Zero, decimal.Zero
	}

	return pos.units, pos.avgPrice
}

// Balance returns the account balance.
func (s *Server) Balance() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.balance
}

// FillOrder fills a resting order completely at its price, or at the current
// execution price when the order carries none.
func (s *Server) FillOrder(brokerOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ord, ok := s.orders[brokerOrderID]
	if !ok {
		return fmt.Errorf("order %s not found", brokerOrderID)
	}

	if ord.state != "PENDING" {
		return fmt.Errorf("order %s is %s, not PENDING", brokerOrderID, ord.state)
	}

	price := ord.price
	if !ord.hasPrice {
		price = s.executionPrice(ord.instrument, ord.units)
	}

	remaining := ord.units.Sub(ord.filledUnits)
	realized := s.applyFill(ord.instrument, remaining, price)
	s.balance = s.balance.Add(realized).Sub(s.commission)
	s.realized = s.realized.Add(realized)

	ord.filledUnits = ord.units
	ord.avgFillPrice = price
	ord.state = "FILLED"
	ord.filledTime = time.Now()

	return nil
}

// PartialFillOrder fills part of a resting order at its price. The order
// stays working with the filled units recorded.
func (s *Server) PartialFillOrder(brokerOrderID string, units decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ord, ok := s.orders[brokerOrderID]
	if !ok {
		return fmt.Errorf("order %s not found", brokerOrderID)
	}

	if ord.state != "PENDING" {
		return fmt.Errorf("order %s is %s, not PENDING", brokerOrderID, ord.state)
	}

	remaining := ord.units.Sub(ord.filledUnits)
	if units.Abs().GreaterThan(remaining.Abs()) {
		return fmt.Errorf("partial fill %s exceeds remaining %s", units, remaining)
	}

	realized := s.applyFill(ord.instrument, units, ord.price)
	s.balance = s.balance.Add(realized).Sub(s.commission)
	s.realized = s.realized.Add(realized)

	ord.filledUnits = ord.filledUnits.Add(units)
	ord.avgFillPrice = ord.price

	return nil
}

// FailNext makes the next n requests fail with the given HTTP status before
// any handler runs.
func (s *Server) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failRemaining = n
	s.failStatus = status
}

// CallCount returns how many times a handler ran, including injected
// failures. Names: createOrder, getOrder, replaceOrder, cancelOrder,
// closePosition, summary, openPositions, pricing, instruments.
func (s *Server) CallCount(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.calls[name]
}

// Internals

func (s *Server) nextTxnID() string {
	s.txnSeq++

	return strconv.FormatInt(s.txnSeq, 10)
}

// executionPrice picks the side of the book a signed order trades at.
func (s *Server) executionPrice(instrument string, units decimal.Decimal) decimal.Decimal {
	quote := s.quotes[instrument]
	if units.Sign() > 0 {
		return quote.Ask
	}

	return quote.Bid
}

// applyFill books signed units at a price into the position ledger and
// returns the realized profit. Extending keeps a weighted average entry
// price, reducing realizes against it, and overshooting reverses the
// position at the fill price.
func (s *Server) applyFill(instrument string, units, price decimal.Decimal) decimal.Decimal {
	pos, ok := s.positions[instrument]
	if !ok || pos.units.IsZero() {
		s.positions[instrument] = &position{units: units, avgPrice: price, realized: decimal.Zero}

		return decimal.Zero
	}

	if pos.units.Sign() == units.Sign() {
		newUnits := pos.units.Add(units)
		pos.avgPrice = pos.avgPrice.Mul(pos.units).Add(price.Mul(units)).Div(newUnits)
		pos.units = newUnits

		return decimal.Zero
	}

	closing := units.Abs()
	if closing.GreaterThan(pos.units.Abs()) {
		closing = pos.units.Abs()
	}

	closedSigned := closing
	if pos.units.Sign() < 0 {
		closedSigned = closing.Neg()
	}

	realized := price.Sub(pos.avgPrice).Mul(closedSigned)
	remainder := pos.units.Add(units)

	switch {
	case remainder.IsZero():
		delete(s.positions, instrument)
	case remainder.Sign() == pos.units.Sign():
		pos.units = remainder
		pos.realized = pos.realized.Add(realized)
	default:
		pos.units = remainder
		pos.avgPrice = price
		pos.realized = pos.realized.Add(realized)
	}

	return realized
}

// gate counts the call, applies injected failures, and checks auth and the
// account id. It returns false when the request was already answered.
func (s *Server) gate(w http.ResponseWriter, r *http.Request, name string) bool {
	s.mu.Lock()
	s.calls[name]++

	failed := false
	status := 0

	if s.failRemaining > 0 {
		s.failRemaining--
		failed = true
		status = s.failStatus
	}

	token := s.token
	s.mu.Unlock()

	if failed {
		writeError(w, status, "SERVER_ERROR", "injected failure")

		return false
	}

	if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "insufficient authorization")

		return false
	}

	if mux.Vars(r)["accountID"] != s.accountID {
		writeError(w, http.StatusNotFound, "ACCOUNT_DOES_NOT_EXIST", "account not found")

		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"errorCode":    code,
		"errorMessage": message,
	})
}

func wireTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}
