package broker

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jthadison/tmt-sub003/internal/config"
	"github.com/jthadison/tmt-sub003/internal/logger"
	"github.com/jthadison/tmt-sub003/internal/metrics"
	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

// RestGateway implements Gateway over the broker's v20-style REST API. Two
// clients share one pooled transport: the read client retries transient
// failures with exponential backoff, the write client never retries because
// a placement whose response was lost may still have executed. Every request
// start passes the rate gate, retry attempts included; callers queue at the
// gate rather than receive errors.
type RestGateway struct {
	cfg      config.BrokerConfig
	log      *logger.Logger
	registry *metrics.Registry
	limiter  *rate.Limiter

	readClient  *resty.Client
	writeClient *resty.Client
}

var _ Gateway = (*RestGateway)(nil)

// NewRestGateway creates a gateway pointed at baseURL, authenticated with the
// configured bearer token.
func NewRestGateway(cfg config.BrokerConfig, baseURL string, log *logger.Logger, registry *metrics.Registry) *RestGateway {
	transport := &http.Transport{ //nolint:exhaustruct // default transport with pool bounds
		MaxIdleConns:        cfg.MaxConnections,
		MaxIdleConnsPerHost: cfg.MaxConnections,
		IdleConnTimeout:     90 * time.Second,
	}

	gateway := &RestGateway{
		cfg:         cfg,
		log:         log,
		registry:    registry,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateBurst),
		readClient:  nil,
		writeClient: nil,
	}

	gate := func(_ *resty.Client, req *resty.Request) error {
		return gateway.limiter.Wait(req.Context())
	}

	newClient := func() *resty.Client {
		return resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(cfg.APIToken).
			SetTimeout(cfg.Timeout()).
			SetTransport(transport).
			SetHeader("Accept", "application/json").
			OnBeforeRequest(gate)
	}

	gateway.writeClient = newClient()
	gateway.readClient = newClient().
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryWaitMin()).
		SetRetryMaxWaitTime(cfg.RetryWaitMax()).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}

			return resp.StatusCode() == http.StatusTooManyRequests ||
				resp.StatusCode() >= http.StatusInternalServerError
		})

	return gateway
}

// ExecuteMarketOrder implements Gateway.
func (g *RestGateway) ExecuteMarketOrder(ctx context.Context, order *types.Order) (*PlacementResult, error) {
	if order.Kind != types.OrderKindMarket {
		return nil, errors.Newf(errors.ErrCodeInvalidOrder, "%s order is not a market order", order.Kind)
	}

	result, err := g.placeOrder(ctx, OpExecuteMarketOrder, order)
	if err != nil {
		return nil, err
	}

	return placementFromCreate(result)
}

// SubmitPendingOrder implements Gateway.
func (g *RestGateway) SubmitPendingOrder(ctx context.Context, order *types.Order) (*PlacementResult, error) {
	if order.Kind == types.OrderKindMarket {
		return nil, errors.New(errors.ErrCodeInvalidOrder, "market orders execute, they do not rest")
	}

	result, err := g.placeOrder(ctx, OpSubmitPendingOrder, order)
	if err != nil {
		return nil, err
	}

	return placementFromCreate(result)
}

// ModifyOrder implements Gateway.
func (g *RestGateway) ModifyOrder(ctx context.Context, order *types.Order) (*PlacementResult, error) {
	if order.BrokerOrderID.IsNone() {
		return nil, errors.New(errors.ErrCodeInvalidState, "order has no broker order id")
	}

	start := time.Now()
	result := &createOrderResponse{} //nolint:exhaustruct // decoded from JSON

	resp, err := g.writeClient.R().
		SetContext(ctx).
		SetBody(createOrderRequest{Order: buildOrderSpec(order)}).
		SetResult(result).
		SetError(&brokerErrorBody{}). //nolint:exhaustruct // decoded from JSON
		Put(fmt.Sprintf("/v3/accounts/%s/orders/%s", order.AccountID, order.BrokerOrderID.Unwrap()))

	if callErr := g.finish(OpModifyOrder, start, resp, err); callErr != nil {
		return nil, upgradeNotFound(callErr, errors.ErrCodeOrderNotFound,
			"order %s not found on broker", order.BrokerOrderID.Unwrap())
	}

	return placementFromReplace(result)
}

// CancelOrder implements Gateway.
func (g *RestGateway) CancelOrder(ctx context.Context, accountID, brokerOrderID string) error {
	start := time.Now()

	resp, err := g.writeClient.R().
		SetContext(ctx).
		SetError(&brokerErrorBody{}). //nolint:exhaustruct // decoded from JSON
		Put(fmt.Sprintf("/v3/accounts/%s/orders/%s/cancel", accountID, brokerOrderID))

	if callErr := g.finish(OpCancelOrder, start, resp, err); callErr != nil {
		return upgradeNotFound(callErr, errors.ErrCodeOrderNotFound,
			"order %s not found on broker", brokerOrderID)
	}

	return nil
}

// ClosePosition implements Gateway. Passing units None closes the whole
// position on both sides; a signed value closes that many units of the long
// (positive) or short (negative) side.
func (g *RestGateway) ClosePosition(ctx context.Context, accountID, instrument string, units optional.Option[decimal.Decimal]) (*CloseResult, error) {
	body := closePositionRequest{LongUnits: "", ShortUnits: ""}

	if units.IsNone() {
		body.LongUnits = "ALL"
		body.ShortUnits = "ALL"
	} else {
		amount := units.Unwrap()
		if amount.IsZero() {
			return nil, errors.New(errors.ErrCodeInvalidParameter, "close units must be non-zero")
		}

		if amount.IsPositive() {
			body.LongUnits = amount.String()
		} else {
			body.ShortUnits = amount.Abs().String()
		}
	}

	start := time.Now()
	result := &closePositionResponse{} //nolint:exhaustruct // decoded from JSON

	resp, err := g.writeClient.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		SetError(&brokerErrorBody{}). //nolint:exhaustruct // decoded from JSON
		Put(fmt.Sprintf("/v3/accounts/%s/positions/%s/close", accountID, instrument))

	if callErr := g.finish(OpClosePosition, start, resp, err); callErr != nil {
		return nil, upgradeNotFound(callErr, errors.ErrCodePositionNotFound,
			"no %s position on broker", instrument)
	}

	return closeResultFromWire(result)
}

// GetAccountSummary implements Gateway.
func (g *RestGateway) GetAccountSummary(ctx context.Context, accountID string) (*types.AccountSummary, error) {
	result := &accountSummaryResponse{} //nolint:exhaustruct // decoded from JSON

	err := g.readJSON(ctx, OpGetAccountSummary, fmt.Sprintf("/v3/accounts/%s/summary", accountID), nil, result)
	if err != nil {
		return nil, upgradeNotFound(err, errors.ErrCodeAccountNotFound, "account %s not found", accountID)
	}

	return accountSummaryFromWire(result)
}

// GetOpenPositions implements Gateway.
func (g *RestGateway) GetOpenPositions(ctx context.Context, accountID string) ([]types.Position, error) {
	result := &openPositionsResponse{} //nolint:exhaustruct // decoded from JSON

	err := g.readJSON(ctx, OpGetOpenPositions, fmt.Sprintf("/v3/accounts/%s/openPositions", accountID), nil, result)
	if err != nil {
		return nil, err
	}

	positions := make([]types.Position, 0, len(result.Positions))

	for _, wp := range result.Positions {
		position, err := positionFromWire(accountID, wp)
		if err != nil {
			return nil, err
		}

		positions = append(positions, position)
	}

	return positions, nil
}

// GetPrices implements Gateway.
func (g *RestGateway) GetPrices(ctx context.Context, accountID string, instruments []string) ([]types.Price, error) {
	if len(instruments) == 0 {
		return []types.Price{}, nil
	}

	result := &pricingResponse{} //nolint:exhaustruct // decoded from JSON
	query := map[string]string{"instruments": strings.Join(instruments, ",")}

	err := g.readJSON(ctx, OpGetPrices, fmt.Sprintf("/v3/accounts/%s/pricing", accountID), query, result)
	if err != nil {
		return nil, err
	}

	prices := make([]types.Price, 0, len(result.Prices))

	for _, wp := range result.Prices {
		price, err := priceFromWire(wp)
		if err != nil {
			return nil, err
		}

		prices = append(prices, price)
	}

	return prices, nil
}

// GetInstruments implements Gateway.
func (g *RestGateway) GetInstruments(ctx context.Context, accountID string) ([]types.Instrument, error) {
	result := &instrumentsResponse{} //nolint:exhaustruct // decoded from JSON

	err := g.readJSON(ctx, OpGetInstruments, fmt.Sprintf("/v3/accounts/%s/instruments", accountID), nil, result)
	if err != nil {
		return nil, err
	}

	instruments := make([]types.Instrument, 0, len(result.Instruments))

	for _, wi := range result.Instruments {
		instrument, err := instrumentFromWire(wi)
		if err != nil {
			return nil, err
		}

		instruments = append(instruments, instrument)
	}

	return instruments, nil
}

// GetOrder implements Gateway.
func (g *RestGateway) GetOrder(ctx context.Context, accountID, brokerOrderID string) (*OrderState, error) {
	result := &getOrderResponse{} //nolint:exhaustruct // decoded from JSON

	err := g.readJSON(ctx, OpGetOrder, fmt.Sprintf("/v3/accounts/%s/orders/%s", accountID, brokerOrderID), nil, result)
	if err != nil {
		return nil, upgradeNotFound(err, errors.ErrCodeOrderNotFound,
			"order %s not found on broker", brokerOrderID)
	}

	return orderStateFromWire(result.Order)
}

// Metrics implements Gateway.
func (g *RestGateway) Metrics() map[string]metrics.LatencySnapshot {
	return g.registry.Latency().SnapshotAll()
}

// placeOrder posts an order to the account's order endpoint without retries.
func (g *RestGateway) placeOrder(ctx context.Context, op string, order *types.Order) (*createOrderResponse, error) {
	start := time.Now()
	result := &createOrderResponse{} //nolint:exhaustruct // decoded from JSON

	resp, err := g.writeClient.R().
		SetContext(ctx).
		SetBody(createOrderRequest{Order: buildOrderSpec(order)}).
		SetResult(result).
		SetError(&brokerErrorBody{}). //nolint:exhaustruct // decoded from JSON
		Post(fmt.Sprintf("/v3/accounts/%s/orders", order.AccountID))

	if callErr := g.finish(op, start, resp, err); callErr != nil {
		return nil, callErr
	}

	return result, nil
}

// readJSON performs a GET with read retries enabled, decoding the body into
// out.
func (g *RestGateway) readJSON(ctx context.Context, op, path string, query map[string]string, out any) error {
	start := time.Now()

	req := g.readClient.R().
		SetContext(ctx).
		SetResult(out).
		SetError(&brokerErrorBody{}) //nolint:exhaustruct // decoded from JSON

	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Get(path)

	return g.finish(op, start, resp, err)
}

// finish records retry and latency metrics for one completed call and maps
// the outcome to an error when the call failed.
func (g *RestGateway) finish(op string, start time.Time, resp *resty.Response, err error) error {
	if resp != nil && resp.Request.Attempt > 1 {
		g.registry.Add(metrics.CounterBrokerRetries, int64(resp.Request.Attempt-1))
	}

	var callErr error
	if err != nil || (resp != nil && resp.IsError()) {
		callErr = g.mapError(op, resp, err)
	}

	g.registry.Latency().Observe(op, time.Since(start), callErr == nil)

	if callErr != nil {
		g.log.Warn("broker call failed",
			zap.String("op", op),
			zap.Duration("latency", time.Since(start)),
			zap.Error(callErr))
	}

	return callErr
}

// mapError converts a failed call into a coded error carrying a BrokerError.
// Transport failures, 5xx, and 429 are transient; other 4xx responses carry
// the broker's reject code and are permanent.
func (g *RestGateway) mapError(op string, resp *resty.Response, err error) error {
	if err != nil {
		if isTimeout(err) {
			return errors.Wrapf(errors.ErrCodeBrokerTimeout,
				errors.NewBrokerError(0, "", true, err.Error()),
				"%s timed out", op)
		}

		return errors.Wrapf(errors.ErrCodeBrokerError,
			errors.NewBrokerError(0, "", true, err.Error()),
			"%s transport failure", op)
	}

	status := resp.StatusCode()
	brokerCode := ""
	message := resp.Status()

	if body, ok := resp.Error().(*brokerErrorBody); ok && body != nil {
		if body.ErrorCode != "" {
			brokerCode = body.ErrorCode
		}

		if body.ErrorMessage != "" {
			message = body.ErrorMessage
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		return errors.Wrapf(errors.ErrCodeRateLimited,
			errors.NewBrokerError(status, brokerCode, true, message),
			"%s rate limited by broker", op)
	case status >= http.StatusInternalServerError:
		return errors.Wrapf(errors.ErrCodeBrokerError,
			errors.NewBrokerError(status, brokerCode, true, message),
			"%s failed upstream", op)
	default:
		return errors.Wrapf(errors.ErrCodeBrokerRejected,
			errors.NewBrokerError(status, brokerCode, false, message),
			"%s rejected by broker", op)
	}
}

// upgradeNotFound rewraps a broker 404 with a more specific code, leaving
// other errors untouched.
func upgradeNotFound(callErr error, code errors.ErrorCode, format string, args ...any) error {
	var brokerErr *errors.BrokerError
	if errors.As(callErr, &brokerErr) && brokerErr.StatusCode == http.StatusNotFound {
		return errors.Wrapf(code, brokerErr, format, args...)
	}

	return callErr
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
