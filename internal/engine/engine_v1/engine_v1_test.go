package engine_v1

import (
	"context"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/jthadison/tmt-sub003/internal/brokertest"
	"github.com/jthadison/tmt-sub003/internal/config"
	"github.com/jthadison/tmt-sub003/internal/engine"
	"github.com/jthadison/tmt-sub003/internal/logger"
	"github.com/jthadison/tmt-sub003/internal/metrics"
	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

const (
	engineTestAccount = "101-001-0000001-001"
	engineTestToken   = "test-token"
)

// EngineV1TestSuite runs the fully wired engine against a mock broker: real
// gateway, real journal, real managers, nothing stubbed.
type EngineV1TestSuite struct {
	suite.Suite
	server *brokertest.Server
	eng    engine.ExecutionEngine
	ctx    context.Context
	cancel context.CancelFunc
	runErr chan error
}

func TestEngineV1Suite(t *testing.T) {
	suite.Run(t, new(EngineV1TestSuite))
}

func (suite *EngineV1TestSuite) SetupTest() {
	suite.server = brokertest.NewServer(brokertest.Config{
		AccountID:  engineTestAccount,
		Token:      engineTestToken,
		Commission: decimal.RequireFromString("0.5"),
	})
	suite.Require().NoError(suite.server.Start(""))

	eng, err := NewExecutionEngineV1(suite.testConfig(), logger.NewNopLogger())
	suite.Require().NoError(err)
	suite.eng = eng

	suite.ctx, suite.cancel = context.WithCancel(context.Background())
	suite.runErr = make(chan error, 1)

	go func() { suite.runErr <- suite.eng.Run(suite.ctx) }()

	// The first summary confirms the engine reaches the broker before any
	// test starts trading.
	suite.Require().Eventually(func() bool {
		_, err := suite.eng.GetAccountSummary(suite.ctx, engineTestAccount)

		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func (suite *EngineV1TestSuite) TearDownTest() {
	suite.cancel()
	suite.ErrorIs(<-suite.runErr, context.Canceled)
	suite.Require().NoError(suite.eng.Close())
	suite.Require().NoError(suite.server.Stop())
}

func (suite *EngineV1TestSuite) testConfig() *config.Config {
	return &config.Config{
		Broker: config.BrokerConfig{
			Environment:        config.EnvironmentPractice,
			APIToken:           engineTestToken,
			AccountID:          engineTestAccount,
			BaseURL:            suite.server.BaseURL(),
			AllowLive:          false,
			TimeoutMs:          2000,
			MaxConnections:     4,
			RateLimitPerSecond: 1000,
			RateBurst:          100,
			MaxRetries:         2,
			RetryWaitMinMs:     1,
			RetryWaitMaxMs:     5,
			LatencyWindow:      128,
		},
		Engine: config.EngineConfig{
			Workers:           2,
			QueueSize:         16,
			PriceRefreshMs:    50,
			ReconcileMs:       100,
			SummaryRefreshMs:  50,
			ExpirySweepMs:     50,
			MarketTimeoutMs:   2000,
			CompletedTTLMs:    60000,
			CompletedCapacity: 1000,
		},
		Risk: config.RiskConfig{
			Limits:        suite.testLimits(),
			AccountLimits: nil,
			MonitorMs:     50,
		},
		Journal: config.JournalConfig{Path: "", ExportDir: ""},
		Ops:     config.OpsConfig{Enabled: false, Listen: ""},
		Logging: config.LoggingConfig{Level: "error"},
	}
}

func (suite *EngineV1TestSuite) testLimits() types.RiskLimits {
	return types.RiskLimits{
		MaxPositionSize:           decimal.NewFromInt(5000),
		MaxPositionsPerInstrument: 4,
		MaxOpenPositions:          8,
		MaxLeverage:               decimal.NewFromInt(50),
		MaxDailyLoss:              decimal.NewFromInt(10000),
		MaxWeeklyLoss:             decimal.NewFromInt(50000),
		MaxDrawdown:               decimal.Zero,
		MinMarginRatio:            decimal.Zero,
		MaxOrdersPerMinute:        0,
		WarnRatio:                 decimal.Zero,
		Instruments:               nil,
		KillSwitchTriggers:        nil,
		Version:                   "",
		UpdatedAt:                 time.Time{},
	}
}

func (suite *EngineV1TestSuite) marketRequest(units string) *types.OrderRequest {
	return &types.OrderRequest{
		AccountID:   engineTestAccount,
		Instrument:  "EUR_USD",
		Units:       decimal.RequireFromString(units),
		Kind:        types.OrderKindMarket,
		TimeInForce: types.TimeInForceFOK,
	}
}

func (suite *EngineV1TestSuite) limitRequest(units, price string) *types.OrderRequest {
	return &types.OrderRequest{
		AccountID:   engineTestAccount,
		Instrument:  "EUR_USD",
		Units:       decimal.RequireFromString(units),
		Kind:        types.OrderKindLimit,
		TimeInForce: types.TimeInForceGTC,
		Price:       optional.Some(decimal.RequireFromString(price)),
	}
}

func (suite *EngineV1TestSuite) assertDecimal(expected string, actual decimal.Decimal) {
	suite.True(actual.Equal(decimal.RequireFromString(expected)),
		"expected %s, got %s", expected, actual)
}

func (suite *EngineV1TestSuite) TestMarketOrderFillsAndOpensPosition() {
	result, err := suite.eng.SubmitOrder(suite.ctx, suite.marketRequest("1000"))
	suite.Require().NoError(err)

	suite.True(result.Success)
	suite.Equal(types.OrderStatusFilled, result.Status)
	suite.Require().True(result.FillPrice.IsSome())
	suite.assertDecimal("1.1002", result.FillPrice.Unwrap())
	suite.assertDecimal("1000", result.FilledUnits)

	positions, err := suite.eng.GetOpenPositions(suite.ctx, engineTestAccount)
	suite.Require().NoError(err)
	suite.Require().Len(positions, 1)
	suite.Equal("EUR_USD", positions[0].Instrument)
	suite.assertDecimal("1000", positions[0].Units)
	suite.assertDecimal("1.1002", positions[0].AvgPrice)

	history, err := suite.eng.GetOrderHistory(engineTestAccount, 10)
	suite.Require().NoError(err)
	suite.Require().Len(history, 1)
	suite.Equal(result.OrderID, history[0].OrderID)
	suite.Equal(types.OrderStatusFilled, history[0].Status)
}

func (suite *EngineV1TestSuite) TestOversizedOrderRejectedBeforeBroker() {
	result, err := suite.eng.SubmitOrder(suite.ctx, suite.marketRequest("10000"))
	suite.Require().NoError(err)

	suite.False(result.Success)
	suite.Equal(types.OrderStatusRejected, result.Status)
	suite.Equal(errors.ErrCodePositionSizeExceeded, result.Code)
	suite.Equal(0, suite.server.CallCount("createOrder"))

	positions, err := suite.eng.GetOpenPositions(suite.ctx, engineTestAccount)
	suite.Require().NoError(err)
	suite.Empty(positions)
}

func (suite *EngineV1TestSuite) TestKillSwitchRoundTrip() {
	suite.Require().NoError(suite.eng.ActivateKillSwitch(suite.ctx, engineTestAccount, "manual halt", false))

	state := suite.eng.GetKillSwitchState(engineTestAccount)
	suite.True(state.Active)
	suite.Equal("manual halt", state.Reason)

	result, err := suite.eng.SubmitOrder(suite.ctx, suite.marketRequest("1000"))
	suite.Require().NoError(err)
	suite.False(result.Success)
	suite.Equal(errors.ErrCodeKillSwitchActive, result.Code)
	suite.Equal(0, suite.server.CallCount("createOrder"))

	suite.Require().NoError(suite.eng.DeactivateKillSwitch(engineTestAccount, "halt resolved"))

	result, err = suite.eng.SubmitOrder(suite.ctx, suite.marketRequest("1000"))
	suite.Require().NoError(err)
	suite.True(result.Success)
}

func (suite *EngineV1TestSuite) TestRestingOrderLifecycle() {
	result, err := suite.eng.SubmitOrder(suite.ctx, suite.limitRequest("1000", "1.0900"))
	suite.Require().NoError(err)
	suite.True(result.Success)
	suite.Equal(types.OrderStatusSubmitted, result.Status)

	orderID := result.OrderID

	// The placement is asynchronous; wait for the broker id to land.
	suite.Require().Eventually(func() bool {
		ord, err := suite.eng.GetOrderStatus(suite.ctx, orderID)

		return err == nil && ord.BrokerOrderID.IsSome()
	}, 2*time.Second, 10*time.Millisecond)

	mod := types.OrderModification{Price: optional.Some(decimal.RequireFromString("1.0950"))}

	suite.Require().Eventually(func() bool {
		res, err := suite.eng.ModifyOrder(suite.ctx, orderID, mod)

		return err == nil && res.Success
	}, 2*time.Second, 10*time.Millisecond)

	ord, err := suite.eng.GetOrderStatus(suite.ctx, orderID)
	suite.Require().NoError(err)
	suite.Require().True(ord.Price.IsSome())
	suite.assertDecimal("1.0950", ord.Price.Unwrap())

	suite.Require().Eventually(func() bool {
		res, err := suite.eng.CancelOrder(suite.ctx, orderID)

		return err == nil && res.Success
	}, 2*time.Second, 10*time.Millisecond)

	ord, err = suite.eng.GetOrderStatus(suite.ctx, orderID)
	suite.Require().NoError(err)
	suite.Equal(types.OrderStatusCancelled, ord.Status)

	suite.Empty(suite.eng.GetActiveOrders(suite.ctx, optional.Some(engineTestAccount)))
}

func (suite *EngineV1TestSuite) TestClosePositionRealizesPnL() {
	_, err := suite.eng.SubmitOrder(suite.ctx, suite.marketRequest("1000"))
	suite.Require().NoError(err)

	suite.server.SetQuote("EUR_USD",
		decimal.RequireFromString("1.1050"), decimal.RequireFromString("1.1052"))

	result, err := suite.eng.ClosePosition(suite.ctx, &types.CloseRequest{
		AccountID:  engineTestAccount,
		Instrument: "EUR_USD",
	})
	suite.Require().NoError(err)

	suite.True(result.Success)
	suite.Require().True(result.FillPrice.IsSome())
	suite.assertDecimal("1.1050", result.FillPrice.Unwrap())
	suite.assertDecimal("4.8", result.RealizedPnL)
	suite.assertDecimal("0.5", result.Commission)

	positions, err := suite.eng.GetOpenPositions(suite.ctx, engineTestAccount)
	suite.Require().NoError(err)
	suite.Empty(positions)
}

func (suite *EngineV1TestSuite) TestMetricsTrackExecutions() {
	_, err := suite.eng.SubmitOrder(suite.ctx, suite.marketRequest("1000"))
	suite.Require().NoError(err)

	_, err = suite.eng.SubmitOrder(suite.ctx, suite.marketRequest("10000"))
	suite.Require().NoError(err)

	snapshot := suite.eng.GetMetrics()
	suite.Equal(int64(1), snapshot.Counters[metrics.CounterOrdersSubmitted])
	suite.Equal(int64(1), snapshot.Counters[metrics.CounterOrdersFilled])
	suite.Equal(int64(1), snapshot.Counters[metrics.CounterOrdersRejected])
	suite.Equal(int64(1), snapshot.Counters[metrics.CounterValidationFailures])
	suite.NotEmpty(snapshot.Latencies)
}

func (suite *EngineV1TestSuite) TestValidateOrderMakesNoBrokerOrder() {
	verdict, err := suite.eng.ValidateOrder(suite.ctx, suite.marketRequest("1000"))
	suite.Require().NoError(err)

	suite.True(verdict.Valid)
	suite.True(verdict.RiskScore.GreaterThanOrEqual(decimal.Zero))
	suite.True(verdict.RiskScore.LessThanOrEqual(decimal.NewFromInt(100)))
	suite.Equal(0, suite.server.CallCount("createOrder"))
}

func (suite *EngineV1TestSuite) TestRiskLimitsRoundTrip() {
	limits := suite.eng.GetRiskLimits(engineTestAccount)
	suite.assertDecimal("5000", limits.MaxPositionSize)

	updated := suite.testLimits()
	updated.MaxPositionSize = decimal.NewFromInt(2500)
	suite.Require().NoError(suite.eng.UpdateRiskLimits(engineTestAccount, updated))

	limits = suite.eng.GetRiskLimits(engineTestAccount)
	suite.assertDecimal("2500", limits.MaxPositionSize)
	suite.NotEmpty(limits.Version)

	result, err := suite.eng.SubmitOrder(suite.ctx, suite.marketRequest("3000"))
	suite.Require().NoError(err)
	suite.Equal(errors.ErrCodePositionSizeExceeded, result.Code)
}

func (suite *EngineV1TestSuite) TestAccountSummaryReflectsBroker() {
	summary, err := suite.eng.GetAccountSummary(suite.ctx, engineTestAccount)
	suite.Require().NoError(err)

	suite.Equal(engineTestAccount, summary.AccountID)
	suite.assertDecimal("100000", summary.Balance)
}

func (suite *EngineV1TestSuite) TestGetConfigSchema() {
	schema, err := suite.eng.GetConfigSchema()
	suite.Require().NoError(err)

	suite.Contains(schema, `"broker"`)
	suite.Contains(schema, `"risk"`)
	suite.Contains(schema, `"engine"`)
}

func (suite *EngineV1TestSuite) TestLiveEnvironmentRequiresOptIn() {
	cfg := suite.testConfig()
	cfg.Broker.Environment = config.EnvironmentLive
	cfg.Broker.AllowLive = false

	_, err := NewExecutionEngineV1(cfg, logger.NewNopLogger())
	suite.Require().Error(err)
	suite.Equal(errors.ErrCodeInvalidConfiguration, errors.GetCode(err))
}
