package position

import (
	"context"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/jthadison/tmt-sub003/internal/broker"
	"github.com/jthadison/tmt-sub003/internal/logger"
	"github.com/jthadison/tmt-sub003/internal/metrics"
	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

type PositionManagerTestSuite struct {
	suite.Suite
	manager  *Manager
	gateway  *stubGateway
	recorder *stubRecorder
	registry *metrics.Registry
	ctx      context.Context
}

func (suite *PositionManagerTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.gateway = &stubGateway{
		closeResult: &broker.CloseResult{
			Units:       decimal.NewFromInt(1000),
			Price:       decimal.NewFromFloat(1.1040),
			RealizedPnL: decimal.NewFromInt(4),
			Commission:  decimal.NewFromFloat(0.5),
			Time:        time.Now(),
		},
	}
	suite.recorder = &stubRecorder{}
	suite.registry = metrics.NewRegistry(64)
	suite.manager = New(testEngineConfig(), positionTestAccount, suite.gateway, suite.recorder, logger.NewNopLogger(), suite.registry)
}

func TestPositionManagerTestSuite(t *testing.T) {
	suite.Run(t, new(PositionManagerTestSuite))
}

// seed opens a position directly through the ledger.
func (suite *PositionManagerTestSuite) seed(instrument string, units, price float64) *types.Position {
	outcome, err := suite.manager.ApplyFill(suite.ctx, types.Fill{
		OrderID:    "seed-" + instrument,
		AccountID:  positionTestAccount,
		Instrument: instrument,
		Units:      decimal.NewFromFloat(units),
		Price:      decimal.NewFromFloat(price),
		Commission: decimal.Zero,
		Time:       time.Now(),
	})
	suite.Require().NoError(err)

	return outcome.Position
}

func (suite *PositionManagerTestSuite) closeRequest(instrument string) *types.CloseRequest {
	return &types.CloseRequest{
		PositionID: optional.None[string](),
		AccountID:  positionTestAccount,
		Instrument: instrument,
		Units:      optional.None[decimal.Decimal](),
	}
}

func (suite *PositionManagerTestSuite) TestCloseFullPosition() {
	suite.seed("EUR_USD", 1000, 1.1000)

	result, err := suite.manager.Close(suite.ctx, suite.closeRequest("EUR_USD"))
	suite.Require().NoError(err)

	suite.True(result.Success)
	suite.NotEmpty(result.OrderID)
	suite.Equal(types.OrderStatusFilled, result.Status)
	suite.True(result.FilledUnits.Equal(decimal.NewFromInt(-1000)))
	suite.Require().True(result.FillPrice.IsSome())
	suite.True(result.FillPrice.Unwrap().Equal(decimal.NewFromFloat(1.1040)))
	suite.True(result.RealizedPnL.Equal(decimal.NewFromInt(4)))
	suite.True(result.Commission.Equal(decimal.NewFromFloat(0.5)))

	positions, err := suite.manager.OpenPositions(suite.ctx, positionTestAccount)
	suite.Require().NoError(err)
	suite.Empty(positions)

	// Full closes ask the broker to close everything, not a unit count.
	suite.Require().Equal(1, suite.gateway.closeCallCount())
	suite.True(suite.gateway.closeCalls[0].units.IsNone())

	executions := suite.recorder.recorded()
	suite.Require().Len(executions, 1)
	suite.Equal(types.FillOutcomeClose, executions[0].Outcome)
	suite.True(executions[0].Units.Equal(decimal.NewFromInt(-1000)))
	suite.True(executions[0].RealizedPnL.Equal(decimal.NewFromInt(4)))
}

func (suite *PositionManagerTestSuite) TestClosePartial() {
	suite.seed("EUR_USD", 1000, 1.1000)

	req := suite.closeRequest("EUR_USD")
	req.Units = optional.Some(decimal.NewFromInt(400))

	result, err := suite.manager.Close(suite.ctx, req)
	suite.Require().NoError(err)
	suite.True(result.FilledUnits.Equal(decimal.NewFromInt(-400)))

	pos, err := suite.manager.Position(positionTestAccount, "EUR_USD")
	suite.Require().NoError(err)
	suite.True(pos.Units.Equal(decimal.NewFromInt(600)))
	suite.True(pos.AvgPrice.Equal(decimal.NewFromFloat(1.1000)))

	suite.Require().Equal(1, suite.gateway.closeCallCount())
	suite.Require().True(suite.gateway.closeCalls[0].units.IsSome())
	suite.True(suite.gateway.closeCalls[0].units.Unwrap().Equal(decimal.NewFromInt(400)))

	executions := suite.recorder.recorded()
	suite.Require().Len(executions, 1)
	suite.Equal(types.FillOutcomeReduce, executions[0].Outcome)
}

func (suite *PositionManagerTestSuite) TestCloseShortPosition() {
	suite.seed("EUR_USD", -1000, 1.1000)
	suite.gateway.closeResult.Price = decimal.NewFromFloat(1.0950)
	suite.gateway.closeResult.RealizedPnL = decimal.NewFromInt(5)

	result, err := suite.manager.Close(suite.ctx, suite.closeRequest("EUR_USD"))
	suite.Require().NoError(err)

	// Buying back a short fills positive units.
	suite.True(result.FilledUnits.Equal(decimal.NewFromInt(1000)))
	suite.True(result.RealizedPnL.Equal(decimal.NewFromInt(5)))

	positions, err := suite.manager.OpenPositions(suite.ctx, positionTestAccount)
	suite.Require().NoError(err)
	suite.Empty(positions)
}

func (suite *PositionManagerTestSuite) TestCloseRejectsExcessUnits() {
	suite.seed("EUR_USD", 1000, 1.1000)

	req := suite.closeRequest("EUR_USD")
	req.Units = optional.Some(decimal.NewFromInt(1500))

	_, err := suite.manager.Close(suite.ctx, req)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeUnitsExceedPosition))
	suite.Equal(0, suite.gateway.closeCallCount())
}

func (suite *PositionManagerTestSuite) TestCloseUnknownPosition() {
	_, err := suite.manager.Close(suite.ctx, suite.closeRequest("EUR_USD"))
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodePositionNotFound))
}

func (suite *PositionManagerTestSuite) TestCloseByPositionID() {
	seeded := suite.seed("EUR_USD", 1000, 1.1000)

	req := &types.CloseRequest{
		PositionID: optional.Some(seeded.ID),
		AccountID:  "",
		Instrument: "",
		Units:      optional.None[decimal.Decimal](),
	}

	result, err := suite.manager.Close(suite.ctx, req)
	suite.Require().NoError(err)
	suite.True(result.Success)

	positions, err := suite.manager.OpenPositions(suite.ctx, positionTestAccount)
	suite.Require().NoError(err)
	suite.Empty(positions)
}

func (suite *PositionManagerTestSuite) TestFlattenAllClosesEverything() {
	suite.seed("EUR_USD", 1000, 1.1000)
	suite.seed("GBP_USD", -2000, 1.2700)

	err := suite.manager.FlattenAll(suite.ctx, positionTestAccount)
	suite.Require().NoError(err)

	suite.Equal(2, suite.gateway.closeCallCount())

	positions, err := suite.manager.OpenPositions(suite.ctx, positionTestAccount)
	suite.Require().NoError(err)
	suite.Empty(positions)
}

func (suite *PositionManagerTestSuite) TestFlattenAllKeepsGoingOnFailure() {
	suite.seed("EUR_USD", 1000, 1.1000)
	suite.seed("GBP_USD", -2000, 1.2700)
	suite.gateway.closeErrFor = map[string]error{
		"EUR_USD": errors.New(errors.ErrCodeBrokerError, "market closed"),
	}

	err := suite.manager.FlattenAll(suite.ctx, positionTestAccount)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeBrokerError))
	suite.Contains(err.Error(), "EUR_USD")

	// The other instrument still got closed.
	positions, err := suite.manager.OpenPositions(suite.ctx, positionTestAccount)
	suite.Require().NoError(err)
	suite.Require().Len(positions, 1)
	suite.Equal("EUR_USD", positions[0].Instrument)
}

func (suite *PositionManagerTestSuite) TestPriceServesFromCache() {
	suite.gateway.prices = []types.Price{
		{Instrument: "EUR_USD", Bid: decimal.NewFromFloat(1.1000), Ask: decimal.NewFromFloat(1.1002), Time: time.Now(), Tradeable: true},
	}

	price, err := suite.manager.Price(suite.ctx, "EUR_USD")
	suite.Require().NoError(err)
	suite.True(price.Ask.Equal(decimal.NewFromFloat(1.1002)))
	suite.Equal(1, suite.gateway.priceCallCount())

	_, err = suite.manager.Price(suite.ctx, "EUR_USD")
	suite.Require().NoError(err)
	suite.Equal(1, suite.gateway.priceCallCount())
}

func (suite *PositionManagerTestSuite) TestPriceUnknownInstrument() {
	suite.gateway.prices = nil

	_, err := suite.manager.Price(suite.ctx, "XAG_XAU")
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *PositionManagerTestSuite) TestInstrumentFetchesOnce() {
	suite.gateway.instruments = []types.Instrument{
		{Name: "EUR_USD", MarginRate: decimal.NewFromFloat(0.02), MinUnits: decimal.NewFromInt(1), MaxUnits: decimal.NewFromInt(10000000), Tradeable: true},
		{Name: "GBP_USD", MarginRate: decimal.NewFromFloat(0.03), MinUnits: decimal.NewFromInt(1), MaxUnits: decimal.NewFromInt(10000000), Tradeable: true},
	}

	instrument, err := suite.manager.Instrument(suite.ctx, "EUR_USD")
	suite.Require().NoError(err)
	suite.True(instrument.MarginRate.Equal(decimal.NewFromFloat(0.02)))
	suite.Equal(1, suite.gateway.instrumentCalls)

	// The bulk fetch cached the sibling too.
	_, err = suite.manager.Instrument(suite.ctx, "GBP_USD")
	suite.Require().NoError(err)
	suite.Equal(1, suite.gateway.instrumentCalls)
}

func (suite *PositionManagerTestSuite) TestRefreshPricesMarksToMarket() {
	suite.seed("EUR_USD", 1000, 1.1000)
	suite.seed("GBP_USD", -1000, 1.2700)
	suite.gateway.prices = []types.Price{
		{Instrument: "EUR_USD", Bid: decimal.NewFromFloat(1.1050), Ask: decimal.NewFromFloat(1.1052), Time: time.Now(), Tradeable: true},
		{Instrument: "GBP_USD", Bid: decimal.NewFromFloat(1.2690), Ask: decimal.NewFromFloat(1.2694), Time: time.Now(), Tradeable: true},
	}

	suite.Require().NoError(suite.manager.refreshPrices(suite.ctx))

	long, err := suite.manager.Position(positionTestAccount, "EUR_USD")
	suite.Require().NoError(err)
	suite.True(long.CurrentPrice.Equal(decimal.NewFromFloat(1.1050)), "long marks at bid")
	suite.True(long.UnrealizedPnL.Equal(decimal.NewFromInt(5)))

	short, err := suite.manager.Position(positionTestAccount, "GBP_USD")
	suite.Require().NoError(err)
	suite.True(short.CurrentPrice.Equal(decimal.NewFromFloat(1.2694)), "short marks at ask")
	suite.True(short.UnrealizedPnL.Equal(decimal.NewFromFloat(0.6)))
}

func (suite *PositionManagerTestSuite) TestRefreshPricesSkipsWhenFlat() {
	suite.Require().NoError(suite.manager.refreshPrices(suite.ctx))
	suite.Equal(0, suite.gateway.priceCallCount())
}

func (suite *PositionManagerTestSuite) TestReconcileOverwritesDrift() {
	suite.seed("EUR_USD", 1000, 1.1000)
	suite.gateway.positions = []types.Position{
		{AccountID: positionTestAccount, Instrument: "EUR_USD", Units: decimal.NewFromInt(900), AvgPrice: decimal.NewFromFloat(1.1010)},
	}

	suite.Require().NoError(suite.manager.Reconcile(suite.ctx, positionTestAccount))

	pos, err := suite.manager.Position(positionTestAccount, "EUR_USD")
	suite.Require().NoError(err)
	suite.True(pos.Units.Equal(decimal.NewFromInt(900)))
	suite.True(pos.AvgPrice.Equal(decimal.NewFromFloat(1.1010)))
	suite.Equal(int64(1), suite.registry.Counter(metrics.CounterReconcileDrifts))
}

func (suite *PositionManagerTestSuite) TestReconcileDropsLocalOnly() {
	suite.seed("EUR_USD", 1000, 1.1000)
	suite.gateway.positions = nil

	suite.Require().NoError(suite.manager.Reconcile(suite.ctx, positionTestAccount))

	positions, err := suite.manager.OpenPositions(suite.ctx, positionTestAccount)
	suite.Require().NoError(err)
	suite.Empty(positions)
	suite.Equal(int64(1), suite.registry.Counter(metrics.CounterReconcileDrifts))
}

func (suite *PositionManagerTestSuite) TestReconcileAdoptsBrokerOnly() {
	suite.gateway.positions = []types.Position{
		{AccountID: positionTestAccount, Instrument: "GBP_USD", Units: decimal.NewFromInt(-2000), AvgPrice: decimal.NewFromFloat(1.2700)},
	}

	suite.Require().NoError(suite.manager.Reconcile(suite.ctx, positionTestAccount))

	pos, err := suite.manager.Position(positionTestAccount, "GBP_USD")
	suite.Require().NoError(err)
	suite.NotEmpty(pos.ID)
	suite.True(pos.Units.Equal(decimal.NewFromInt(-2000)))
	suite.False(pos.OpenedAt.IsZero())
	suite.Equal(int64(1), suite.registry.Counter(metrics.CounterReconcileDrifts))
}

func (suite *PositionManagerTestSuite) TestReconcileCleanPassTouchesNothing() {
	seeded := suite.seed("EUR_USD", 1000, 1.1000)
	suite.gateway.positions = []types.Position{
		{AccountID: positionTestAccount, Instrument: "EUR_USD", Units: decimal.NewFromInt(1000), AvgPrice: decimal.NewFromFloat(1.1000)},
	}

	suite.Require().NoError(suite.manager.Reconcile(suite.ctx, positionTestAccount))

	pos, err := suite.manager.Position(positionTestAccount, "EUR_USD")
	suite.Require().NoError(err)
	suite.Equal(seeded.ID, pos.ID)
	suite.Equal(int64(0), suite.registry.Counter(metrics.CounterReconcileDrifts))
}

func (suite *PositionManagerTestSuite) TestAccountSummaryCachesWithTTL() {
	suite.gateway.summary = &types.AccountSummary{
		AccountID:         positionTestAccount,
		Currency:          "USD",
		Balance:           decimal.NewFromInt(100000),
		NAV:               decimal.NewFromInt(100000),
		MarginAvailable:   decimal.NewFromInt(95000),
		PendingOrderCount: 1,
		UpdatedAt:         time.Now(),
	}

	summary, err := suite.manager.AccountSummary(suite.ctx, positionTestAccount)
	suite.Require().NoError(err)
	suite.True(summary.Balance.Equal(decimal.NewFromInt(100000)))
	suite.Equal(1, suite.gateway.summaryCalls)

	_, err = suite.manager.AccountSummary(suite.ctx, positionTestAccount)
	suite.Require().NoError(err)
	suite.Equal(1, suite.gateway.summaryCalls)
}

func (suite *PositionManagerTestSuite) TestAccountSummaryMergesPendingCount() {
	suite.gateway.summary = &types.AccountSummary{
		AccountID:         positionTestAccount,
		Currency:          "USD",
		Balance:           decimal.NewFromInt(100000),
		NAV:               decimal.NewFromInt(100000),
		MarginAvailable:   decimal.NewFromInt(95000),
		PendingOrderCount: 1,
		UpdatedAt:         time.Now(),
	}

	suite.manager.SetPendingCounter(func(string) int { return 3 })

	summary, err := suite.manager.AccountSummary(suite.ctx, positionTestAccount)
	suite.Require().NoError(err)
	suite.Equal(3, summary.PendingOrderCount)
}

func (suite *PositionManagerTestSuite) TestAccountSummaryKeepsBrokerPendingWhenHigher() {
	suite.gateway.summary = &types.AccountSummary{
		AccountID:         positionTestAccount,
		Currency:          "USD",
		Balance:           decimal.NewFromInt(100000),
		NAV:               decimal.NewFromInt(100000),
		MarginAvailable:   decimal.NewFromInt(95000),
		PendingOrderCount: 2,
		UpdatedAt:         time.Now(),
	}

	suite.manager.SetPendingCounter(func(string) int { return 0 })

	summary, err := suite.manager.AccountSummary(suite.ctx, positionTestAccount)
	suite.Require().NoError(err)
	suite.Equal(2, summary.PendingOrderCount)
}

func (suite *PositionManagerTestSuite) TestRunPriceRefresherStopsOnCancel() {
	ctx, cancel := context.WithTimeout(suite.ctx, 30*time.Millisecond)
	defer cancel()

	err := suite.manager.RunPriceRefresher(ctx)
	suite.Require().ErrorIs(err, context.DeadlineExceeded)
}

func (suite *PositionManagerTestSuite) TestRunReconcilerStopsOnCancel() {
	ctx, cancel := context.WithTimeout(suite.ctx, 30*time.Millisecond)
	defer cancel()

	err := suite.manager.RunReconciler(ctx)
	suite.Require().ErrorIs(err, context.DeadlineExceeded)
}
