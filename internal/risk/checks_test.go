package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

const checksTestAccount = "101-001-0000001-001"

type ChecksTestSuite struct {
	suite.Suite
	ctx context.Context
}

func (suite *ChecksTestSuite) SetupTest() {
	suite.ctx = context.Background()
}

func TestChecksTestSuite(t *testing.T) {
	suite.Run(t, new(ChecksTestSuite))
}

// orderContext builds a healthy context for a signed-units market order that
// individual tests then tighten.
func (suite *ChecksTestSuite) orderContext(units int64) *OrderContext {
	return &OrderContext{
		Request: &types.OrderRequest{
			AccountID:  checksTestAccount,
			Instrument: "EUR_USD",
			Units:      decimal.NewFromInt(units),
			Kind:       types.OrderKindMarket,
		},
		Limits: types.RiskLimits{
			MaxPositionSize:  decimal.NewFromInt(5000),
			MaxOpenPositions: 5,
			MaxLeverage:      decimal.NewFromInt(20),
			MaxDailyLoss:     decimal.NewFromInt(1000),
			MaxWeeklyLoss:    decimal.NewFromInt(5000),
			MinMarginRatio:   decimal.NewFromFloat(0.05),
		},
		Summary: &types.AccountSummary{
			AccountID:       checksTestAccount,
			Balance:         decimal.NewFromInt(100000),
			NAV:             decimal.NewFromInt(100000),
			MarginAvailable: decimal.NewFromInt(95000),
		},
		Positions: nil,
		Price: types.Price{
			Instrument: "EUR_USD",
			Bid:        decimal.NewFromFloat(1.1000),
			Ask:        decimal.NewFromFloat(1.1002),
			Time:       time.Now(),
			Tradeable:  true,
		},
		Instrument: types.Instrument{
			Name:       "EUR_USD",
			MarginRate: decimal.NewFromFloat(0.02),
			MinUnits:   decimal.NewFromInt(1),
			MaxUnits:   decimal.NewFromInt(10000000),
			Tradeable:  true,
		},
		DailyRealizedPnL:  decimal.Zero,
		WeeklyRealizedPnL: decimal.Zero,
		Now:               time.Now(),
	}
}

func (suite *ChecksTestSuite) position(instrument string, units, avgPrice float64) types.Position {
	return types.Position{
		AccountID:  checksTestAccount,
		Instrument: instrument,
		Units:      decimal.NewFromFloat(units),
		AvgPrice:   decimal.NewFromFloat(avgPrice),
	}
}

func (suite *ChecksTestSuite) TestSizeCheckPasses() {
	oc := suite.orderContext(1000)

	result := (&sizeCheck{}).Run(suite.ctx, oc)
	suite.Empty(result.Code)
	suite.Empty(result.Warnings)
	suite.True(result.Recommended.IsNone())
}

func (suite *ChecksTestSuite) TestSizeCheckRejectsOversizedOrder() {
	oc := suite.orderContext(6000)

	result := (&sizeCheck{}).Run(suite.ctx, oc)
	suite.Equal(errors.ErrCodePositionSizeExceeded, result.Code)
	suite.Contains(result.Message, "order units 6000")

	// The warn band is 80% of the 5000 ceiling.
	suite.Require().True(result.Recommended.IsSome())
	suite.True(result.Recommended.Unwrap().Equal(decimal.NewFromInt(4000)))
}

func (suite *ChecksTestSuite) TestSizeCheckRejectsResultingPosition() {
	oc := suite.orderContext(2500)
	oc.Positions = []types.Position{suite.position("EUR_USD", 3000, 1.0950)}

	result := (&sizeCheck{}).Run(suite.ctx, oc)
	suite.Equal(errors.ErrCodePositionSizeExceeded, result.Code)
	suite.Contains(result.Message, "resulting position 5500")

	suite.Require().True(result.Recommended.IsSome())
	suite.True(result.Recommended.Unwrap().Equal(decimal.NewFromInt(1000)))
}

func (suite *ChecksTestSuite) TestSizeCheckWarnsNearCeiling() {
	oc := suite.orderContext(1500)
	oc.Positions = []types.Position{suite.position("EUR_USD", 3000, 1.0950)}

	result := (&sizeCheck{}).Run(suite.ctx, oc)
	suite.Empty(result.Code)
	suite.Require().Len(result.Warnings, 1)
	suite.Contains(result.Warnings[0], "size:")

	suite.Require().True(result.Recommended.IsSome())
	suite.True(result.Recommended.Unwrap().Equal(decimal.NewFromInt(1000)))
}

func (suite *ChecksTestSuite) TestSizeCheckIgnoresReductions() {
	oc := suite.orderContext(-2000)
	oc.Positions = []types.Position{suite.position("EUR_USD", 3000, 1.0950)}

	result := (&sizeCheck{}).Run(suite.ctx, oc)
	suite.Empty(result.Code)
	suite.Empty(result.Warnings)
}

func (suite *ChecksTestSuite) TestSizeCheckCapsReversalByOrderUnits() {
	oc := suite.orderContext(-9000)
	oc.Positions = []types.Position{suite.position("EUR_USD", 5000, 1.0950)}

	result := (&sizeCheck{}).Run(suite.ctx, oc)
	suite.Equal(errors.ErrCodePositionSizeExceeded, result.Code)
	suite.Contains(result.Message, "order units 9000")

	// The recommendation keeps the order itself inside the warn band.
	suite.Require().True(result.Recommended.IsSome())
	suite.True(result.Recommended.Unwrap().Equal(decimal.NewFromInt(-4000)))
}

func (suite *ChecksTestSuite) TestSizeCheckDisabledWhenZero() {
	oc := suite.orderContext(1000000)
	oc.Limits.MaxPositionSize = decimal.Zero

	result := (&sizeCheck{}).Run(suite.ctx, oc)
	suite.Empty(result.Code)
}

func (suite *ChecksTestSuite) TestLeverageCheckRejects() {
	oc := suite.orderContext(10000)
	oc.Limits.MaxLeverage = decimal.NewFromInt(1)
	oc.Limits.MaxPositionSize = decimal.NewFromInt(50000)
	oc.Summary.Balance = decimal.NewFromInt(10000)

	// 10000 units at 1.1002 is 11002 exposure against a 10000 balance.
	result := (&leverageCheck{}).Run(suite.ctx, oc)
	suite.Equal(errors.ErrCodeLeverageExceeded, result.Code)
	suite.Contains(result.Message, "leverage 1.1002")
}

func (suite *ChecksTestSuite) TestLeverageCheckWarnsNearCeiling() {
	oc := suite.orderContext(7300)
	oc.Limits.MaxLeverage = decimal.NewFromInt(1)
	oc.Summary.Balance = decimal.NewFromInt(10000)

	// 7300 units at 1.1002 is 8031.46 exposure: 80.3% of the ceiling.
	result := (&leverageCheck{}).Run(suite.ctx, oc)
	suite.Empty(result.Code)
	suite.Require().Len(result.Warnings, 1)
	suite.Contains(result.Warnings[0], "leverage:")
}

func (suite *ChecksTestSuite) TestLeverageCheckCountsExistingExposure() {
	oc := suite.orderContext(1000)
	oc.Limits.MaxLeverage = decimal.NewFromInt(1)
	oc.Summary.Balance = decimal.NewFromInt(10000)

	position := suite.position("GBP_USD", 8000, 1.2700)
	position.CurrentPrice = decimal.NewFromFloat(1.2700)
	oc.Positions = []types.Position{position}

	// 10160 existing plus 1100.2 new exceeds the 10000 ceiling.
	result := (&leverageCheck{}).Run(suite.ctx, oc)
	suite.Equal(errors.ErrCodeLeverageExceeded, result.Code)
}

func (suite *ChecksTestSuite) TestLeverageCheckRejectsNonPositiveBalance() {
	oc := suite.orderContext(1000)
	oc.Summary.Balance = decimal.Zero

	result := (&leverageCheck{}).Run(suite.ctx, oc)
	suite.Equal(errors.ErrCodeLeverageExceeded, result.Code)
}

func (suite *ChecksTestSuite) TestMarginCheckRejectsInsufficient() {
	oc := suite.orderContext(1000)
	oc.Summary.MarginAvailable = decimal.NewFromInt(10)

	// Required margin is 1000 * 1.1002 * 0.02 = 22.004.
	result := (&marginCheck{}).Run(suite.ctx, oc)
	suite.Equal(errors.ErrCodeMarginInsufficient, result.Code)
	suite.Contains(result.Message, "required margin 22.004")
}

func (suite *ChecksTestSuite) TestMarginCheckRejectsBelowRatioFloor() {
	oc := suite.orderContext(1000)
	oc.Limits.MinMarginRatio = decimal.NewFromFloat(0.5)
	oc.Summary.MarginAvailable = decimal.NewFromInt(50010)

	// (50010 - 22.004) / 100000 = 0.49988, just under the 0.5 floor.
	result := (&marginCheck{}).Run(suite.ctx, oc)
	suite.Equal(errors.ErrCodeMarginInsufficient, result.Code)
	suite.Contains(result.Message, "margin ratio")
}

func (suite *ChecksTestSuite) TestMarginCheckWarnsOnHeavyUse() {
	oc := suite.orderContext(1000)
	oc.Limits.MinMarginRatio = decimal.Zero
	oc.Summary.MarginAvailable = decimal.NewFromInt(25)

	// 22.004 of 25 available is 88% utilisation.
	result := (&marginCheck{}).Run(suite.ctx, oc)
	suite.Empty(result.Code)
	suite.Require().Len(result.Warnings, 1)
	suite.Contains(result.Warnings[0], "margin:")
}

func (suite *ChecksTestSuite) TestMarginCheckPasses() {
	oc := suite.orderContext(1000)

	result := (&marginCheck{}).Run(suite.ctx, oc)
	suite.Empty(result.Code)
	suite.Empty(result.Warnings)
}

func (suite *ChecksTestSuite) TestPositionCountCheckRejects() {
	oc := suite.orderContext(1000)
	oc.Request.Instrument = "USD_JPY"
	oc.Limits.MaxOpenPositions = 2
	oc.Positions = []types.Position{
		suite.position("EUR_USD", 1000, 1.1000),
		suite.position("GBP_USD", 1000, 1.2700),
	}

	result := (&positionCountCheck{}).Run(suite.ctx, oc)
	suite.Equal(errors.ErrCodePositionCountExceeded, result.Code)
}

func (suite *ChecksTestSuite) TestPositionCountCheckWarnsAtCeiling() {
	oc := suite.orderContext(1000)
	oc.Request.Instrument = "GBP_USD"
	oc.Limits.MaxOpenPositions = 2
	oc.Positions = []types.Position{suite.position("EUR_USD", 1000, 1.1000)}

	result := (&positionCountCheck{}).Run(suite.ctx, oc)
	suite.Empty(result.Code)
	suite.Require().Len(result.Warnings, 1)
	suite.Contains(result.Warnings[0], "position-count:")
}

func (suite *ChecksTestSuite) TestPositionCountCheckAllowsExistingInstrument() {
	oc := suite.orderContext(1000)
	oc.Limits.MaxOpenPositions = 2
	oc.Positions = []types.Position{
		suite.position("EUR_USD", 1000, 1.1000),
		suite.position("GBP_USD", 1000, 1.2700),
	}

	// EUR_USD is already held, so this order opens nothing new.
	result := (&positionCountCheck{}).Run(suite.ctx, oc)
	suite.Empty(result.Code)
}

func (suite *ChecksTestSuite) TestDailyLossCheckRejects() {
	oc := suite.orderContext(1000)
	oc.DailyRealizedPnL = decimal.NewFromInt(-600)

	position := suite.position("EUR_USD", 1000, 1.1000)
	position.UnrealizedPnL = decimal.NewFromInt(-400)
	oc.Positions = []types.Position{position}

	result := (&dailyLossCheck{}).Run(suite.ctx, oc)
	suite.Equal(errors.ErrCodeDailyLossExceeded, result.Code)
	suite.Contains(result.Message, "daily loss 1000")
}

func (suite *ChecksTestSuite) TestDailyLossCheckWarnsNearCeiling() {
	oc := suite.orderContext(1000)
	oc.DailyRealizedPnL = decimal.NewFromInt(-500)

	position := suite.position("EUR_USD", 1000, 1.1000)
	position.UnrealizedPnL = decimal.NewFromInt(-300)
	oc.Positions = []types.Position{position}

	result := (&dailyLossCheck{}).Run(suite.ctx, oc)
	suite.Empty(result.Code)
	suite.Require().Len(result.Warnings, 1)
	suite.Contains(result.Warnings[0], "daily-loss:")
}

func (suite *ChecksTestSuite) TestWeeklyLossCheckRejects() {
	oc := suite.orderContext(1000)
	oc.DailyRealizedPnL = decimal.NewFromInt(-100)
	oc.WeeklyRealizedPnL = decimal.NewFromInt(-1900)
	oc.Limits.MaxWeeklyLoss = decimal.NewFromInt(2000)

	position := suite.position("EUR_USD", 1000, 1.1000)
	position.UnrealizedPnL = decimal.NewFromInt(-200)
	oc.Positions = []types.Position{position}

	result := (&dailyLossCheck{}).Run(suite.ctx, oc)
	suite.Equal(errors.ErrCodeDailyLossExceeded, result.Code)
	suite.Contains(result.Message, "weekly loss 2100")
}

func (suite *ChecksTestSuite) TestDailyLossCheckIgnoresProfit() {
	oc := suite.orderContext(1000)
	oc.DailyRealizedPnL = decimal.NewFromInt(500)

	result := (&dailyLossCheck{}).Run(suite.ctx, oc)
	suite.Empty(result.Code)
	suite.Empty(result.Warnings)
}

func (suite *ChecksTestSuite) TestDrawdownCheckRejects() {
	oc := suite.orderContext(1000)
	oc.Limits.MaxDrawdown = decimal.NewFromFloat(0.10)
	oc.Summary.NAV = decimal.NewFromInt(88000)

	// NAV 88000 against a 100000 balance is a 12% drawdown.
	result := (&drawdownCheck{}).Run(suite.ctx, oc)
	suite.Equal(errors.ErrCodeDrawdownExceeded, result.Code)
	suite.Contains(result.Message, "drawdown 0.12")
}

func (suite *ChecksTestSuite) TestDrawdownCheckWarnsNearCeiling() {
	oc := suite.orderContext(1000)
	oc.Limits.MaxDrawdown = decimal.NewFromFloat(0.10)
	oc.Summary.NAV = decimal.NewFromInt(91500)

	// An 8.5% drawdown sits inside the 80% warn band of the 10% limit.
	result := (&drawdownCheck{}).Run(suite.ctx, oc)
	suite.Empty(result.Code)
	suite.Require().Len(result.Warnings, 1)
	suite.Contains(result.Warnings[0], "drawdown:")
}

func (suite *ChecksTestSuite) TestDrawdownCheckIgnoresProfit() {
	oc := suite.orderContext(1000)
	oc.Limits.MaxDrawdown = decimal.NewFromFloat(0.10)
	oc.Summary.NAV = decimal.NewFromInt(120000)

	result := (&drawdownCheck{}).Run(suite.ctx, oc)
	suite.Empty(result.Code)
	suite.Empty(result.Warnings)
}

func (suite *ChecksTestSuite) TestDrawdownCheckDisabledWhenZero() {
	oc := suite.orderContext(1000)
	oc.Summary.NAV = decimal.NewFromInt(50000)

	result := (&drawdownCheck{}).Run(suite.ctx, oc)
	suite.Empty(result.Code)
	suite.Empty(result.Warnings)
}

func (suite *ChecksTestSuite) TestInstrumentCheckRejectsHalted() {
	oc := suite.orderContext(1000)
	oc.Price.Tradeable = false

	result := (&instrumentCheck{}).Run(suite.ctx, oc)
	suite.Equal(errors.ErrCodeInstrumentNotTradeable, result.Code)
	suite.Contains(result.Message, "halted")
}

func (suite *ChecksTestSuite) TestInstrumentCheckRejectsOutsideAllowList() {
	oc := suite.orderContext(1000)
	oc.Limits.Instruments = []string{"GBP_USD"}

	result := (&instrumentCheck{}).Run(suite.ctx, oc)
	suite.Equal(errors.ErrCodeInstrumentNotTradeable, result.Code)
	suite.Contains(result.Message, "allow list")
}

func (suite *ChecksTestSuite) TestInstrumentCheckEnforcesUnitBounds() {
	oc := suite.orderContext(50)
	oc.Instrument.MinUnits = decimal.NewFromInt(100)

	result := (&instrumentCheck{}).Run(suite.ctx, oc)
	suite.Equal(errors.ErrCodeInvalidOrder, result.Code)
	suite.Contains(result.Message, "below instrument minimum")

	oc = suite.orderContext(5000)
	oc.Instrument.MaxUnits = decimal.NewFromInt(1000)

	result = (&instrumentCheck{}).Run(suite.ctx, oc)
	suite.Equal(errors.ErrCodeInvalidOrder, result.Code)
	suite.Contains(result.Message, "above instrument maximum")
}

func (suite *ChecksTestSuite) TestInstrumentCheckPasses() {
	oc := suite.orderContext(1000)
	oc.Limits.Instruments = []string{"EUR_USD", "GBP_USD"}

	result := (&instrumentCheck{}).Run(suite.ctx, oc)
	suite.Empty(result.Code)
}

func (suite *ChecksTestSuite) TestRecommendationNoneWhenRequestFits() {
	oc := suite.orderContext(1000)

	recommended := recommendUnits(oc, decimal.Zero, oc.Limits.MaxPositionSize)
	suite.True(recommended.IsNone())
}
