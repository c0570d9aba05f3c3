package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type PositionTestSuite struct {
	suite.Suite
}

func TestPositionSuite(t *testing.T) {
	suite.Run(t, new(PositionTestSuite))
}

func (suite *PositionTestSuite) TestSide() {
	position := Position{Units: decimal.NewFromInt(1000)}
	suite.Equal(PositionSideLong, position.Side())

	position.Units = decimal.NewFromInt(-1000)
	suite.Equal(PositionSideShort, position.Side())

	position.Units = decimal.Zero
	suite.Equal(PositionSideFlat, position.Side())
}

func (suite *PositionTestSuite) TestNotional() {
	position := Position{Units: decimal.NewFromInt(-10000)}
	price := decimal.NewFromFloat(1.1000)

	suite.True(position.Notional(price).Equal(decimal.NewFromInt(11000)))
}

func (suite *PositionTestSuite) TestUnrealizedPnLLong() {
	position := Position{
		Units:    decimal.NewFromInt(10000),
		AvgPrice: decimal.NewFromFloat(1.1000),
	}

	// (1.1050 - 1.1000) * 10000 = 50
	pnl := position.ComputeUnrealizedPnL(decimal.NewFromFloat(1.1050))
	suite.True(pnl.Equal(decimal.NewFromInt(50)), "got %s", pnl)
}

func (suite *PositionTestSuite) TestUnrealizedPnLShort() {
	position := Position{
		Units:    decimal.NewFromInt(-10000),
		AvgPrice: decimal.NewFromFloat(1.1000),
	}

	// (1.1000 - 1.0950) * 10000 = 50 for a short
	pnl := position.ComputeUnrealizedPnL(decimal.NewFromFloat(1.0950))
	suite.True(pnl.Equal(decimal.NewFromInt(50)), "got %s", pnl)

	// Price moving up loses money on a short
	pnl = position.ComputeUnrealizedPnL(decimal.NewFromFloat(1.1050))
	suite.True(pnl.Equal(decimal.NewFromInt(-50)), "got %s", pnl)
}

func (suite *PositionTestSuite) TestCloneIsIndependent() {
	position := Position{
		ID:    "pos-1",
		Units: decimal.NewFromInt(100),
	}

	clone := position.Clone()
	clone.Units = decimal.NewFromInt(200)

	suite.True(position.Units.Equal(decimal.NewFromInt(100)))
}

func (suite *PositionTestSuite) TestPriceMid() {
	price := Price{
		Bid: decimal.NewFromFloat(1.1000),
		Ask: decimal.NewFromFloat(1.1002),
	}

	suite.True(price.Mid().Equal(decimal.NewFromFloat(1.1001)))
	suite.True(price.Spread().Equal(decimal.NewFromFloat(0.0002)))
}

func (suite *PositionTestSuite) TestExecutionPrice() {
	price := Price{
		Bid: decimal.NewFromFloat(1.1000),
		Ask: decimal.NewFromFloat(1.1002),
	}

	suite.True(price.ExecutionPrice(OrderSideBuy).Equal(price.Ask))
	suite.True(price.ExecutionPrice(OrderSideSell).Equal(price.Bid))
}
