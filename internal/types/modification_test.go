package types

import (
	"testing"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/jthadison/tmt-sub003/pkg/errors"
)

type ModificationTestSuite struct {
	suite.Suite

	order *Order
}

func TestModificationSuite(t *testing.T) {
	suite.Run(t, new(ModificationTestSuite))
}

func (suite *ModificationTestSuite) SetupTest() {
	suite.order = &Order{
		ID:         "ord-1",
		AccountID:  "acct-1",
		Instrument: "EUR_USD",
		Units:      decimal.NewFromInt(1000),
		Kind:       OrderKindLimit,
		Price:      optional.Some(decimal.NewFromFloat(1.0950)),
		Status:     OrderStatusSubmitted,
	}
}

func (suite *ModificationTestSuite) TestEmptyModification() {
	mod := OrderModification{}
	suite.True(mod.IsEmpty())

	err := mod.Validate(suite.order)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidModification))
}

func (suite *ModificationTestSuite) TestValidateZeroUnits() {
	mod := OrderModification{Units: optional.Some(decimal.Zero)}

	err := mod.Validate(suite.order)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidModification))
}

func (suite *ModificationTestSuite) TestValidateDirectionFlip() {
	mod := OrderModification{Units: optional.Some(decimal.NewFromInt(-500))}

	err := mod.Validate(suite.order)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidModification))
}

func (suite *ModificationTestSuite) TestValidatePriceOnMarketOrder() {
	suite.order.Kind = OrderKindMarket
	suite.order.Price = optional.None[decimal.Decimal]()

	mod := OrderModification{Price: optional.Some(decimal.NewFromFloat(1.0900))}

	err := mod.Validate(suite.order)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidModification))
}

func (suite *ModificationTestSuite) TestValidateNegativePrice() {
	mod := OrderModification{Price: optional.Some(decimal.NewFromFloat(-1))}

	err := mod.Validate(suite.order)
	suite.Error(err)
}

func (suite *ModificationTestSuite) TestValidateGTDWithoutTime() {
	mod := OrderModification{TimeInForce: optional.Some(TimeInForceGTD)}

	err := mod.Validate(suite.order)
	suite.Error(err)
}

func (suite *ModificationTestSuite) TestValidateBracket() {
	mod := OrderModification{StopLoss: optional.Some(BracketSpec{Price: decimal.Zero})}

	err := mod.Validate(suite.order)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidModification))
}

func (suite *ModificationTestSuite) TestValidateOK() {
	mod := OrderModification{
		Units: optional.Some(decimal.NewFromInt(500)),
		Price: optional.Some(decimal.NewFromFloat(1.0940)),
	}
	suite.NoError(mod.Validate(suite.order))
}

func (suite *ModificationTestSuite) TestApplyOnlyPresentFields() {
	mod := OrderModification{
		Price: optional.Some(decimal.NewFromFloat(1.0940)),
	}

	clone := suite.order.Clone()
	mod.Apply(clone)

	suite.True(clone.Price.Unwrap().Equal(decimal.NewFromFloat(1.0940)))
	suite.True(clone.Units.Equal(decimal.NewFromInt(1000)))
	// Original untouched until commit
	suite.True(suite.order.Price.Unwrap().Equal(decimal.NewFromFloat(1.0950)))
}

func (suite *ModificationTestSuite) TestApplyAllFields() {
	mod := OrderModification{
		Units:       optional.Some(decimal.NewFromInt(800)),
		Price:       optional.Some(decimal.NewFromFloat(1.0930)),
		TimeInForce: optional.Some(TimeInForceGTC),
		StopLoss:    optional.Some(BracketSpec{Price: decimal.NewFromFloat(1.0800)}),
		TakeProfit:  optional.Some(BracketSpec{Price: decimal.NewFromFloat(1.1100)}),
	}

	clone := suite.order.Clone()
	mod.Apply(clone)

	suite.True(clone.Units.Equal(decimal.NewFromInt(800)))
	suite.True(clone.Price.Unwrap().Equal(decimal.NewFromFloat(1.0930)))
	suite.Equal(TimeInForceGTC, clone.TimeInForce)
	suite.True(clone.StopLoss.IsSome())
	suite.True(clone.TakeProfit.IsSome())
}
