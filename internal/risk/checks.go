package risk

import (
	"context"
	"fmt"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/jthadison/tmt-sub003/pkg/errors"
)

// passed is the zero verdict.
func passed() CheckResult {
	return CheckResult{
		Code:        "",
		Message:     "",
		Warnings:    nil,
		Recommended: optional.None[decimal.Decimal](),
	}
}

// failedf builds a failing verdict.
func failedf(code errors.ErrorCode, format string, args ...interface{}) CheckResult {
	return CheckResult{
		Code:        code,
		Message:     fmt.Sprintf(format, args...),
		Warnings:    nil,
		Recommended: optional.None[decimal.Decimal](),
	}
}

// sizeCheck enforces MaxPositionSize on both the order's own units and the
// position that would result from it.
type sizeCheck struct{}

func (c *sizeCheck) Name() string { return "size" }

func (c *sizeCheck) Run(_ context.Context, oc *OrderContext) CheckResult {
	ceiling := oc.Limits.MaxPositionSize
	if !ceiling.IsPositive() {
		return passed()
	}

	requested := oc.Request.Units.Abs()

	existingUnits := decimal.Zero
	if pos := oc.existingPosition(); pos != nil {
		existingUnits = pos.Units
	}

	resulting := existingUnits.Add(oc.Request.Units).Abs()

	// Signed projection of the existing position onto the order's direction:
	// positive when the order adds to it, negative when it offsets.
	projection := existingUnits
	if oc.Request.Units.IsNegative() {
		projection = existingUnits.Neg()
	}

	if requested.GreaterThan(ceiling) {
		result := failedf(errors.ErrCodePositionSizeExceeded,
			"order units %s exceed max position size %s", requested, ceiling)
		result.Recommended = recommendUnits(oc, projection, ceiling)

		return result
	}

	if resulting.GreaterThan(ceiling) {
		result := failedf(errors.ErrCodePositionSizeExceeded,
			"resulting position %s exceeds max position size %s", resulting, ceiling)
		result.Recommended = recommendUnits(oc, projection, ceiling)

		return result
	}

	warnBand := ceiling.Mul(oc.Limits.EffectiveWarnRatio())
	if resulting.GreaterThanOrEqual(warnBand) {
		result := passed()
		result.Warnings = []string{fmt.Sprintf(
			"size: resulting position %s is within %s%% of max %s",
			resulting, warnPercent(oc.Limits.EffectiveWarnRatio()), ceiling)}
		result.Recommended = recommendUnits(oc, projection, ceiling)

		return result
	}

	return passed()
}

// recommendUnits suggests the largest order that keeps both the order and
// the resulting position at the warning band, None when the request already
// fits.
func recommendUnits(oc *OrderContext, projection, ceiling decimal.Decimal) optional.Option[decimal.Decimal] {
	band := ceiling.Mul(oc.Limits.EffectiveWarnRatio())

	headroom := band.Sub(projection)
	if headroom.GreaterThan(band) {
		headroom = band
	}

	if headroom.IsNegative() {
		headroom = decimal.Zero
	}

	requested := oc.Request.Units.Abs()
	if headroom.GreaterThanOrEqual(requested) {
		return optional.None[decimal.Decimal]()
	}

	if oc.Request.Units.IsNegative() {
		headroom = headroom.Neg()
	}

	return optional.Some(headroom)
}

func warnPercent(ratio decimal.Decimal) string {
	return ratio.Mul(decimal.NewFromInt(100)).String()
}

// leverageCheck enforces MaxLeverage over total exposure after the order.
type leverageCheck struct{}

func (c *leverageCheck) Name() string { return "leverage" }

func (c *leverageCheck) Run(_ context.Context, oc *OrderContext) CheckResult {
	ceiling := oc.Limits.MaxLeverage
	if !ceiling.IsPositive() {
		return passed()
	}

	balance := oc.Summary.Balance
	if !balance.IsPositive() {
		return failedf(errors.ErrCodeLeverageExceeded,
			"account balance %s cannot support new exposure", balance)
	}

	exposure := oc.totalNotional().Add(oc.newNotional())
	leverage := exposure.Div(balance)

	if leverage.GreaterThan(ceiling) {
		return failedf(errors.ErrCodeLeverageExceeded,
			"leverage %s exceeds max %s", leverage.Round(4), ceiling)
	}

	if leverage.GreaterThanOrEqual(ceiling.Mul(oc.Limits.EffectiveWarnRatio())) {
		result := passed()
		result.Warnings = []string{fmt.Sprintf(
			"leverage: %s is within %s%% of max %s",
			leverage.Round(4), warnPercent(oc.Limits.EffectiveWarnRatio()), ceiling)}

		return result
	}

	return passed()
}

// marginCheck refuses orders whose required margin does not fit, or that
// would push the account's free margin ratio below the configured floor.
type marginCheck struct{}

func (c *marginCheck) Name() string { return "margin" }

func (c *marginCheck) Run(_ context.Context, oc *OrderContext) CheckResult {
	required := oc.newNotional().Mul(oc.Instrument.MarginRate)
	available := oc.Summary.MarginAvailable

	if required.GreaterThan(available) {
		return failedf(errors.ErrCodeMarginInsufficient,
			"required margin %s exceeds available %s", required, available)
	}

	if floor := oc.Limits.MinMarginRatio; floor.IsPositive() {
		if !oc.Summary.NAV.IsPositive() {
			return failedf(errors.ErrCodeMarginInsufficient,
				"account value %s cannot support margin", oc.Summary.NAV)
		}

		after := available.Sub(required).Div(oc.Summary.NAV)
		if after.LessThan(floor) {
			return failedf(errors.ErrCodeMarginInsufficient,
				"margin ratio %s after fill is below minimum %s", after.Round(4), floor)
		}
	}

	if available.IsPositive() {
		used := required.Div(available)
		if used.GreaterThanOrEqual(oc.Limits.EffectiveWarnRatio()) {
			result := passed()
			result.Warnings = []string{fmt.Sprintf(
				"margin: order consumes %s%% of available margin",
				used.Mul(decimal.NewFromInt(100)).Round(1))}

			return result
		}
	}

	return passed()
}

// positionCountCheck bounds how many positions the account may hold. Orders
// in an instrument the account already holds mutate that position and never
// open a new one.
type positionCountCheck struct{}

func (c *positionCountCheck) Name() string { return "position-count" }

func (c *positionCountCheck) Run(_ context.Context, oc *OrderContext) CheckResult {
	instrumentCount := 0
	for i := range oc.Positions {
		if oc.Positions[i].Instrument == oc.Request.Instrument {
			instrumentCount++
		}
	}

	opensNew := instrumentCount == 0

	resultingTotal := len(oc.Positions)
	if opensNew {
		resultingTotal++
	}

	if ceiling := oc.Limits.MaxOpenPositions; ceiling > 0 {
		if resultingTotal > ceiling {
			return failedf(errors.ErrCodePositionCountExceeded,
				"account would hold %d positions, max %d", resultingTotal, ceiling)
		}

		if resultingTotal == ceiling {
			result := passed()
			result.Warnings = []string{fmt.Sprintf("position-count: at ceiling %d", ceiling)}

			return result
		}
	}

	if ceiling := oc.Limits.MaxPositionsPerInstrument; ceiling > 0 {
		resulting := instrumentCount
		if opensNew {
			resulting++
		}

		if resulting > ceiling {
			return failedf(errors.ErrCodePositionCountExceeded,
				"instrument %s would hold %d positions, max %d",
				oc.Request.Instrument, resulting, ceiling)
		}
	}

	return passed()
}

// dailyLossCheck halts trading once realized plus unrealized losses reach
// the daily or weekly ceiling.
type dailyLossCheck struct{}

func (c *dailyLossCheck) Name() string { return "daily-loss" }

func (c *dailyLossCheck) Run(_ context.Context, oc *OrderContext) CheckResult {
	unrealized := oc.unrealizedTotal()

	dailyLoss := oc.DailyRealizedPnL.Add(unrealized).Neg()
	weeklyLoss := oc.WeeklyRealizedPnL.Add(unrealized).Neg()

	if ceiling := oc.Limits.MaxDailyLoss; ceiling.IsPositive() && dailyLoss.GreaterThanOrEqual(ceiling) {
		return failedf(errors.ErrCodeDailyLossExceeded,
			"daily loss %s has reached the limit %s", dailyLoss, ceiling)
	}

	if ceiling := oc.Limits.MaxWeeklyLoss; ceiling.IsPositive() && weeklyLoss.GreaterThanOrEqual(ceiling) {
		return failedf(errors.ErrCodeDailyLossExceeded,
			"weekly loss %s has reached the limit %s", weeklyLoss, ceiling)
	}

	var warnings []string

	warnRatio := oc.Limits.EffectiveWarnRatio()

	if ceiling := oc.Limits.MaxDailyLoss; ceiling.IsPositive() && dailyLoss.GreaterThanOrEqual(ceiling.Mul(warnRatio)) {
		warnings = append(warnings, fmt.Sprintf(
			"daily-loss: loss %s is within %s%% of limit %s", dailyLoss, warnPercent(warnRatio), ceiling))
	}

	if ceiling := oc.Limits.MaxWeeklyLoss; ceiling.IsPositive() && weeklyLoss.GreaterThanOrEqual(ceiling.Mul(warnRatio)) {
		warnings = append(warnings, fmt.Sprintf(
			"daily-loss: weekly loss %s is within %s%% of limit %s", weeklyLoss, warnPercent(warnRatio), ceiling))
	}

	result := passed()
	result.Warnings = warnings

	return result
}

// drawdownCheck halts trading once NAV has eroded below balance by the
// configured fraction, the same ratio the DRAWDOWN kill switch trigger
// evaluates.
type drawdownCheck struct{}

func (c *drawdownCheck) Name() string { return "drawdown" }

func (c *drawdownCheck) Run(_ context.Context, oc *OrderContext) CheckResult {
	ceiling := oc.Limits.MaxDrawdown
	if !ceiling.IsPositive() {
		return passed()
	}

	ratio := drawdownRatio(oc.Summary)

	if ratio.GreaterThanOrEqual(ceiling) {
		return failedf(errors.ErrCodeDrawdownExceeded,
			"drawdown %s has reached the limit %s", ratio.Round(4), ceiling)
	}

	if ratio.GreaterThanOrEqual(ceiling.Mul(oc.Limits.EffectiveWarnRatio())) {
		result := passed()
		result.Warnings = []string{fmt.Sprintf(
			"drawdown: %s is within %s%% of limit %s",
			ratio.Round(4), warnPercent(oc.Limits.EffectiveWarnRatio()), ceiling)}

		return result
	}

	return passed()
}

// instrumentCheck refuses orders for halted instruments, instruments outside
// the account's allow list, and sizes outside the instrument's bounds.
type instrumentCheck struct{}

func (c *instrumentCheck) Name() string { return "instrument" }

func (c *instrumentCheck) Run(_ context.Context, oc *OrderContext) CheckResult {
	instrument := oc.Request.Instrument

	if !oc.Limits.InstrumentAllowed(instrument) {
		return failedf(errors.ErrCodeInstrumentNotTradeable,
			"instrument %s is not in the account allow list", instrument)
	}

	if !oc.Price.Tradeable || !oc.Instrument.Tradeable {
		return failedf(errors.ErrCodeInstrumentNotTradeable,
			"instrument %s is currently halted", instrument)
	}

	units := oc.Request.Units.Abs()

	if min := oc.Instrument.MinUnits; min.IsPositive() && units.LessThan(min) {
		return failedf(errors.ErrCodeInvalidOrder,
			"units %s below instrument minimum %s", units, min)
	}

	if max := oc.Instrument.MaxUnits; max.IsPositive() && units.GreaterThan(max) {
		return failedf(errors.ErrCodeInvalidOrder,
			"units %s above instrument maximum %s", units, max)
	}

	return passed()
}
