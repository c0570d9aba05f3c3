package risk

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jthadison/tmt-sub003/internal/types"
)

// Factor weights of the advisory risk score. They sum to 100 so the weighted
// factors land in [0, 100] before clamping.
var (
	weightLeverage      = decimal.NewFromInt(20)
	weightConcentration = decimal.NewFromInt(15)
	weightCorrelation   = decimal.NewFromInt(10)
	weightDailyLoss     = decimal.NewFromInt(15)
	weightPositionCount = decimal.NewFromInt(5)
	weightVolatility    = decimal.NewFromInt(10)
	weightMomentum      = decimal.NewFromInt(5)
	weightDrawdown      = decimal.NewFromInt(10)
	weightFrequency     = decimal.NewFromInt(10)
)

// volatilitySpreadScale is the relative bid/ask spread treated as fully
// volatile: 10 basis points.
var volatilitySpreadScale = decimal.NewFromFloat(0.001)

// riskScore computes the advisory 0-100 score for the order. It never
// overrides the binary checks.
func riskScore(oc *OrderContext) decimal.Decimal {
	score := decimal.Zero
	score = score.Add(weightLeverage.Mul(leverageFactor(oc)))
	score = score.Add(weightConcentration.Mul(concentrationFactor(oc)))
	score = score.Add(weightCorrelation.Mul(correlationFactor(oc)))
	score = score.Add(weightDailyLoss.Mul(dailyLossFactor(oc)))
	score = score.Add(weightPositionCount.Mul(positionCountFactor(oc)))
	score = score.Add(weightVolatility.Mul(volatilityFactor(oc)))
	score = score.Add(weightMomentum.Mul(momentumFactor(oc)))
	score = score.Add(weightDrawdown.Mul(drawdownFactor(oc)))
	score = score.Add(weightFrequency.Mul(frequencyFactor(oc)))

	if score.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.NewFromInt(100)
	}

	if score.IsNegative() {
		return decimal.Zero
	}

	return score
}

// clamp01 bounds a factor to [0, 1].
func clamp01(value decimal.Decimal) decimal.Decimal {
	if value.IsNegative() {
		return decimal.Zero
	}

	if value.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}

	return value
}

// leverageFactor is exposure after the order relative to the leverage
// ceiling.
func leverageFactor(oc *OrderContext) decimal.Decimal {
	ceiling := oc.Limits.MaxLeverage
	if !ceiling.IsPositive() {
		return decimal.Zero
	}

	if !oc.Summary.Balance.IsPositive() {
		return decimal.NewFromInt(1)
	}

	exposure := oc.totalNotional().Add(oc.newNotional())
	leverage := exposure.Div(oc.Summary.Balance)

	return clamp01(leverage.Div(ceiling))
}

// concentrationFactor is the share of total exposure that would sit in the
// order's instrument.
func concentrationFactor(oc *OrderContext) decimal.Decimal {
	newNotional := oc.newNotional()

	total := oc.totalNotional().Add(newNotional)
	if !total.IsPositive() {
		return decimal.Zero
	}

	instrumentNotional := newNotional
	if pos := oc.existingPosition(); pos != nil {
		instrumentNotional = instrumentNotional.Add(pos.Units.Abs().Mul(markPrice(pos)))
	}

	return clamp01(instrumentNotional.Div(total))
}

// correlationFactor is the share of exposure in other instruments that move
// with the order's instrument, proxied by a shared currency leg.
func correlationFactor(oc *OrderContext) decimal.Decimal {
	legs := currencyLegs(oc.Request.Instrument)
	if legs == nil {
		return decimal.Zero
	}

	total := decimal.Zero
	correlated := decimal.Zero

	for i := range oc.Positions {
		pos := &oc.Positions[i]
		if pos.Instrument == oc.Request.Instrument {
			continue
		}

		notional := pos.Units.Abs().Mul(markPrice(pos))
		total = total.Add(notional)

		if sharesLeg(legs, pos.Instrument) {
			correlated = correlated.Add(notional)
		}
	}

	if !total.IsPositive() {
		return decimal.Zero
	}

	return clamp01(correlated.Div(total))
}

// currencyLegs splits an FX pair name into its two currency legs, nil when
// the name is not a pair.
func currencyLegs(instrument string) []string {
	parts := strings.Split(instrument, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil
	}

	return parts
}

// sharesLeg reports whether the instrument carries either leg.
func sharesLeg(legs []string, instrument string) bool {
	for _, leg := range currencyLegs(instrument) {
		if leg == legs[0] || leg == legs[1] {
			return true
		}
	}

	return false
}

// dailyLossFactor is today's loss relative to the daily ceiling.
func dailyLossFactor(oc *OrderContext) decimal.Decimal {
	ceiling := oc.Limits.MaxDailyLoss
	if !ceiling.IsPositive() {
		return decimal.Zero
	}

	loss := oc.DailyRealizedPnL.Add(oc.unrealizedTotal()).Neg()

	return clamp01(loss.Div(ceiling))
}

// positionCountFactor is the open position count after the order relative to
// the ceiling.
func positionCountFactor(oc *OrderContext) decimal.Decimal {
	ceiling := oc.Limits.MaxOpenPositions
	if ceiling <= 0 {
		return decimal.Zero
	}

	resulting := len(oc.Positions)
	if oc.existingPosition() == nil {
		resulting++
	}

	return clamp01(decimal.NewFromInt(int64(resulting)).Div(decimal.NewFromInt(int64(ceiling))))
}

// volatilityFactor proxies market volatility with the relative bid/ask
// spread.
func volatilityFactor(oc *OrderContext) decimal.Decimal {
	mid := oc.Price.Mid()
	if !mid.IsPositive() {
		return decimal.Zero
	}

	relativeSpread := oc.Price.Spread().Div(mid)

	return clamp01(relativeSpread.Div(volatilitySpreadScale))
}

// momentumFactor scores adding to an existing position, fully when that
// position is under water.
func momentumFactor(oc *OrderContext) decimal.Decimal {
	pos := oc.existingPosition()
	if pos == nil {
		return decimal.Zero
	}

	sameDirection := pos.Units.Sign() == oc.Request.Units.Sign()
	if !sameDirection {
		return decimal.Zero
	}

	if pos.UnrealizedPnL.IsNegative() {
		return decimal.NewFromInt(1)
	}

	return decimal.NewFromFloat(0.5)
}

// drawdownFactor is how far NAV has fallen below balance.
func drawdownFactor(oc *OrderContext) decimal.Decimal {
	return drawdownRatio(oc.Summary)
}

// frequencyFactor is the account's submission rate relative to the per
// minute ceiling.
func frequencyFactor(oc *OrderContext) decimal.Decimal {
	ceiling := oc.Limits.MaxOrdersPerMinute
	if ceiling <= 0 {
		return decimal.Zero
	}

	return clamp01(decimal.NewFromInt(int64(oc.RecentOrders)).Div(decimal.NewFromInt(int64(ceiling))))
}

// drawdownRatio returns (balance - NAV) / balance clamped to [0, 1], one
// when the balance is not positive.
func drawdownRatio(summary *types.AccountSummary) decimal.Decimal {
	if !summary.Balance.IsPositive() {
		return decimal.NewFromInt(1)
	}

	return clamp01(summary.Balance.Sub(summary.NAV).Div(summary.Balance))
}
