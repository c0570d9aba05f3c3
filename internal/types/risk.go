package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/jthadison/tmt-sub003/pkg/errors"
)

type TriggerMetric string

type TriggerOp string

const (
	TriggerMetricDailyLoss   TriggerMetric = "DAILY_LOSS"
	TriggerMetricDrawdown    TriggerMetric = "DRAWDOWN"
	TriggerMetricMarginRatio TriggerMetric = "MARGIN_RATIO"
)

const (
	TriggerOpGreaterThan TriggerOp = "GT"
	TriggerOpLessThan    TriggerOp = "LT"
)

// KillSwitchTrigger auto-activates the kill switch when a live account
// metric crosses a threshold.
type KillSwitchTrigger struct {
	Metric    TriggerMetric   `yaml:"metric" json:"metric" validate:"required,oneof=DAILY_LOSS DRAWDOWN MARGIN_RATIO"`
	Op        TriggerOp       `yaml:"op" json:"op" validate:"required,oneof=GT LT"`
	Threshold decimal.Decimal `yaml:"threshold" json:"threshold"`
}

// Evaluate reports whether the observed value breaches the trigger.
func (t KillSwitchTrigger) Evaluate(value decimal.Decimal) bool {
	switch t.Op {
	case TriggerOpGreaterThan:
		return value.GreaterThan(t.Threshold)
	case TriggerOpLessThan:
		return value.LessThan(t.Threshold)
	default:
		return false
	}
}

// RiskLimits is the versioned limit set one account trades under. Warning
// bands sit at WarnRatio of each ceiling.
type RiskLimits struct {
	// MaxPositionSize caps units per order and per resulting position.
	MaxPositionSize decimal.Decimal `yaml:"max_position_size" json:"max_position_size"`
	// MaxPositionsPerInstrument caps concurrently open positions counted per
	// account; one position per instrument is the ledger invariant, so this
	// bounds distinct instruments with exposure.
	MaxPositionsPerInstrument int `yaml:"max_positions_per_instrument" json:"max_positions_per_instrument"`
	// MaxOpenPositions caps distinct open positions per account.
	MaxOpenPositions int `yaml:"max_open_positions" json:"max_open_positions"`
	// MaxLeverage caps (existing notional + new notional) / balance.
	MaxLeverage decimal.Decimal `yaml:"max_leverage" json:"max_leverage"`
	// MaxDailyLoss is expressed as a positive amount of account currency.
	MaxDailyLoss decimal.Decimal `yaml:"max_daily_loss" json:"max_daily_loss"`
	// MaxWeeklyLoss is expressed as a positive amount of account currency.
	MaxWeeklyLoss decimal.Decimal `yaml:"max_weekly_loss" json:"max_weekly_loss"`
	// MaxDrawdown halts trading once NAV sits below balance by this
	// fraction; 0.25 halts at a 25% drawdown. Zero disables.
	MaxDrawdown decimal.Decimal `yaml:"max_drawdown" json:"max_drawdown"`
	// MinMarginRatio is the floor for margin available / NAV after the order.
	MinMarginRatio decimal.Decimal `yaml:"min_margin_ratio" json:"min_margin_ratio"`
	// MaxOrdersPerMinute bounds submission rate per account, zero disables.
	MaxOrdersPerMinute int `yaml:"max_orders_per_minute" json:"max_orders_per_minute"`
	// WarnRatio is the fraction of a ceiling at which warnings start.
	// Defaults to 0.8 when zero.
	WarnRatio decimal.Decimal `yaml:"warn_ratio" json:"warn_ratio"`
	// Instruments restricts trading to the listed instruments when non-empty.
	Instruments []string `yaml:"instruments" json:"instruments"`
	// KillSwitchTriggers auto-activate the kill switch on breach.
	KillSwitchTriggers []KillSwitchTrigger `yaml:"kill_switch_triggers" json:"kill_switch_triggers"`
	// Version is a semver string bumped on every limits change.
	Version   string    `yaml:"version" json:"version"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// Validate validates the RiskLimits struct.
func (l *RiskLimits) Validate() error {
	if l.MaxPositionSize.IsNegative() {
		return errors.New(errors.ErrCodeInvalidConfiguration, "max_position_size must not be negative")
	}

	if l.MaxLeverage.IsNegative() {
		return errors.New(errors.ErrCodeInvalidConfiguration, "max_leverage must not be negative")
	}

	if l.MaxDailyLoss.IsNegative() || l.MaxWeeklyLoss.IsNegative() {
		return errors.New(errors.ErrCodeInvalidConfiguration, "loss limits must not be negative")
	}

	if l.MaxDrawdown.IsNegative() || l.MaxDrawdown.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New(errors.ErrCodeInvalidConfiguration, "max_drawdown must be within [0, 1]")
	}

	if l.MinMarginRatio.IsNegative() || l.MinMarginRatio.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New(errors.ErrCodeInvalidConfiguration, "min_margin_ratio must be within [0, 1]")
	}

	if l.WarnRatio.IsNegative() || l.WarnRatio.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New(errors.ErrCodeInvalidConfiguration, "warn_ratio must be within [0, 1]")
	}

	for _, trigger := range l.KillSwitchTriggers {
		if trigger.Metric == "" || trigger.Op == "" {
			return errors.New(errors.ErrCodeInvalidConfiguration, "kill switch triggers require metric and op")
		}
	}

	return nil
}

// EffectiveWarnRatio returns WarnRatio or the 0.8 default.
func (l *RiskLimits) EffectiveWarnRatio() decimal.Decimal {
	if l.WarnRatio.IsZero() {
		return decimal.NewFromFloat(0.8)
	}

	return l.WarnRatio
}

// InstrumentAllowed reports whether the instrument passes the allow list.
// An empty list allows everything.
func (l *RiskLimits) InstrumentAllowed(instrument string) bool {
	if len(l.Instruments) == 0 {
		return true
	}

	for _, allowed := range l.Instruments {
		if allowed == instrument {
			return true
		}
	}

	return false
}

// riskLimitsYAML mirrors RiskLimits with money fields as strings so YAML
// documents carry exact decimals rather than floats.
type riskLimitsYAML struct {
	MaxPositionSize           string              `yaml:"max_position_size"`
	MaxPositionsPerInstrument int                 `yaml:"max_positions_per_instrument"`
	MaxOpenPositions          int                 `yaml:"max_open_positions"`
	MaxLeverage               string              `yaml:"max_leverage"`
	MaxDailyLoss              string              `yaml:"max_daily_loss"`
	MaxWeeklyLoss             string              `yaml:"max_weekly_loss"`
	MaxDrawdown               string              `yaml:"max_drawdown"`
	MinMarginRatio            string              `yaml:"min_margin_ratio"`
	MaxOrdersPerMinute        int                 `yaml:"max_orders_per_minute"`
	WarnRatio                 string              `yaml:"warn_ratio"`
	Instruments               []string            `yaml:"instruments"`
	KillSwitchTriggers        []KillSwitchTrigger `yaml:"kill_switch_triggers"`
	Version                   string              `yaml:"version"`
	UpdatedAt                 time.Time           `yaml:"updated_at"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *RiskLimits) UnmarshalYAML(value *yaml.Node) error {
	var aux riskLimitsYAML
	if err := value.Decode(&aux); err != nil {
		return err
	}

	var err error

	if l.MaxPositionSize, err = parseDecimal(aux.MaxPositionSize); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "max_position_size", err)
	}

	if l.MaxLeverage, err = parseDecimal(aux.MaxLeverage); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "max_leverage", err)
	}

	if l.MaxDailyLoss, err = parseDecimal(aux.MaxDailyLoss); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "max_daily_loss", err)
	}

	if l.MaxWeeklyLoss, err = parseDecimal(aux.MaxWeeklyLoss); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "max_weekly_loss", err)
	}

	if l.MaxDrawdown, err = parseDecimal(aux.MaxDrawdown); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "max_drawdown", err)
	}

	if l.MinMarginRatio, err = parseDecimal(aux.MinMarginRatio); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "min_margin_ratio", err)
	}

	if l.WarnRatio, err = parseDecimal(aux.WarnRatio); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "warn_ratio", err)
	}

	l.MaxPositionsPerInstrument = aux.MaxPositionsPerInstrument
	l.MaxOpenPositions = aux.MaxOpenPositions
	l.MaxOrdersPerMinute = aux.MaxOrdersPerMinute
	l.Instruments = aux.Instruments
	l.KillSwitchTriggers = aux.KillSwitchTriggers
	l.Version = aux.Version
	l.UpdatedAt = aux.UpdatedAt

	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (l RiskLimits) MarshalYAML() (interface{}, error) {
	return riskLimitsYAML{
		MaxPositionSize:           l.MaxPositionSize.String(),
		MaxPositionsPerInstrument: l.MaxPositionsPerInstrument,
		MaxOpenPositions:          l.MaxOpenPositions,
		MaxLeverage:               l.MaxLeverage.String(),
		MaxDailyLoss:              l.MaxDailyLoss.String(),
		MaxWeeklyLoss:             l.MaxWeeklyLoss.String(),
		MaxDrawdown:               l.MaxDrawdown.String(),
		MinMarginRatio:            l.MinMarginRatio.String(),
		MaxOrdersPerMinute:        l.MaxOrdersPerMinute,
		WarnRatio:                 l.WarnRatio.String(),
		Instruments:               l.Instruments,
		KillSwitchTriggers:        l.KillSwitchTriggers,
		Version:                   l.Version,
		UpdatedAt:                 l.UpdatedAt,
	}, nil
}

type killSwitchTriggerYAML struct {
	Metric    TriggerMetric `yaml:"metric"`
	Op        TriggerOp     `yaml:"op"`
	Threshold string        `yaml:"threshold"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *KillSwitchTrigger) UnmarshalYAML(value *yaml.Node) error {
	var aux killSwitchTriggerYAML
	if err := value.Decode(&aux); err != nil {
		return err
	}

	threshold, err := parseDecimal(aux.Threshold)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "threshold", err)
	}

	t.Metric = aux.Metric
	t.Op = aux.Op
	t.Threshold = threshold

	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t KillSwitchTrigger) MarshalYAML() (interface{}, error) {
	return killSwitchTriggerYAML{
		Metric:    t.Metric,
		Op:        t.Op,
		Threshold: t.Threshold.String(),
	}, nil
}

// parseDecimal parses a YAML money field, treating empty as zero.
func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}

	return decimal.NewFromString(s)
}

// KillSwitchState is the current halt state for one account.
type KillSwitchState struct {
	Active bool   `yaml:"active" json:"active"`
	Reason string `yaml:"reason" json:"reason"`
	// ActivatedAt is None while inactive.
	ActivatedAt optional.Option[time.Time] `yaml:"activated_at" json:"activated_at"`
}

// ValidationResult is the outcome of the risk pipeline for one order.
// Failures are exclusive (first check to fail wins); warnings are additive
// and survive even when the order passes.
type ValidationResult struct {
	Valid bool `yaml:"valid" json:"valid"`
	// Code is the stable machine code of the failed check, empty on pass.
	Code    errors.ErrorCode `yaml:"code" json:"code"`
	Message string           `yaml:"message" json:"message"`
	// Warnings collects every check's 80% band messages in check order.
	Warnings []string `yaml:"warnings" json:"warnings"`
	// RiskScore is advisory only and never overrides Valid.
	RiskScore decimal.Decimal `yaml:"risk_score" json:"risk_score"`
	// RecommendedUnits suggests a smaller size when the size check warns.
	RecommendedUnits optional.Option[decimal.Decimal] `yaml:"recommended_units" json:"recommended_units"`
}
