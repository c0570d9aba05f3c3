// Package risk validates orders against account limits, owns the per account
// kill switch, and computes the advisory risk score.
package risk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jthadison/tmt-sub003/internal/config"
	"github.com/jthadison/tmt-sub003/internal/logger"
	"github.com/jthadison/tmt-sub003/internal/metrics"
	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/internal/version"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

// AccountSource provides the account state the checks read.
type AccountSource interface {
	// AccountSummary returns the current account summary.
	AccountSummary(ctx context.Context, accountID string) (*types.AccountSummary, error)
	// OpenPositions returns the account's open positions.
	OpenPositions(ctx context.Context, accountID string) ([]types.Position, error)
}

// PriceSource provides current quotes and instrument metadata.
type PriceSource interface {
	// Price returns the current quote for the instrument.
	Price(ctx context.Context, instrument string) (types.Price, error)
	// Instrument returns the broker's metadata for the instrument.
	Instrument(ctx context.Context, instrument string) (types.Instrument, error)
}

// LossSource reports realized losses from the journal.
type LossSource interface {
	// DailyRealizedPnL returns net realized profit since the UTC day start.
	DailyRealizedPnL(accountID string, now time.Time) (decimal.Decimal, error)
	// WeeklyRealizedPnL returns net realized profit since the UTC week start.
	WeeklyRealizedPnL(accountID string, now time.Time) (decimal.Decimal, error)
}

// Flattener closes every open position for an account. Used by kill switch
// activation when emergency flatten is requested.
type Flattener interface {
	FlattenAll(ctx context.Context, accountID string) error
}

// Sources bundles the read surfaces the manager gathers OrderContext from.
type Sources struct {
	Accounts  AccountSource
	Prices    PriceSource
	Losses    LossSource
	Flattener Flattener
}

// OrderContext is everything a check may read, gathered once per validation
// so all checks see one consistent view.
type OrderContext struct {
	Request           *types.OrderRequest
	Limits            types.RiskLimits
	Summary           *types.AccountSummary
	Positions         []types.Position
	Price             types.Price
	Instrument        types.Instrument
	DailyRealizedPnL  decimal.Decimal
	WeeklyRealizedPnL decimal.Decimal
	// RecentOrders counts submissions in the account's sliding minute window,
	// this one included.
	RecentOrders int
	Now          time.Time
}

// existingPosition returns the open position in the request's instrument,
// nil when flat.
func (oc *OrderContext) existingPosition() *types.Position {
	for i := range oc.Positions {
		if oc.Positions[i].Instrument == oc.Request.Instrument {
			return &oc.Positions[i]
		}
	}

	return nil
}

// markPrice returns the price a position is valued at: the refreshed current
// price when known, the entry price otherwise.
func markPrice(pos *types.Position) decimal.Decimal {
	if pos.CurrentPrice.IsPositive() {
		return pos.CurrentPrice
	}

	return pos.AvgPrice
}

// newNotional returns the exposure the order would add, valued at the side
// of the quote it would cross.
func (oc *OrderContext) newNotional() decimal.Decimal {
	price := oc.Price.ExecutionPrice(oc.Request.Side())
	if !price.IsPositive() && oc.Request.Price.IsSome() {
		price = oc.Request.Price.Unwrap()
	}

	return oc.Request.Units.Abs().Mul(price)
}

// totalNotional returns the account's existing absolute exposure.
func (oc *OrderContext) totalNotional() decimal.Decimal {
	total := decimal.Zero
	for i := range oc.Positions {
		pos := &oc.Positions[i]
		total = total.Add(pos.Units.Abs().Mul(markPrice(pos)))
	}

	return total
}

// unrealizedTotal returns the sum of unrealized P&L across open positions.
func (oc *OrderContext) unrealizedTotal() decimal.Decimal {
	total := decimal.Zero
	for i := range oc.Positions {
		total = total.Add(oc.Positions[i].UnrealizedPnL)
	}

	return total
}

// CheckResult is one check's verdict. An empty Code means the check passed.
// Warnings surface near-limit conditions and are reported even on pass.
type CheckResult struct {
	Code     errors.ErrorCode
	Message  string
	Warnings []string
	// Recommended carries a reduced size suggestion from the size check.
	Recommended optional.Option[decimal.Decimal]
}

// Check is a single read-only validation rule. Implementations must be safe
// to run concurrently with each other.
type Check interface {
	// Name identifies the check in logs and warning messages.
	Name() string
	// Run evaluates the order against one limit domain.
	Run(ctx context.Context, oc *OrderContext) CheckResult
}

// Manager runs the validation pipeline and owns the per account kill switch
// and order rate state.
type Manager struct {
	cfg      config.RiskConfig
	log      *logger.Logger
	registry *metrics.Registry

	accounts  AccountSource
	prices    PriceSource
	losses    LossSource
	flattener Flattener

	// checks run concurrently but their results are applied in this order.
	checks []Check

	mu        sync.RWMutex
	overrides map[string]types.RiskLimits
	switches  map[string]types.KillSwitchState
	windows   map[string][]time.Time
}

// NewManager builds the manager with the default check pipeline. Configured
// limits that declare a version must be compatible with the engine version.
func NewManager(cfg config.RiskConfig, sources Sources, log *logger.Logger, registry *metrics.Registry) (*Manager, error) {
	if err := checkLimitsVersion(cfg.Limits); err != nil {
		return nil, err
	}

	overrides := make(map[string]types.RiskLimits, len(cfg.AccountLimits))

	for accountID, limits := range cfg.AccountLimits {
		if err := checkLimitsVersion(limits); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidVersion, err, "limits for account %s", accountID)
		}

		overrides[accountID] = limits
	}

	return &Manager{
		cfg:       cfg,
		log:       log,
		registry:  registry,
		accounts:  sources.Accounts,
		prices:    sources.Prices,
		losses:    sources.Losses,
		flattener: sources.Flattener,
		checks: []Check{
			&sizeCheck{},
			&leverageCheck{},
			&marginCheck{},
			&positionCountCheck{},
			&dailyLossCheck{},
			&drawdownCheck{},
			&instrumentCheck{},
		},
		mu:        sync.RWMutex{},
		overrides: overrides,
		switches:  make(map[string]types.KillSwitchState),
		windows:   make(map[string][]time.Time),
	}, nil
}

// Validate runs the full pipeline for one order request. The kill switch and
// the order rate ceiling short-circuit before any account state is read.
// Every call counts one attempt against the account's rate window.
//
// A non-nil error means the account state could not be gathered; a verdict
// with Valid false means the order was evaluated and refused.
func (m *Manager) Validate(ctx context.Context, req *types.OrderRequest) (*types.ValidationResult, error) {
	if state := m.State(req.AccountID); state.Active {
		m.registry.Inc(metrics.CounterKillSwitchBlocks)

		return refused(errors.ErrCodeKillSwitchActive, fmt.Sprintf("kill switch active: %s", state.Reason)), nil
	}

	limits := m.LimitsFor(req.AccountID)

	recent := m.recordAttempt(req.AccountID, time.Now())

	if ceiling := limits.MaxOrdersPerMinute; ceiling > 0 && recent > ceiling {
		m.registry.Inc(metrics.CounterValidationFailures)

		return refused(errors.ErrCodeOrderRateExceeded, fmt.Sprintf("order rate above %d per minute", ceiling)), nil
	}

	oc, err := m.buildContext(ctx, req, limits, recent)
	if err != nil {
		return nil, err
	}

	results := make([]CheckResult, len(m.checks))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, check := range m.checks {
		group.Go(func() error {
			results[i] = check.Run(groupCtx, oc)

			return nil
		})
	}

	// Checks report failures in their result, never as errors.
	_ = group.Wait()

	result := &types.ValidationResult{
		Valid:            true,
		Code:             "",
		Message:          "",
		Warnings:         nil,
		RiskScore:        riskScore(oc),
		RecommendedUnits: optional.None[decimal.Decimal](),
	}

	for _, checkResult := range results {
		result.Warnings = append(result.Warnings, checkResult.Warnings...)

		if checkResult.Recommended.IsSome() && result.RecommendedUnits.IsNone() {
			result.RecommendedUnits = checkResult.Recommended
		}

		if checkResult.Code != "" && result.Valid {
			result.Valid = false
			result.Code = checkResult.Code
			result.Message = checkResult.Message
		}
	}

	if !result.Valid {
		m.registry.Inc(metrics.CounterValidationFailures)
		m.log.Info("order refused",
			zap.String("account_id", req.AccountID),
			zap.String("instrument", req.Instrument),
			zap.String("code", string(result.Code)),
			zap.String("message", result.Message),
		)
	}

	if len(result.Warnings) > 0 {
		m.registry.Add(metrics.CounterRiskWarnings, int64(len(result.Warnings)))
	}

	return result, nil
}

// refused builds the short-circuit verdict used before checks run. The score
// is pinned to the ceiling since the account is refusing orders outright.
func refused(code errors.ErrorCode, message string) *types.ValidationResult {
	return &types.ValidationResult{
		Valid:            false,
		Code:             code,
		Message:          message,
		Warnings:         nil,
		RiskScore:        decimal.NewFromInt(100),
		RecommendedUnits: optional.None[decimal.Decimal](),
	}
}

// buildContext gathers one consistent view of the account for all checks.
func (m *Manager) buildContext(ctx context.Context, req *types.OrderRequest, limits types.RiskLimits, recentOrders int) (*OrderContext, error) {
	summary, err := m.accounts.AccountSummary(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	positions, err := m.accounts.OpenPositions(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	price, err := m.prices.Price(ctx, req.Instrument)
	if err != nil {
		return nil, err
	}

	instrument, err := m.prices.Instrument(ctx, req.Instrument)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	daily, err := m.losses.DailyRealizedPnL(req.AccountID, now)
	if err != nil {
		return nil, err
	}

	weekly, err := m.losses.WeeklyRealizedPnL(req.AccountID, now)
	if err != nil {
		return nil, err
	}

	return &OrderContext{
		Request:           req,
		Limits:            limits,
		Summary:           summary,
		Positions:         positions,
		Price:             price,
		Instrument:        instrument,
		DailyRealizedPnL:  daily,
		WeeklyRealizedPnL: weekly,
		RecentOrders:      recentOrders,
		Now:               now,
	}, nil
}

// LimitsFor returns the account's limit set: the per account override when
// one exists, the configured defaults otherwise.
func (m *Manager) LimitsFor(accountID string) types.RiskLimits {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limits, ok := m.overrides[accountID]; ok {
		return limits
	}

	return m.cfg.Limits
}

// UpdateLimits replaces the account's limit set. The stored version is
// bumped and the change is logged for audit.
func (m *Manager) UpdateLimits(accountID string, limits types.RiskLimits) error {
	if err := limits.Validate(); err != nil {
		return err
	}

	if err := checkLimitsVersion(limits); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.cfg.Limits
	if override, ok := m.overrides[accountID]; ok {
		previous = override
	}

	limits.Version = nextLimitsVersion(previous.Version)
	limits.UpdatedAt = time.Now()
	m.overrides[accountID] = limits

	m.log.Info("risk limits updated",
		zap.String("account_id", accountID),
		zap.String("previous_version", previous.Version),
		zap.String("version", limits.Version),
	)

	return nil
}

// recordAttempt adds one submission to the account's sliding minute window
// and returns how many sit inside it, this one included. Refused attempts
// count too, so a sustained storm stays blocked until it slows down.
func (m *Manager) recordAttempt(accountID string, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-time.Minute)

	window := m.windows[accountID][:0]
	for _, t := range m.windows[accountID] {
		if t.After(cutoff) {
			window = append(window, t)
		}
	}

	window = append(window, now)
	m.windows[accountID] = window

	return len(window)
}

// checkLimitsVersion refuses limit documents written for a different engine
// version. Unversioned limits are accepted.
func checkLimitsVersion(limits types.RiskLimits) error {
	if limits.Version == "" {
		return nil
	}

	if err := version.CheckVersionCompatibility(version.Version, limits.Version); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidVersion, "incompatible risk limits version", err)
	}

	return nil
}

// nextLimitsVersion bumps the patch component, falling back to the engine
// version when the previous value is missing or unparseable.
func nextLimitsVersion(previous string) string {
	parsed, err := semver.NewVersion(strings.TrimPrefix(previous, "v"))
	if err != nil {
		return strings.TrimPrefix(version.Version, "v")
	}

	next := parsed.IncPatch()

	return next.String()
}
