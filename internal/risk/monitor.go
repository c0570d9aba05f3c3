package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jthadison/tmt-sub003/internal/types"
)

// RunMonitor evaluates kill switch triggers for the given accounts until the
// context is cancelled. A breached trigger activates the account's kill
// switch without flattening; the operator decides whether to close out.
func (m *Manager) RunMonitor(ctx context.Context, accountIDs []string) error {
	interval := time.Duration(m.cfg.MonitorMs) * time.Millisecond
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info("risk monitor started",
		zap.Duration("interval", interval),
		zap.Int("accounts", len(accountIDs)),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, accountID := range accountIDs {
				m.evaluateTriggers(ctx, accountID)
			}
		}
	}
}

// evaluateTriggers computes the account's live metrics and activates the
// kill switch on the first breached trigger.
func (m *Manager) evaluateTriggers(ctx context.Context, accountID string) {
	limits := m.LimitsFor(accountID)
	if len(limits.KillSwitchTriggers) == 0 {
		return
	}

	if m.State(accountID).Active {
		return
	}

	summary, err := m.accounts.AccountSummary(ctx, accountID)
	if err != nil {
		m.log.Warn("trigger evaluation skipped",
			zap.String("account_id", accountID),
			zap.Error(err),
		)

		return
	}

	daily, err := m.losses.DailyRealizedPnL(accountID, time.Now())
	if err != nil {
		m.log.Warn("trigger evaluation skipped",
			zap.String("account_id", accountID),
			zap.Error(err),
		)

		return
	}

	observed := map[types.TriggerMetric]decimal.Decimal{
		types.TriggerMetricDailyLoss:   daily.Add(summary.UnrealizedPnL).Neg(),
		types.TriggerMetricDrawdown:    drawdownRatio(summary),
		types.TriggerMetricMarginRatio: summary.MarginRatio(),
	}

	for _, trigger := range limits.KillSwitchTriggers {
		value, ok := observed[trigger.Metric]
		if !ok {
			continue
		}

		if !trigger.Evaluate(value) {
			continue
		}

		reason := fmt.Sprintf("%s trigger breached: %s %s %s",
			trigger.Metric, value, trigger.Op, trigger.Threshold)

		if err := m.Activate(ctx, accountID, reason, false); err != nil {
			m.log.Error("trigger activation failed",
				zap.String("account_id", accountID),
				zap.Error(err),
			)
		}

		return
	}
}
