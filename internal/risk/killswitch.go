package risk

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/jthadison/tmt-sub003/internal/metrics"
	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/pkg/errors"
)

// Activate halts all trading for the account. While active, Validate refuses
// every order with KILL_SWITCH_ACTIVE before reading any account state. When
// flatten is set, every open position is closed through the wired Flattener;
// the switch stays active even if flattening fails.
func (m *Manager) Activate(ctx context.Context, accountID, reason string, flatten bool) error {
	if reason == "" {
		return errors.New(errors.ErrCodeInvalidParameter, "kill switch activation requires a reason")
	}

	m.mu.Lock()
	alreadyActive := m.switches[accountID].Active
	m.switches[accountID] = types.KillSwitchState{
		Active:      true,
		Reason:      reason,
		ActivatedAt: optional.Some(time.Now()),
	}
	m.mu.Unlock()

	if !alreadyActive {
		m.registry.Inc(metrics.CounterKillSwitchActivated)
	}

	m.log.Error("kill switch activated",
		zap.String("account_id", accountID),
		zap.String("reason", reason),
		zap.Bool("flatten", flatten),
	)

	if !flatten {
		return nil
	}

	if m.flattener == nil {
		return errors.New(errors.ErrCodeInvalidState, "no flattener wired, open positions were left open")
	}

	if err := m.flattener.FlattenAll(ctx, accountID); err != nil {
		m.log.Error("emergency flatten failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)

		return errors.Wrapf(errors.GetCode(err), err, "emergency flatten for %s", accountID)
	}

	return nil
}

// Deactivate resumes trading for the account. The reason is mandatory and
// logged for audit.
func (m *Manager) Deactivate(accountID, reason string) error {
	if reason == "" {
		return errors.New(errors.ErrCodeInvalidParameter, "kill switch deactivation requires a reason")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.switches[accountID].Active {
		return errors.Newf(errors.ErrCodeInvalidState, "kill switch is not active for account %s", accountID)
	}

	m.switches[accountID] = types.KillSwitchState{
		Active:      false,
		Reason:      reason,
		ActivatedAt: optional.None[time.Time](),
	}

	m.log.Warn("kill switch deactivated",
		zap.String("account_id", accountID),
		zap.String("reason", reason),
	)

	return nil
}

// State returns the account's current kill switch state. Accounts never
// activated report the inactive zero state.
func (m *Manager) State(accountID string) types.KillSwitchState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.switches[accountID]
}
