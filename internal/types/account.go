package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountSummary represents the current account state including balance,
// margin, and P&L information. The broker is authoritative for every field
// except PendingOrderCount, which merges in locally tracked orders.
type AccountSummary struct {
	AccountID string `yaml:"account_id" json:"account_id"`
	Currency  string `yaml:"currency" json:"currency"`
	// Balance is the current cash balance (excluding unrealized P&L)
	Balance decimal.Decimal `yaml:"balance" json:"balance"`
	// NAV is the total account value (balance + unrealized P&L)
	NAV decimal.Decimal `yaml:"nav" json:"nav"`
	// RealizedPnL is the total realized profit/loss from closed positions
	RealizedPnL decimal.Decimal `yaml:"realized_pnl" json:"realized_pnl"`
	// UnrealizedPnL is the total unrealized profit/loss from open positions
	UnrealizedPnL decimal.Decimal `yaml:"unrealized_pnl" json:"unrealized_pnl"`
	// MarginUsed is the margin currently posted against open positions
	MarginUsed decimal.Decimal `yaml:"margin_used" json:"margin_used"`
	// MarginAvailable is the margin free for new positions
	MarginAvailable   decimal.Decimal `yaml:"margin_available" json:"margin_available"`
	OpenPositionCount int             `yaml:"open_position_count" json:"open_position_count"`
	PendingOrderCount int             `yaml:"pending_order_count" json:"pending_order_count"`
	UpdatedAt         time.Time       `yaml:"updated_at" json:"updated_at"`
}

// MarginRatio returns margin used over NAV, zero when NAV is zero.
func (a *AccountSummary) MarginRatio() decimal.Decimal {
	if a.NAV.IsZero() {
		return decimal.Zero
	}

	return a.MarginUsed.Div(a.NAV)
}
