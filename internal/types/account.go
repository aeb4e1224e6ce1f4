package types

// AccountInfo represents the current account state.
type AccountInfo struct {
	// Balance is the current cash balance (excluding unrealized P&L)
	Balance float64 `yaml:"balance" json:"balance"`
	// NAV is the total account value (balance + unrealized P&L of open positions)
	NAV float64 `yaml:"nav" json:"nav"`
	// RealizedPnL is the total realized profit/loss from closed positions
	RealizedPnL float64 `yaml:"realized_pnl" json:"realized_pnl"`
	// UnrealizedPnL is the total unrealized profit/loss from open positions
	UnrealizedPnL float64 `yaml:"unrealized_pnl" json:"unrealized_pnl"`
	// TotalFees is the total fees paid
	TotalFees float64 `yaml:"total_fees" json:"total_fees"`
}
