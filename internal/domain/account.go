package domain

import "time"

// AccountSnapshot is the per-cycle read-only view of the broker account.
type AccountSnapshot struct {
	Balance     float64   `json:"balance"`
	Equity      float64   `json:"equity"`
	DailyPnL    float64   `json:"daily_pnl"`    // realized today
	MaxDrawdown float64   `json:"max_drawdown"` // marker reported by the broker
	TakenAt     time.Time `json:"taken_at"`
}

// DailyLossFraction returns today's realized loss over the opening balance.
// Gains count as zero loss.
func (a AccountSnapshot) DailyLossFraction() float64 {
	if a.DailyPnL >= 0 {
		return 0
	}
	opening := a.Balance - a.DailyPnL
	if opening <= 0 {
		return 1
	}
	return -a.DailyPnL / opening
}

// RiskGate reports whether new plans are refused. The limit is inclusive:
// a loss exactly at maxDailyLoss already refuses.
func (a AccountSnapshot) RiskGate(maxDailyLoss, minEquity float64) (refused bool, reason string) {
	if maxDailyLoss > 0 && a.DailyLossFraction() >= maxDailyLoss-1e-12 {
		return true, "daily loss limit reached"
	}
	if minEquity > 0 && a.Equity < minEquity {
		return true, "equity below floor"
	}
	return false, ""
}
