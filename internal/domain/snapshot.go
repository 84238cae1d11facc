package domain

import "github.com/shopspring/decimal"

// Quote is the point-in-time price view for one instrument.
type Quote struct {
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"`
}

// Portfolio aggregates the backend's portfolio block.
type Portfolio struct {
	TotalValue     decimal.Decimal `json:"total_value"`
	ProfitLoss     decimal.Decimal `json:"profit_loss"`
	ProfitLossPct  decimal.Decimal `json:"profit_loss_pct"`
	PositionsCount int             `json:"positions_count"`
}

// Performance aggregates trade counters reported by the backend.
type Performance struct {
	TotalTrades   int             `json:"total_trades"`
	WinningTrades int             `json:"winning_trades"`
	LosingTrades  int             `json:"losing_trades"`
	WinRate       decimal.Decimal `json:"win_rate"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
}

// RiskLimits are the smart-contract-side risk parameters shown to the user.
type RiskLimits struct {
	MaxPositionSizePct decimal.Decimal `json:"max_position_size_pct"`
	MaxDailyLossPct    decimal.Decimal `json:"max_daily_loss_pct"`
	MinConfidence      decimal.Decimal `json:"min_confidence"`
}

// DefaultRiskLimits mirrors the platform defaults used before the first
// successful dashboard fetch (10% position, 5% daily loss, 0.7 confidence).
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPositionSizePct: decimal.NewFromInt(10),
		MaxDailyLossPct:    decimal.NewFromInt(5),
		MinConfidence:      decimal.NewFromFloat(0.7),
	}
}

// DefaultPortfolio is the demo-mode placeholder portfolio.
func DefaultPortfolio() Portfolio {
	return Portfolio{TotalValue: decimal.NewFromInt(10000)}
}
