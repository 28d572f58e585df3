package risk

import (
	"time"

	"autodecide/internal/decision"
)

type Level string

const (
	LevelLow     Level = "low"
	LevelMedium  Level = "medium"
	LevelHigh    Level = "high"
	LevelExtreme Level = "extreme"
)

// SignalRequest is the risk question derived from a directional decision.
type SignalRequest struct {
	Action              decision.Action `json:"action"`
	Confidence          float64         `json:"confidence"`
	ExpectedSuccessRate float64         `json:"expected_success_rate"`
	MarketGrade         decision.Grade  `json:"market_grade"`
	Timeframe           string          `json:"timeframe"`
	EntryPrice          float64         `json:"entry_price"`
	StopLoss            float64         `json:"stop_loss"`
	TakeProfit          float64         `json:"take_profit"`
	Volatility          float64         `json:"volatility"`
	Confluences         int             `json:"confluences"`
}

type PositionSizing struct {
	Quantity     float64 `json:"quantity"`
	Notional     float64 `json:"notional"`
	RiskAmount   float64 `json:"risk_amount"`
	StopDistance float64 `json:"stop_distance"`
	Capped       bool    `json:"capped"`
}

type Assessment struct {
	Level       Level          `json:"level"`
	Score       float64        `json:"score"`
	RiskReward  float64        `json:"risk_reward"`
	Approved    bool           `json:"approved"`
	Sizing      PositionSizing `json:"sizing"`
	Warnings    []string       `json:"warnings,omitempty"`
	EvaluatedAt time.Time      `json:"evaluated_at"`
}

type Alert struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type AccountMetrics struct {
	Balance        float64 `json:"balance"`
	Evaluations    int     `json:"evaluations"`
	Approved       int     `json:"approved"`
	LastRiskAmount float64 `json:"last_risk_amount"`
	ExposurePct    float64 `json:"exposure_pct"`
	Backtests      int     `json:"backtests"`
	LastWinRate    float64 `json:"last_win_rate"`
}

// BacktestInput is one fast-analysis signal replayed by PerformBacktest.
type BacktestInput struct {
	Action      decision.Action `json:"action"`
	Confidence  float64         `json:"confidence"`
	Confluences int             `json:"confluences"`
	Timeframe   string          `json:"timeframe"`
}

type BacktestSummary struct {
	ID            string    `json:"id"`
	Timeframe     string    `json:"timeframe"`
	Signals       int       `json:"signals"`
	Buys          int       `json:"buys"`
	Sells         int       `json:"sells"`
	Waits         int       `json:"waits"`
	AvgConfidence float64   `json:"avg_confidence"`
	WinRate       float64   `json:"win_rate"`
	CreatedAt     time.Time `json:"created_at"`
}
