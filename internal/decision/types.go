package decision

import (
	"encoding/json"

	"autodecide/internal/analysis"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionWait Action = "WAIT"
)

type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

// MarketConditions 的三个分量均落在 [0,100]。
type MarketConditions struct {
	Volatility    float64 `json:"volatility"`
	Noise         float64 `json:"noise"`
	TrendStrength float64 `json:"trend_strength"`
}

// Factors is the input of the external decision function. It is built fresh
// for every qualifying update and never mutated after construction.
type Factors struct {
	MicroPatterns       []analysis.MicroPattern           `json:"micro_patterns"`
	VisualAnalysis      json.RawMessage                   `json:"visual_analysis"`
	MarketConditions    MarketConditions                  `json:"market_conditions"`
	TimingAnalysis      json.RawMessage                   `json:"timing_analysis"`
	TechnicalIndicators map[string]analysis.PatternResult `json:"technical_indicators"`
}

type Timing struct {
	EnterNow    bool    `json:"enter_now"`
	WaitSeconds float64 `json:"wait_seconds"`
}

type ProfessionalAnalysis struct {
	MarketGrade Grade `json:"market_grade"`
	Confluences int   `json:"confluences"`
}

// AutonomousDecision is the verdict returned by the decision function.
type AutonomousDecision struct {
	Action               Action               `json:"action"`
	Confidence           float64              `json:"confidence"`
	ExpectedSuccessRate  float64              `json:"expected_success_rate"`
	Timing               Timing               `json:"timing"`
	ProfessionalAnalysis ProfessionalAnalysis `json:"professional_analysis"`
}
