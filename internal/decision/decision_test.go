package decision

import (
	"encoding/json"
	"errors"
	"testing"

	"autodecide/internal/analysis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateNoise(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]analysis.PatternResult
		want    float64
	}{
		{name: "nil input", results: nil, want: 50},
		{name: "empty input", results: map[string]analysis.PatternResult{}, want: 50},
		{
			name: "nothing found",
			results: map[string]analysis.PatternResult{
				"rsi":  {Found: false, BuyScore: 0.5, SellScore: 0.5},
				"macd": {Found: false},
			},
			want: 50,
		},
		{
			name: "all decisive",
			results: map[string]analysis.PatternResult{
				"rsi":  {Found: true, BuyScore: 0.9, SellScore: 0.1},
				"macd": {Found: true, BuyScore: 0.0, SellScore: 0.3},
				"ema":  {Found: false, BuyScore: 0.5, SellScore: 0.5},
			},
			want: 0,
		},
		{
			name: "all conflicting",
			results: map[string]analysis.PatternResult{
				"rsi":  {Found: true, BuyScore: 0.5, SellScore: 0.4},
				"macd": {Found: true, BuyScore: 0.2, SellScore: 0.45},
			},
			want: 100,
		},
		{
			name: "half conflicting",
			results: map[string]analysis.PatternResult{
				"rsi":  {Found: true, BuyScore: 0.5, SellScore: 0.5},
				"macd": {Found: true, BuyScore: 1, SellScore: 0},
				"skip": {Found: false},
			},
			want: 50,
		},
		{
			name:    "missing scores count as balanced",
			results: map[string]analysis.PatternResult{"bare": {Found: true}},
			want:    100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EstimateNoise(tt.results), 1e-9)
		})
	}
}

func TestEstimateNoise_ScaleInvariant(t *testing.T) {
	small := map[string]analysis.PatternResult{
		"a": {Found: true, BuyScore: 0.5, SellScore: 0.5},
		"b": {Found: true, BuyScore: 1, SellScore: 0},
	}
	large := map[string]analysis.PatternResult{}
	for i, k := range []string{"a", "b", "c", "d", "e", "f"} {
		if i%2 == 0 {
			large[k] = analysis.PatternResult{Found: true, BuyScore: 0.5, SellScore: 0.5}
		} else {
			large[k] = analysis.PatternResult{Found: true, BuyScore: 1, SellScore: 0}
		}
	}
	assert.Equal(t, EstimateNoise(small), EstimateNoise(large))
}

func TestBuildFactors_DefaultsOnMissingData(t *testing.T) {
	f := BuildFactors(nil, nil, nil)

	assert.NotNil(t, f.MicroPatterns)
	assert.Empty(t, f.MicroPatterns)
	assert.JSONEq(t, `{}`, string(f.VisualAnalysis))
	assert.JSONEq(t, `{}`, string(f.TimingAnalysis))
	assert.NotNil(t, f.TechnicalIndicators)
	assert.Equal(t, MarketConditions{Volatility: 50, Noise: 50, TrendStrength: 50}, f.MarketConditions)

	raw, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"micro_patterns": [],
		"visual_analysis": {},
		"market_conditions": {"volatility": 50, "noise": 50, "trend_strength": 50},
		"timing_analysis": {},
		"technical_indicators": {}
	}`, string(raw))
}

func TestBuildFactors_PartialVisualAnalysis(t *testing.T) {
	cases := map[string]struct {
		visual    string
		wantVol   float64
		wantTrend float64
	}{
		"both present":    {`{"marketStructure":{"volatility":35},"trendAnalysis":{"strength":80}}`, 35, 80},
		"only volatility": {`{"marketStructure":{"volatility":12.5}}`, 12.5, 50},
		"wrong types":     {`{"marketStructure":{"volatility":"high"},"trendAnalysis":{"strength":null}}`, 50, 50},
		"clamped":         {`{"marketStructure":{"volatility":140},"trendAnalysis":{"strength":-3}}`, 100, 0},
		"null payload":    {`null`, 50, 50},
		"array payload":   {`[1,2]`, 50, 50},
		"garbage":         {`{not json`, 50, 50},
		"nested missing":  {`{"marketStructure":{}}`, 50, 50},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := BuildFactors(nil, &analysis.EnhancedAnalysis{
				MicroPatterns:  []analysis.MicroPattern{},
				VisualAnalysis: json.RawMessage(tc.visual),
			}, nil)
			assert.Equal(t, tc.wantVol, f.MarketConditions.Volatility)
			assert.Equal(t, tc.wantTrend, f.MarketConditions.TrendStrength)
			assert.True(t, json.Valid(f.VisualAnalysis))
		})
	}
}

func TestBuildFactors_CopiesInputs(t *testing.T) {
	detailed := map[string]analysis.PatternResult{
		"rsi": {Found: true, BuyScore: 0.9, SellScore: 0.1},
	}
	enhanced := &analysis.EnhancedAnalysis{
		MicroPatterns:  []analysis.MicroPattern{{Name: "engulfing", Direction: "up"}},
		VisualAnalysis: json.RawMessage(`{"marketStructure":{"volatility":20}}`),
	}
	timing := json.RawMessage(`{"window":"open"}`)

	f := BuildFactors(detailed, enhanced, timing)

	assert.Equal(t, detailed, f.TechnicalIndicators)
	assert.Equal(t, 0.0, f.MarketConditions.Noise)
	assert.Equal(t, 20.0, f.MarketConditions.Volatility)
	assert.JSONEq(t, `{"window":"open"}`, string(f.TimingAnalysis))

	detailed["rsi"] = analysis.PatternResult{}
	enhanced.MicroPatterns[0].Name = "mutated"
	timing[2] = 'X'

	assert.True(t, f.TechnicalIndicators["rsi"].Found)
	assert.Equal(t, "engulfing", f.MicroPatterns[0].Name)
	assert.JSONEq(t, `{"window":"open"}`, string(f.TimingAnalysis))
}

func TestValidate(t *testing.T) {
	ok := AutonomousDecision{
		Action:               "buy",
		Confidence:           80,
		ExpectedSuccessRate:  70,
		ProfessionalAnalysis: ProfessionalAnalysis{MarketGrade: " a "},
	}
	require.NoError(t, Validate(&ok))
	assert.Equal(t, ActionBuy, ok.Action)
	assert.Equal(t, GradeA, ok.ProfessionalAnalysis.MarketGrade)

	bad := []AutonomousDecision{
		{Action: "HOLD", Confidence: 50},
		{Action: ActionBuy, Confidence: 101},
		{Action: ActionSell, Confidence: -1},
		{Action: ActionWait, ExpectedSuccessRate: -5},
		{Action: ActionBuy, Timing: Timing{WaitSeconds: -1}},
		{},
	}
	for _, d := range bad {
		err := Validate(&d)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidDecision))
	}
}

func TestDirection(t *testing.T) {
	assert.Equal(t, ActionBuy, Direction("up"))
	assert.Equal(t, ActionSell, Direction(" DOWN "))
	assert.Equal(t, ActionWait, Direction("sideways"))
	assert.Equal(t, ActionWait, Direction(""))
}
