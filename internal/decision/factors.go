package decision

import (
	"bytes"
	"encoding/json"
	"math"
	"slices"

	"autodecide/internal/analysis"

	"github.com/tidwall/gjson"
)

const (
	// DefaultCondition fills any market condition the visual analysis lacks.
	DefaultCondition = 50.0

	volatilityPath    = "marketStructure.volatility"
	trendStrengthPath = "trendAnalysis.strength"
)

var emptyObject = json.RawMessage(`{}`)

// BuildFactors assembles the decision input from the upstream payloads. It
// never fails: every missing optional field has a default. Inputs are copied,
// not aliased, so the caller may keep mutating them.
func BuildFactors(detailed map[string]analysis.PatternResult, enhanced *analysis.EnhancedAnalysis, timing json.RawMessage) Factors {
	micro := []analysis.MicroPattern{}
	visual := objectOrEmpty(nil)
	if enhanced != nil {
		if enhanced.MicroPatterns != nil {
			micro = slices.Clone(enhanced.MicroPatterns)
		}
		visual = objectOrEmpty(enhanced.VisualAnalysis)
	}
	return Factors{
		MicroPatterns:  micro,
		VisualAnalysis: visual,
		MarketConditions: MarketConditions{
			Volatility:    readCondition(visual, volatilityPath),
			Noise:         EstimateNoise(detailed),
			TrendStrength: readCondition(visual, trendStrengthPath),
		},
		TimingAnalysis:      objectOrEmpty(timing),
		TechnicalIndicators: analysis.ClonePatternResults(detailed),
	}
}

func readCondition(raw json.RawMessage, path string) float64 {
	res := gjson.GetBytes(raw, path)
	if res.Type != gjson.Number {
		return DefaultCondition
	}
	v := res.Float()
	if math.IsNaN(v) {
		return DefaultCondition
	}
	return math.Max(0, math.Min(100, v))
}

func objectOrEmpty(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !gjson.ValidBytes(trimmed) || !gjson.ParseBytes(trimmed).IsObject() {
		return slices.Clone(emptyObject)
	}
	return slices.Clone(trimmed)
}
