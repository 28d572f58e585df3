package decision

import (
	"math"

	"autodecide/internal/analysis"
)

const (
	// NeutralNoise is returned when there is no evidence either way.
	NeutralNoise = 50.0
	// conflictThreshold: buy and sell pressure closer than this is indecisive.
	conflictThreshold = 0.3
)

// EstimateNoise returns the share (0-100) of found patterns whose buy and
// sell scores nearly cancel out. It is a proportion, not a count, so it does
// not grow with the number of indicators.
func EstimateNoise(results map[string]analysis.PatternResult) float64 {
	found, conflicting := 0, 0
	for _, r := range results {
		if !r.Found {
			continue
		}
		found++
		if math.Abs(r.BuyScore-r.SellScore) < conflictThreshold {
			conflicting++
		}
	}
	if found == 0 {
		return NeutralNoise
	}
	return math.Min(100, float64(conflicting)/float64(max(1, found))*100)
}
