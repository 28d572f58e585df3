// Package analysis holds the payloads produced by the upstream analysis
// pipeline and the feed that announces them.
package analysis

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// PatternResult is one entry of the detailed pattern-detection mapping.
// Missing scores decode as 0.
type PatternResult struct {
	Found     bool           `json:"found" yaml:"found"`
	BuyScore  float64        `json:"buyScore" yaml:"buyScore"`
	SellScore float64        `json:"sellScore" yaml:"sellScore"`
	Meta      map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

type MicroPattern struct {
	Name       string  `json:"name" yaml:"name"`
	Direction  string  `json:"direction,omitempty" yaml:"direction,omitempty"`
	Strength   float64 `json:"strength,omitempty" yaml:"strength,omitempty"`
	Confidence float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// EnhancedAnalysis is the enhanced-analysis payload. A nil MicroPatterns
// (absent or null in JSON) means the payload is not ready yet; an empty,
// non-nil slice is a valid "no micro patterns" answer.
type EnhancedAnalysis struct {
	MicroPatterns  []MicroPattern  `json:"microPatterns" yaml:"microPatterns"`
	VisualAnalysis json.RawMessage `json:"visualAnalysis,omitempty" yaml:"-"`
}

// FastResult is one element of the fast-analysis sequence.
type FastResult struct {
	Direction  string  `json:"direction" yaml:"direction"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Snapshot carries the four upstream inputs of one "upstream updated" event.
type Snapshot struct {
	Detailed   map[string]PatternResult `json:"detailedResults"`
	Enhanced   *EnhancedAnalysis        `json:"enhancedAnalysisResult,omitempty"`
	Timing     json.RawMessage          `json:"timingAnalysis,omitempty"`
	Fast       []FastResult             `json:"fastAnalysisResults,omitempty"`
	ReceivedAt time.Time                `json:"-"`
}

// Clone returns a deep-enough copy: maps, slices and raw JSON are not shared
// with the receiver. Meta maps inside pattern results are shallow-copied.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Timing:     cloneRaw(s.Timing),
		Fast:       slices.Clone(s.Fast),
		ReceivedAt: s.ReceivedAt,
	}
	if s.Detailed != nil {
		out.Detailed = ClonePatternResults(s.Detailed)
	}
	if s.Enhanced != nil {
		e := EnhancedAnalysis{
			MicroPatterns:  slices.Clone(s.Enhanced.MicroPatterns),
			VisualAnalysis: cloneRaw(s.Enhanced.VisualAnalysis),
		}
		out.Enhanced = &e
	}
	return out
}

// ClonePatternResults copies the mapping so later writes to either side do
// not leak into the other.
func ClonePatternResults(in map[string]PatternResult) map[string]PatternResult {
	out := make(map[string]PatternResult, len(in))
	for k, v := range in {
		if v.Meta != nil {
			v.Meta = maps.Clone(v.Meta)
		}
		out[k] = v
	}
	return out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return slices.Clone(raw)
}
