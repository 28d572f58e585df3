package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fixtureFile is the on-disk layout of a replay file.
type fixtureFile struct {
	Snapshots []fixtureSnapshot `yaml:"snapshots"`
}

type fixtureSnapshot struct {
	Detailed map[string]PatternResult `yaml:"detailedResults"`
	Enhanced *struct {
		MicroPatterns  []MicroPattern `yaml:"microPatterns"`
		VisualAnalysis map[string]any `yaml:"visualAnalysis"`
	} `yaml:"enhancedAnalysisResult"`
	Timing map[string]any `yaml:"timingAnalysis"`
	Fast   []FastResult   `yaml:"fastAnalysisResults"`
}

// LoadFixtures reads a YAML replay file into snapshots, in file order.
func LoadFixtures(path string) ([]Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay fixtures failed: %w", err)
	}
	return ParseFixtures(raw)
}

func ParseFixtures(raw []byte) ([]Snapshot, error) {
	var file fixtureFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse replay fixtures failed: %w", err)
	}
	out := make([]Snapshot, 0, len(file.Snapshots))
	for i, fx := range file.Snapshots {
		snap := Snapshot{Detailed: fx.Detailed, Fast: fx.Fast}
		if fx.Enhanced != nil {
			visual, err := toRaw(fx.Enhanced.VisualAnalysis)
			if err != nil {
				return nil, fmt.Errorf("snapshot %d visualAnalysis: %w", i, err)
			}
			snap.Enhanced = &EnhancedAnalysis{
				MicroPatterns:  fx.Enhanced.MicroPatterns,
				VisualAnalysis: visual,
			}
		}
		timing, err := toRaw(fx.Timing)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d timingAnalysis: %w", i, err)
		}
		snap.Timing = timing
		out = append(out, snap)
	}
	return out, nil
}

func toRaw(v map[string]any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
