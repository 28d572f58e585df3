package decider

import (
	"errors"
	"fmt"
	"strings"

	"autodecide/internal/decision"
	"autodecide/internal/pkg/jsonutil"

	"github.com/tidwall/gjson"
)

// CoerceDecision reads a verdict from either a bare object or an envelope
// {"decision": {...}}, possibly wrapped in prose or a code fence. Field names are accepted in snake_case or camelCase and
// numbers may be quoted.
func CoerceDecision(raw []byte) (decision.AutonomousDecision, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return decision.AutonomousDecision{}, errors.New("empty decision body")
	}
	if !gjson.ValidBytes(raw) {
		obj, ok := jsonutil.ExtractObject(string(raw))
		if !ok || !gjson.Valid(obj) {
			return decision.AutonomousDecision{}, errors.New("decision body is not valid json")
		}
		raw = []byte(obj)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return decision.AutonomousDecision{}, errors.New("decision body must be a json object")
	}
	if env := root.Get("decision"); env.Exists() {
		if !env.IsObject() {
			return decision.AutonomousDecision{}, errors.New("decision must be an object")
		}
		root = env
	}

	action := strings.TrimSpace(first(root, "action").String())
	if action == "" {
		return decision.AutonomousDecision{}, errors.New("decision has no action")
	}
	conf := first(root, "confidence")
	if !conf.Exists() {
		return decision.AutonomousDecision{}, fmt.Errorf("decision %s has no confidence", action)
	}
	return decision.AutonomousDecision{
		Action:              decision.NormalizeAction(decision.Action(action)),
		Confidence:          conf.Float(),
		ExpectedSuccessRate: first(root, "expected_success_rate", "expectedSuccessRate").Float(),
		Timing: decision.Timing{
			EnterNow:    first(root, "timing.enter_now", "timing.enterNow").Bool(),
			WaitSeconds: first(root, "timing.wait_seconds", "timing.waitSeconds").Float(),
		},
		ProfessionalAnalysis: decision.ProfessionalAnalysis{
			MarketGrade: decision.Grade(strings.ToUpper(strings.TrimSpace(
				first(root, "professional_analysis.market_grade", "professionalAnalysis.marketGrade").String()))),
			Confluences: int(first(root, "professional_analysis.confluences", "professionalAnalysis.confluences").Int()),
		},
	}, nil
}

func first(root gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if r := root.Get(p); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}
