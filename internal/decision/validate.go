package decision

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidDecision marks a verdict that must not be stored or surfaced.
var ErrInvalidDecision = errors.New("invalid decision")

// Validate normalises casing and rejects partial or out-of-range verdicts.
func Validate(d *AutonomousDecision) error {
	if d == nil {
		return fmt.Errorf("%w: nil", ErrInvalidDecision)
	}
	d.Action = NormalizeAction(d.Action)
	switch d.Action {
	case ActionBuy, ActionSell, ActionWait:
	default:
		return fmt.Errorf("%w: action %q", ErrInvalidDecision, d.Action)
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 100 {
		return fmt.Errorf("%w: confidence %.2f outside 0-100", ErrInvalidDecision, d.Confidence)
	}
	if math.IsNaN(d.ExpectedSuccessRate) || d.ExpectedSuccessRate < 0 {
		return fmt.Errorf("%w: expected_success_rate %.2f", ErrInvalidDecision, d.ExpectedSuccessRate)
	}
	if d.Timing.WaitSeconds < 0 {
		return fmt.Errorf("%w: wait_seconds %.2f", ErrInvalidDecision, d.Timing.WaitSeconds)
	}
	d.ProfessionalAnalysis.MarketGrade = Grade(strings.ToUpper(strings.TrimSpace(string(d.ProfessionalAnalysis.MarketGrade))))
	return nil
}

func NormalizeAction(a Action) Action {
	return Action(strings.ToUpper(strings.TrimSpace(string(a))))
}

// Direction maps a fast-analysis direction onto an action.
func Direction(dir string) Action {
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "up":
		return ActionBuy
	case "down":
		return ActionSell
	default:
		return ActionWait
	}
}
