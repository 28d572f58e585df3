package decision

import "context"

// Decider maps factors to a verdict. Implementations may block (network
// call) and must honour ctx cancellation.
type Decider interface {
	Decide(ctx context.Context, factors Factors, timeframe, marketType string) (AutonomousDecision, error)
}

// DeciderFunc adapts a plain function to Decider.
type DeciderFunc func(ctx context.Context, factors Factors, timeframe, marketType string) (AutonomousDecision, error)

func (f DeciderFunc) Decide(ctx context.Context, factors Factors, timeframe, marketType string) (AutonomousDecision, error) {
	return f(ctx, factors, timeframe, marketType)
}
