package orchestrator

import (
	"time"

	"autodecide/internal/config"
	"autodecide/internal/decision/render"
)

// Options holds every tunable of the decision cycle.
type Options struct {
	// DebounceWindow delays a cycle after the qualifying update. With
	// Supersede, a newer update inside the window replaces the pending cycle.
	DebounceWindow time.Duration
	// ProcessingLatency is an extra wait before the decider is called.
	ProcessingLatency time.Duration
	// DecideTimeout bounds one decider call including its retries; 0 leaves
	// it unbounded until Close or supersession.
	DecideTimeout time.Duration
	// Supersede discards pending and stale cycles once a newer update is
	// scheduled. Without it every cycle runs and the last to finish wins.
	Supersede bool

	// BacktestMinSignals: a backtest runs when there are strictly more fast
	// results than this.
	BacktestMinSignals  int
	BacktestConfluences int

	// EntryPrice is used when no PriceSource is configured or it fails.
	EntryPrice    float64
	StopOffsetPct float64
	TakeOffsetPct float64

	Durations render.Durations
}

func DefaultOptions() Options {
	return Options{
		DebounceWindow:      1500 * time.Millisecond,
		ProcessingLatency:   0,
		DecideTimeout:       90 * time.Second,
		Supersede:           true,
		BacktestMinSignals:  5,
		BacktestConfluences: 2,
		EntryPrice:          100,
		StopOffsetPct:       0.02,
		TakeOffsetPct:       0.02,
		Durations:           render.DefaultDurations,
	}
}

// OptionsFromConfig maps the validated orchestrator section onto Options.
func OptionsFromConfig(c config.OrchestratorConfig) Options {
	return Options{
		DebounceWindow:      c.DebounceWindow(),
		ProcessingLatency:   c.ProcessingLatency(),
		DecideTimeout:       ms(c.DecideTimeoutMS),
		Supersede:           c.Supersede,
		BacktestMinSignals:  c.BacktestMinSignals,
		BacktestConfluences: c.BacktestConfluences,
		EntryPrice:          c.EntryPrice,
		StopOffsetPct:       c.StopOffsetPct,
		TakeOffsetPct:       c.TakeOffsetPct,
		Durations: render.Durations{
			Success: ms(c.SuccessDurationMS),
			Info:    ms(c.InfoDurationMS),
			Warning: ms(c.WarningDurationMS),
			Error:   ms(c.ErrorDurationMS),
		},
	}
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
