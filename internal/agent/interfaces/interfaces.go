package interfaces

import (
	"context"

	"autodecide/internal/config"
	"autodecide/internal/gateway/notifier"
	"autodecide/internal/risk"
)

// SettingsSource provides the market settings read at the start of each cycle.
// Values may change between cycles.
type SettingsSource interface {
	MarketSettings() config.MarketConfig
}

// SettingsWatcher is a SettingsSource that announces market changes.
type SettingsWatcher interface {
	SettingsSource
	Subscribe(fn config.ChangeListener)
}

// RiskDesk evaluates directional decisions and replays fast signals. The
// accessors expose state owned by the desk.
type RiskDesk interface {
	// EvaluateSignalRisk scores a directional decision.
	EvaluateSignalRisk(ctx context.Context, req risk.SignalRequest) (risk.Assessment, error)

	// PerformBacktest replays a batch of fast-analysis signals.
	PerformBacktest(ctx context.Context, inputs []risk.BacktestInput) error

	CurrentRisk() *risk.Assessment
	PositionSizing() *risk.PositionSizing
	ActiveAlerts() []risk.Alert
	AccountMetrics() risk.AccountMetrics
}

// PriceSource returns a live reference price for the configured symbol.
type PriceSource interface {
	MarkPrice(ctx context.Context, symbol string) (float64, error)
}

// Notifier delivers a rendered notification. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n notifier.Notification) error
}
