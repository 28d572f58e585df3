package notifier

import (
	"context"
	"time"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is the user-facing message produced for each decision cycle.
type Notification struct {
	Severity Severity      `json:"severity"`
	Title    string        `json:"title"`
	Body     string        `json:"body"`
	Duration time.Duration `json:"duration"`
}

func severityIcon(s Severity) string {
	switch s {
	case SeveritySuccess:
		return "✅"
	case SeverityWarning:
		return "⚠️"
	case SeverityError:
		return "❌"
	default:
		return "ℹ️"
	}
}

// Sink delivers notifications to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}
