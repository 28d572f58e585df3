package notifier

import (
	"context"
	"strings"

	"autodecide/internal/logger"
)

// LogSink writes notifications to the process log. It is always registered so
// headless deployments still see every verdict.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Send(_ context.Context, n Notification) error {
	body := strings.ReplaceAll(strings.TrimSpace(n.Body), "\n", " | ")
	switch n.Severity {
	case SeverityError:
		logger.Errorf("Notify[%s]: %s | %s", n.Severity, n.Title, body)
	case SeverityWarning:
		logger.Warnf("Notify[%s]: %s | %s", n.Severity, n.Title, body)
	default:
		logger.Infof("Notify[%s]: %s | %s", n.Severity, n.Title, body)
	}
	return nil
}
