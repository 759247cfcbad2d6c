// Package notify defines the administrator notification sink.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Severity classifies an admin notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notifier delivers out-of-band messages to storefront administrators.
// Implementations are fire-and-forget: delivery failures must be swallowed
// or logged, never returned to the caller.
type Notifier interface {
	NotifyAdmin(ctx context.Context, severity Severity, message string)
}

// LogNotifier is a Notifier that writes notifications to the application log.
type LogNotifier struct {
	lg *zap.Logger
}

// NewLogNotifier creates a LogNotifier backed by the given logger.
func NewLogNotifier(lg *zap.Logger) *LogNotifier {
	return &LogNotifier{lg: lg.Named("notify")}
}

// NotifyAdmin logs the notification at a level matching its severity.
func (n *LogNotifier) NotifyAdmin(_ context.Context, severity Severity, message string) {
	switch severity {
	case SeverityCritical:
		n.lg.Error("admin notification", zap.String("message", message))
	case SeverityWarning:
		n.lg.Warn("admin notification", zap.String("message", message))
	default:
		n.lg.Info("admin notification", zap.String("message", message))
	}
}

// Nop is a Notifier that discards all notifications.
type Nop struct{}

// NotifyAdmin does nothing.
func (Nop) NotifyAdmin(context.Context, Severity, string) {}
