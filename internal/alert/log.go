package alert

import (
	"context"
	"log/slog"

	"github.com/upmon/upmon/internal/monitor"
)

// LogSender writes alerts to the structured log. It backs the "log" channel
// type and needs no configuration.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "alert")}
}

func (l *LogSender) Type() monitor.ChannelType { return monitor.ChannelLog }

func (l *LogSender) Send(_ context.Context, event monitor.AlertEvent, _ map[string]string) error {
	attrs := []any{
		"target_id", event.TargetID,
		"target", event.TargetName,
		"url", event.URL,
		"incident_id", event.IncidentID,
		"status", string(event.Status),
	}
	if event.Error != nil {
		attrs = append(attrs, "error_kind", string(*event.Error))
	}

	if event.Kind == monitor.TransitionResolved {
		l.logger.Info("incident resolved", attrs...)
	} else {
		l.logger.Warn("incident opened", attrs...)
	}
	return nil
}
