package notify

import (
	"context"
	"log/slog"
)

// LogPublisher only logs events. Used when no real-time provider is
// configured.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, channel, event string, payload map[string]any) error {
	p.log.InfoContext(ctx, "notification", "channel", channel, "event", event, "payload", payload)
	return nil
}
