package events

import (
	"context"
	"log/slog"
)

// LogPublisher writes events to a structured logger. Used when no broker is
// configured and as the Kafka fallback.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher that logs every event at Info.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "lead event",
		"event_type", string(event.Type),
		"lead_id", event.LeadID,
		"status", event.Status,
		"actor", event.Actor,
		"request_id", event.RequestID,
		"occurred_at", event.OccurredAt,
	)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error {
	return nil
}
