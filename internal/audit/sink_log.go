package audit

import (
	"context"
	"log/slog"
)

// LogSink writes entries to the structured log. It is the fallback sink for
// environments without a remote audit endpoint; entries still leave the
// process through log shipping.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink writing to the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish implements Sink.
func (s *LogSink) Publish(ctx context.Context, entry Entry) error {
	s.logger.InfoContext(ctx, "audit entry",
		slog.String("event_type", entry.EventType),
		slog.String("category", string(entry.Category)),
		slog.String("severity", string(entry.Severity)),
		slog.String("actor_id", entry.ActorID),
		slog.String("retention", entry.RetentionPeriod),
		slog.Time("timestamp", entry.Timestamp),
	)
	return nil
}
