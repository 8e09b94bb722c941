// Package audit records who did what, when. The trail is written after
// commit; a failed audit write never rolls back the business effect.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/kori-finance/kori/internal/guard"
)

// Port receives one record per completed admin or money-moving command.
type Port interface {
	Publish(ctx context.Context, action string, actorType guard.ActorType, actorRef string, occurredAt time.Time, metadata map[string]string)
}

// LogTrail writes audit records to the structured log. The log shipper
// owns retention; the service only guarantees the record is emitted.
type LogTrail struct {
	logger *slog.Logger
}

// NewLogTrail builds a slog-backed audit trail.
func NewLogTrail(logger *slog.Logger) *LogTrail {
	return &LogTrail{logger: logger}
}

func (t *LogTrail) Publish(ctx context.Context, action string, actorType guard.ActorType, actorRef string, occurredAt time.Time, metadata map[string]string) {
	attrs := []any{
		slog.String("action", action),
		slog.String("actor_type", string(actorType)),
		slog.String("actor_ref", actorRef),
		slog.Time("occurred_at", occurredAt),
	}
	for k, v := range metadata {
		attrs = append(attrs, slog.String("meta_"+k, v))
	}
	t.logger.InfoContext(ctx, "audit", attrs...)
}
