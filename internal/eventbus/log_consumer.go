package eventbus

import (
	"context"
	"log/slog"

	"github.com/matthewbaird/propmaint/internal/event"
)

// LogConsumer logs all domain events for observability.
type LogConsumer struct {
	log *slog.Logger
}

func NewLogConsumer(log *slog.Logger) *LogConsumer {
	if log == nil {
		log = slog.Default()
	}
	return &LogConsumer{log: log}
}

func (c *LogConsumer) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	entities := make([]string, len(evt.AffectedEntities))
	for i, ref := range evt.AffectedEntities {
		entities[i] = ref.EntityType + ":" + ref.EntityID
	}
	c.log.InfoContext(ctx, "event",
		"event_type", evt.EventType,
		"category", evt.Category,
		"actor", evt.Actor,
		"summary", evt.Summary,
		"entities", entities,
	)
	return nil
}
