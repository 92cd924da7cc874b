package messaging

import (
	"context"
	"strings"

	"ideajar/contexts/group-decision/voting-engine/ports"
)

// OutboxPublisher lets BusNotifier run in a process without bus consumers.
// Notifications land in the outbox and the worker's relay puts them on the
// bus under their event type.
type OutboxPublisher struct {
	Outbox ports.OutboxWriter
}

func (p OutboxPublisher) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	if topic = strings.TrimSpace(topic); topic != "" {
		event.EventType = topic
	}
	return p.Outbox.AppendOutbox(ctx, event)
}

var _ ports.EventPublisher = OutboxPublisher{}
