package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	application "ideajar/contexts/group-decision/voting-engine/application"
	"ideajar/contexts/group-decision/voting-engine/ports"
)

const defaultRelayBatch = 100

// OutboxRelay moves committed session events from the outbox onto the bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce publishes up to BatchSize pending rows in creation order. A row is
// marked published only after the bus accepted it; the first failure ends the
// cycle so the next one retries from that row.
func (r OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(r.Logger).With(
		"module", application.ModuleName,
		"layer", "worker",
	)

	pending, err := r.Outbox.ListPendingOutbox(ctx, r.batch())
	if err != nil {
		logger.Error("voting outbox list failed", "event", "voting_outbox_list_failed", "error", err.Error())
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	publishedAt := r.now()
	for i, row := range pending {
		if err := r.relay(ctx, row, publishedAt); err != nil {
			logger.Error("voting outbox relay stopped",
				"event", "voting_outbox_relay_failed",
				"outbox_id", row.OutboxID,
				"event_type", row.EventType,
				"published_count", i,
				"error", err.Error(),
			)
			return i, err
		}
	}

	logger.Info("voting outbox relay cycle completed",
		"event", "voting_outbox_relay_completed",
		"published_count", len(pending),
	)
	return len(pending), nil
}

func (r OutboxRelay) relay(ctx context.Context, row ports.OutboxMessage, publishedAt time.Time) error {
	var event ports.EventEnvelope
	if err := json.Unmarshal(row.Payload, &event); err != nil {
		return fmt.Errorf("decode outbox row: %w", err)
	}
	if err := r.Publisher.Publish(ctx, relayTopic(event, row), event); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventID, err)
	}
	if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, publishedAt); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

// relayTopic prefers the envelope's own type; rows written before the
// envelope carried one fall back to the outbox column.
func relayTopic(event ports.EventEnvelope, row ports.OutboxMessage) string {
	if event.EventType != "" {
		return event.EventType
	}
	return row.EventType
}

func (r OutboxRelay) batch() int {
	if r.BatchSize <= 0 {
		return defaultRelayBatch
	}
	return r.BatchSize
}

func (r OutboxRelay) now() time.Time {
	if r.Clock == nil {
		return time.Now().UTC()
	}
	return r.Clock.Now().UTC()
}
