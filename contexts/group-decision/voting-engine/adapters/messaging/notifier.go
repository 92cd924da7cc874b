package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "ideajar/contexts/group-decision/voting-engine/application"
	"ideajar/contexts/group-decision/voting-engine/ports"
)

const (
	NotificationTopic = "group.notification"
	sourceService     = "voting-engine"
)

// BusNotifier turns group broadcasts into group.notification events for the
// delivery service. Publishing is best effort. The processes wire it to an
// OutboxPublisher so the worker relay carries notifications onto the bus.
type BusNotifier struct {
	Publisher ports.EventPublisher
	IDGen     ports.IDGenerator
	Clock     ports.Clock
	Logger    *slog.Logger
}

func (n BusNotifier) NotifyGroup(ctx context.Context, groupID string, event string, payload map[string]any) error {
	groupID = strings.TrimSpace(groupID)
	eventID, err := n.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if n.Clock != nil {
		now = n.Clock.Now().UTC()
	}

	raw, err := json.Marshal(map[string]any{
		"group_id":     groupID,
		"notification": event,
		"payload":      payload,
	})
	if err != nil {
		return err
	}
	envelope := ports.EventEnvelope{
		EventID:          eventID,
		EventType:        NotificationTopic,
		OccurredAt:       now,
		SourceService:    sourceService,
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "group_id",
		PartitionKey:     groupID,
		Data:             raw,
	}
	if err := n.Publisher.Publish(ctx, NotificationTopic, envelope); err != nil {
		return err
	}
	application.ResolveLogger(n.Logger).Debug("group notification published",
		"event", "voting_group_notification_published",
		"module", application.ModuleName,
		"layer", "adapter",
		"group_id", groupID,
		"notification", event,
		"event_id", eventID,
	)
	return nil
}

var _ ports.Notifier = BusNotifier{}
