package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ideajar/contexts/group-decision/voting-engine/adapters/memory"
	"ideajar/contexts/group-decision/voting-engine/application/workers"
	"ideajar/contexts/group-decision/voting-engine/ports"
)

type capturePublisher struct {
	topic    string
	envelope ports.EventEnvelope
	err      error
}

func (p *capturePublisher) Publish(_ context.Context, topic string, envelope ports.EventEnvelope) error {
	p.topic = topic
	p.envelope = envelope
	return p.err
}

type fixedID string

func (f fixedID) NewID(context.Context) (string, error) { return string(f), nil }

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func TestBusNotifierPublishesGroupNotification(t *testing.T) {
	publisher := &capturePublisher{}
	at := time.Date(2026, 7, 3, 20, 15, 0, 0, time.UTC)
	notifier := BusNotifier{Publisher: publisher, IDGen: fixedID("evt-9"), Clock: fixedClock(at)}

	err := notifier.NotifyGroup(context.Background(), " jar-1 ", "vote_resolved", map[string]any{"winner_id": "picnic"})
	if err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if publisher.topic != NotificationTopic {
		t.Fatalf("expected topic %s, got %s", NotificationTopic, publisher.topic)
	}
	envelope := publisher.envelope
	if envelope.EventID != "evt-9" || envelope.PartitionKey != "jar-1" || !envelope.OccurredAt.Equal(at) {
		t.Fatalf("unexpected envelope %+v", envelope)
	}

	var data struct {
		GroupID      string         `json:"group_id"`
		Notification string         `json:"notification"`
		Payload      map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.GroupID != "jar-1" || data.Notification != "vote_resolved" || data.Payload["winner_id"] != "picnic" {
		t.Fatalf("unexpected data %+v", data)
	}
}

func TestBusNotifierReturnsPublishError(t *testing.T) {
	publisher := &capturePublisher{err: errors.New("bus down")}
	notifier := BusNotifier{Publisher: publisher, IDGen: fixedID("evt-1")}
	if err := notifier.NotifyGroup(context.Background(), "jar-1", "vote_started", nil); err == nil {
		t.Fatalf("expected the publish error")
	}
}

type topicRecorder struct {
	topics []string
}

func (r *topicRecorder) Publish(_ context.Context, topic string, _ ports.EventEnvelope) error {
	r.topics = append(r.topics, topic)
	return nil
}

func TestBusNotifierThroughOutboxReachesRelay(t *testing.T) {
	store := memory.NewStore()
	at := time.Date(2026, 7, 3, 20, 15, 0, 0, time.UTC)
	notifier := BusNotifier{Publisher: OutboxPublisher{Outbox: store}, IDGen: fixedID("evt-4"), Clock: fixedClock(at)}
	if err := notifier.NotifyGroup(context.Background(), "jar-1", "vote_started", nil); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != NotificationTopic {
		t.Fatalf("expected one pending notification row, got %+v", pending)
	}

	bus := &topicRecorder{}
	relay := workers.OutboxRelay{Outbox: store, Publisher: bus, Clock: fixedClock(at)}
	if published, err := relay.RunOnce(context.Background()); err != nil || published != 1 {
		t.Fatalf("expected the relay to publish the notification, got %d err=%v", published, err)
	}
	if len(bus.topics) != 1 || bus.topics[0] != NotificationTopic {
		t.Fatalf("expected %s on the bus, got %v", NotificationTopic, bus.topics)
	}
}
