package messaging

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"ideajar/internal/shared/events"
)

const consumerBuffer = 128

// ErrConsumerBusy is returned when a consumer group's buffer is full. The
// event was not delivered to that group and the caller should retry it.
var ErrConsumerBusy = errors.New("consumer buffer full")

// Kafka is the event bus used by the outbox relay, the group notifier and the
// winner hand-off consumer. Delivery is in-process and follows consumer-group
// rules: every group sees each event once, and within a group the partition
// key picks the member so events for one group id stay ordered.
type Kafka struct {
	mu      sync.RWMutex
	topics  map[string]map[string][]chan events.Envelope
	brokers []string
	wg      sync.WaitGroup
	logger  *slog.Logger
}

func NewKafka(brokers []string, logger *slog.Logger) (*Kafka, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{
		topics:  make(map[string]map[string][]chan events.Envelope),
		brokers: append([]string(nil), brokers...),
		logger:  logger,
	}, nil
}

func (k *Kafka) Publish(ctx context.Context, topic string, event events.Envelope) error {
	k.mu.RLock()
	targets := make([]chan events.Envelope, 0, len(k.topics[topic]))
	for _, members := range k.topics[topic] {
		if len(members) > 0 {
			targets = append(targets, members[partition(event.PartitionKey, len(members))])
		}
	}
	k.mu.RUnlock()

	dropped := 0
	for _, target := range targets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case target <- event:
		default:
			dropped++
			k.logger.Warn("dropping event for slow consumer",
				"event", "kafka_publish_drop",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"event_id", event.EventID,
			)
		}
	}
	if dropped > 0 {
		return fmt.Errorf("publish %s to %d of %d consumer groups: %w", event.EventID, dropped, len(targets), ErrConsumerBusy)
	}

	k.logger.Debug("event published",
		"event", "kafka_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"consumer_groups", len(targets),
	)
	return nil
}

// Subscribe joins consumerGroup on topic and handles deliveries on a goroutine
// until ctx is done. Wait blocks until every such goroutine has returned.
func (k *Kafka) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, events.Envelope) error,
) error {
	ch := make(chan events.Envelope, consumerBuffer)

	k.mu.Lock()
	groups, ok := k.topics[topic]
	if !ok {
		groups = make(map[string][]chan events.Envelope)
		k.topics[topic] = groups
	}
	groups[consumerGroup] = append(groups[consumerGroup], ch)
	k.mu.Unlock()

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		defer k.leave(topic, consumerGroup, ch)
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-ch:
				if err := handler(ctx, event); err != nil {
					k.logger.Error("consumer handler failed",
						"event", "kafka_consume_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"consumer_group", consumerGroup,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return nil
}

func (k *Kafka) Wait() {
	k.wg.Wait()
}

func (k *Kafka) leave(topic string, consumerGroup string, target chan events.Envelope) {
	k.mu.Lock()
	defer k.mu.Unlock()

	groups := k.topics[topic]
	members := groups[consumerGroup]
	kept := make([]chan events.Envelope, 0, len(members))
	for _, member := range members {
		if member != target {
			kept = append(kept, member)
		}
	}
	if len(kept) == 0 {
		delete(groups, consumerGroup)
	} else {
		groups[consumerGroup] = kept
	}
	if len(groups) == 0 {
		delete(k.topics, topic)
	}
}

func partition(key string, members int) int {
	if members <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(members))
}
