package outbox

import "time"

const (
	StatusPending   = "pending"
	StatusPublished = "published"
)

// Message is an outbox row persisted inside the same DB transaction as the
// state change. The worker relay reads pending rows and publishes them.
type Message struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	Status       string
	CreatedAt    time.Time
}
