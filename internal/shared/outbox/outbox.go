package outbox

import "time"

// Message is an outbox row persisted next to the state change it describes.
// The worker relay reads pending rows and publishes them to the bus.
type Message struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}
