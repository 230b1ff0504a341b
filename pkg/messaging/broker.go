package messaging

import (
	"context"
	"encoding/json"
)

// Broker publishes outbox events. Consuming them is the notification
// dispatcher's job, outside this service.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Close() error
}

// Message is the envelope published for every outbox event.
type Message struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
}

// Locker is a cross-process mutual exclusion primitive.
type Locker interface {
	// TryLock acquires the lock without waiting. ok is false when another
	// holder owns it. release is only valid when ok is true.
	TryLock(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}
