package messaging

import "context"

// Publisher publishes domain events to a message broker. Events are
// keyed so that all events for one aggregate land on one partition.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, key string, event any) error
}

// Subscriber consumes a topic until the context is cancelled.
type Subscriber interface {
	Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error)
}
