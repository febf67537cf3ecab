package events

import "context"

// Handler processes one delivered event. A non-nil error requests
// redelivery (the bus is at-least-once; handlers must be idempotent).
type Handler func(ctx context.Context, key string, evt Event) error

// Bus is the ordered, partitioned publish/subscribe abstraction every
// context talks through. Deliveries for the same (topic, key) arrive in
// publish order; different keys may interleave.
type Bus interface {
	Publish(ctx context.Context, topic, key string, evt Event) error
	Subscribe(topic string, h Handler)
}
