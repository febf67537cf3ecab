package events

import (
	"context"
	"fmt"
	"sync"

	"restaurant-pos/internal/logger"
)

const queueBuffer = 64

type delivery struct {
	key      string
	evt      Event
	handlers []Handler
}

// InProcessBus delivers events over channels inside one process. Each
// (topic, key) pair gets its own FIFO queue, so events for the same
// aggregate are handled in publish order while different aggregates
// proceed independently. Failed handlers get one redelivery.
type InProcessBus struct {
	mu     sync.Mutex
	subs   map[string][]Handler
	queues map[string]chan delivery
	closed bool
	wg     sync.WaitGroup
	logger *logger.Logger
}

// NewInProcessBus creates an in-process bus
func NewInProcessBus(log *logger.Logger) *InProcessBus {
	return &InProcessBus{
		subs:   make(map[string][]Handler),
		queues: make(map[string]chan delivery),
		logger: log,
	}
}

// Subscribe registers a handler for every event published to the topic.
// Handlers registered after a publish do not see earlier events.
func (b *InProcessBus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], h)
}

// Publish enqueues the event on the (topic, key) queue
func (b *InProcessBus) Publish(ctx context.Context, topic, key string, evt Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("bus is closed")
	}

	handlers := append([]Handler(nil), b.subs[topic]...)

	queueKey := topic + "/" + key
	q, ok := b.queues[queueKey]
	if !ok {
		q = make(chan delivery, queueBuffer)
		b.queues[queueKey] = q
		b.wg.Add(1)
		go b.drain(topic, q)
	}
	b.mu.Unlock()

	select {
	case q <- delivery{key: key, evt: evt, handlers: handlers}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *InProcessBus) drain(topic string, q chan delivery) {
	defer b.wg.Done()

	for d := range q {
		for _, h := range d.handlers {
			if err := h(context.Background(), d.key, d.evt); err != nil {
				b.logger.Error("event_handler_failed",
					fmt.Sprintf("Handler failed for %s on %s, redelivering once", d.evt.EventType(), topic),
					"", err, map[string]interface{}{
						"topic": topic,
						"key":   d.key,
					})
				if err := h(context.Background(), d.key, d.evt); err != nil {
					b.logger.Error("event_dropped",
						fmt.Sprintf("Handler failed again for %s on %s, dropping", d.evt.EventType(), topic),
						"", err, map[string]interface{}{
							"topic": topic,
							"key":   d.key,
						})
				}
			}
		}
	}
}

// Close stops accepting publishes and waits for in-flight deliveries
func (b *InProcessBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, q := range b.queues {
		close(q)
	}
	b.mu.Unlock()

	b.wg.Wait()
}
