package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"restaurant-pos/internal/events"
	"restaurant-pos/internal/logger"
)

const (
	publishTimeout  = 10 * time.Second
	handlerTimeout  = 30 * time.Second
	defaultPrefetch = 1
)

// Bus is the broker-backed events.Bus implementation. Publishes go to
// the shared topic exchange keyed by aggregate id; each subscribed
// topic is consumed from its durable queue with manual acks, so
// delivery is at-least-once and per-aggregate ordered.
type Bus struct {
	conn   *Connection
	logger *logger.Logger

	mu   sync.Mutex
	subs map[string][]events.Handler
}

// NewBus creates a broker-backed bus over an established connection
func NewBus(conn *Connection, log *logger.Logger) *Bus {
	return &Bus{
		conn:   conn,
		logger: log,
		subs:   make(map[string][]events.Handler),
	}
}

// Publish sends the event to the topic, keyed for per-aggregate ordering
func (b *Bus) Publish(ctx context.Context, topic, key string, evt events.Event) error {
	if _, err := QueueName(topic); err != nil {
		return err
	}

	if b.conn.IsClosed() {
		if err := b.conn.Reconnect(); err != nil {
			return fmt.Errorf("failed to reconnect: %w", err)
		}
	}

	env, err := events.Wrap(key, evt)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = b.conn.Channel().PublishWithContext(
		ctx,
		ExchangeName,          // exchange
		RoutingKey(topic, key), // routing key
		false,                 // mandatory
		false,                 // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Type:         evt.EventType(),
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		b.logger.Error("message_publish_failed",
			fmt.Sprintf("Failed to publish %s to %s", evt.EventType(), topic),
			"", err, map[string]interface{}{
				"topic": topic,
				"key":   key,
			})
		return fmt.Errorf("failed to publish message: %w", err)
	}

	b.logger.Debug("message_published",
		fmt.Sprintf("Published %s to %s", evt.EventType(), topic),
		"", map[string]interface{}{
			"topic":        topic,
			"key":          key,
			"message_size": len(body),
		})

	return nil
}

// Subscribe registers a handler for a topic. Consumption starts when
// Run is called.
func (b *Bus) Subscribe(topic string, h events.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], h)
}

// Run consumes every subscribed topic until the context is cancelled
func (b *Bus) Run(ctx context.Context) error {
	b.mu.Lock()
	topics := make([]string, 0, len(b.subs))
	for topic := range b.subs {
		topics = append(topics, topic)
	}
	b.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		g.Go(func() error {
			return b.consumeTopic(ctx, topic)
		})
	}
	return g.Wait()
}

func (b *Bus) consumeTopic(ctx context.Context, topic string) error {
	queueName, err := QueueName(topic)
	if err != nil {
		return err
	}

	if err := b.conn.Channel().Qos(defaultPrefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := b.conn.Channel().Consume(
		queueName,            // queue
		"consumer-"+topic,    // consumer tag
		false,                // auto-ack (we ack manually)
		false,                // exclusive
		false,                // no-local
		false,                // no-wait
		nil,                  // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer for %s: %w", queueName, err)
	}

	b.logger.Info("consumer_started",
		fmt.Sprintf("Started consuming from queue %s", queueName),
		"", map[string]interface{}{
			"queue": queueName,
			"topic": topic,
		})

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("consumer_stopped", "Consumer stopped by context", "", nil)
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				b.logger.Error("consumer_channel_closed", "Message channel closed, attempting to reconnect", "", nil, nil)
				if err := b.conn.Reconnect(); err != nil {
					return fmt.Errorf("failed to reconnect after channel closed: %w", err)
				}
				return b.consumeTopic(ctx, topic)
			}
			b.processDelivery(ctx, topic, d)
		}
	}
}

func (b *Bus) processDelivery(ctx context.Context, topic string, d amqp091.Delivery) {
	start := time.Now()

	var env events.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		b.logger.Error("message_parsing_failed", "Failed to parse envelope, discarding", "", err, map[string]interface{}{
			"topic": topic,
		})
		// Malformed payloads never become parseable; do not requeue.
		d.Nack(false, false)
		return
	}

	evt, err := env.Decode()
	if err != nil {
		b.logger.Error("message_parsing_failed", "Failed to decode event, discarding", "", err, map[string]interface{}{
			"topic":      topic,
			"event_type": env.EventType,
		})
		d.Nack(false, false)
		return
	}

	b.mu.Lock()
	handlers := append([]events.Handler(nil), b.subs[topic]...)
	b.mu.Unlock()

	handlerCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	for _, h := range handlers {
		if err := h(handlerCtx, env.Key, evt); err != nil {
			b.logger.Error("message_processing_failed",
				fmt.Sprintf("Handler failed for %s", env.EventType),
				"", err, map[string]interface{}{
					"topic":       topic,
					"key":         env.Key,
					"duration_ms": time.Since(start).Milliseconds(),
				})
			if nackErr := d.Nack(false, true); nackErr != nil {
				b.logger.Error("message_nack_failed", "Failed to nack message", "", nackErr, nil)
			}
			return
		}
	}

	b.logger.Debug("message_processed",
		fmt.Sprintf("Processed %s", env.EventType),
		"", map[string]interface{}{
			"topic":       topic,
			"key":         env.Key,
			"duration_ms": time.Since(start).Milliseconds(),
		})

	if ackErr := d.Ack(false); ackErr != nil {
		b.logger.Error("message_ack_failed", "Failed to ack message", "", ackErr, nil)
	}
}
