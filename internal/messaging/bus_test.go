package messaging

import (
	"testing"

	"restaurant-pos/internal/events"
)

func TestRoutingKey(t *testing.T) {
	tests := []struct {
		topic string
		key   string
		want  string
	}{
		{events.TopicOrderEvents, "order-1", "order-events.order-1"},
		{events.TopicKitchenEvents, "ticket-9", "kitchen-events.ticket-9"},
		{events.TopicPaymentEvents, "pay-3", "payment-events.pay-3"},
	}
	for _, tc := range tests {
		if got := RoutingKey(tc.topic, tc.key); got != tc.want {
			t.Fatalf("RoutingKey(%s, %s) = %s, want %s", tc.topic, tc.key, got, tc.want)
		}
	}
}

func TestQueueName(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{events.TopicOrderEvents, "order_events_queue"},
		{events.TopicKitchenEvents, "kitchen_events_queue"},
		{events.TopicPaymentEvents, "payment_events_queue"},
	}
	for _, tc := range tests {
		got, err := QueueName(tc.topic)
		if err != nil {
			t.Fatalf("QueueName(%s) returned error: %v", tc.topic, err)
		}
		if got != tc.want {
			t.Fatalf("QueueName(%s) = %s, want %s", tc.topic, got, tc.want)
		}
	}

	if _, err := QueueName("mystery-topic"); err == nil {
		t.Fatal("expected error for unknown topic")
	}
}
