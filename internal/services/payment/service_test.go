package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"restaurant-pos/internal/events"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
)

type publishedEvent struct {
	topic string
	key   string
	event events.Event
}

// captureBus records publishes synchronously for assertions
type captureBus struct {
	mu        sync.Mutex
	published []publishedEvent
}

func (b *captureBus) Publish(ctx context.Context, topic, key string, evt events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedEvent{topic: topic, key: key, event: evt})
	return nil
}

func (b *captureBus) Subscribe(topic string, h events.Handler) {}

func (b *captureBus) events() []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publishedEvent(nil), b.published...)
}

type testEnv struct {
	svc     *Service
	bus     *captureBus
	gateway *MockGateway
	queue   *MemoryQueueRepository
}

func newTestEnv() *testEnv {
	bus := &captureBus{}
	gateway := NewMockGateway()
	queue := NewMemoryQueueRepository()
	svc := NewService(NewMemoryPaymentRepository(), queue, gateway, bus,
		time.Second, logger.New("payment-service-test"))
	return &testEnv{svc: svc, bus: bus, gateway: gateway, queue: queue}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func paymentRequest(key string) ProcessPaymentRequest {
	return ProcessPaymentRequest{
		OrderID:        "order-1",
		TerminalID:     "TERM1",
		Amount:         dec("21.60"),
		TipAmount:      dec("4.00"),
		Method:         models.MethodCard,
		IdempotencyKey: key,
	}
}

// singleQueueEntry returns the only entry in the queue repo
func (env *testEnv) singleQueueEntry(t *testing.T) *models.OfflinePaymentQueueEntry {
	t.Helper()
	env.queue.mu.RLock()
	defer env.queue.mu.RUnlock()
	if len(env.queue.entries) != 1 {
		t.Fatalf("expected 1 queue entry, got %d", len(env.queue.entries))
	}
	for _, e := range env.queue.entries {
		return cloneEntry(e)
	}
	return nil
}

// makeDue rewinds an entry's next retry time so a sweep picks it up
func (env *testEnv) makeDue(t *testing.T, e *models.OfflinePaymentQueueEntry) {
	t.Helper()
	e.NextRetryAt = time.Now().UTC().Add(-time.Second)
	if err := env.queue.Update(context.Background(), e); err != nil {
		t.Fatalf("failed to make entry due: %v", err)
	}
}

func (env *testEnv) countProcessed() (paymentTopic, orderTopic int) {
	for _, p := range env.bus.events() {
		if _, ok := p.event.(events.PaymentProcessed); ok {
			switch p.topic {
			case events.TopicPaymentEvents:
				paymentTopic++
			case events.TopicOrderEvents:
				orderTopic++
			}
		}
	}
	return
}

func TestProcessPaymentCaptures(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	p, err := env.svc.ProcessPayment(ctx, paymentRequest("key-1"), "req_test")
	if err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}
	if p.Status != models.PaymentStatusCaptured {
		t.Fatalf("expected CAPTURED, got %s", p.Status)
	}
	if p.TransactionID == "" || p.AuthorizationCode == "" {
		t.Fatalf("expected gateway references, got %+v", p)
	}
	if !p.TotalAmount.Equal(dec("25.60")) {
		t.Fatalf("expected total 25.60, got %s", p.TotalAmount)
	}

	paymentTopic, orderTopic := env.countProcessed()
	if paymentTopic != 1 || orderTopic != 1 {
		t.Fatalf("expected PaymentProcessed on both topics, got payment=%d order=%d", paymentTopic, orderTopic)
	}
}

func TestProcessPaymentIdempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	first, err := env.svc.ProcessPayment(ctx, paymentRequest("key-1"), "req_test")
	if err != nil {
		t.Fatalf("first ProcessPayment failed: %v", err)
	}
	second, err := env.svc.ProcessPayment(ctx, paymentRequest("key-1"), "req_test")
	if err != nil {
		t.Fatalf("second ProcessPayment failed: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected same payment, got %s and %s", first.ID, second.ID)
	}
	if env.gateway.Calls() != 1 {
		t.Fatalf("expected 1 gateway call, got %d", env.gateway.Calls())
	}
	if paymentTopic, _ := env.countProcessed(); paymentTopic != 1 {
		t.Fatalf("expected 1 PaymentProcessed, got %d", paymentTopic)
	}
}

func TestConcurrentSameKeyChargesOnce(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := env.svc.ProcessPayment(ctx, paymentRequest("key-1"), "req_test")
			if err != nil {
				t.Errorf("ProcessPayment failed: %v", err)
				return
			}
			ids <- p.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Fatalf("expected one payment across concurrent callers, got %d", len(seen))
	}
	if env.gateway.Calls() != 1 {
		t.Fatalf("expected 1 gateway call, got %d", env.gateway.Calls())
	}
}

func TestProcessPaymentDeclined(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.gateway.SetAuthorizeFunc(func(req GatewayRequest) (*GatewayResult, error) {
		return &GatewayResult{Success: false}, nil
	})

	p, err := env.svc.ProcessPayment(ctx, paymentRequest("key-1"), "req_test")
	if err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}
	if p.Status != models.PaymentStatusDeclined {
		t.Fatalf("expected DECLINED, got %s", p.Status)
	}

	var failed *events.PaymentFailed
	for _, pub := range env.bus.events() {
		if e, ok := pub.event.(events.PaymentFailed); ok {
			failed = &e
		}
	}
	if failed == nil {
		t.Fatal("expected PaymentFailed event")
	}
	if failed.Reason != "Card declined" {
		t.Fatalf("expected default decline reason, got %q", failed.Reason)
	}

	env.queue.mu.RLock()
	queued := len(env.queue.entries)
	env.queue.mu.RUnlock()
	if queued != 0 {
		t.Fatalf("declines must not be queued, found %d entries", queued)
	}
}

func TestTransportFailureQueuesPayment(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.gateway.SetAuthorizeFunc(func(req GatewayRequest) (*GatewayResult, error) {
		return nil, errors.New("connection refused")
	})

	before := time.Now().UTC()
	p, err := env.svc.ProcessPayment(ctx, paymentRequest("key-1"), "req_test")
	if err != nil {
		t.Fatalf("ProcessPayment failed: %v", err)
	}
	if p.Status != models.PaymentStatusPending {
		t.Fatalf("expected PENDING payment, got %s", p.Status)
	}

	entry := env.singleQueueEntry(t)
	if entry.PaymentID != p.ID || entry.Status != models.QueuePending {
		t.Fatalf("unexpected queue entry: %+v", entry)
	}
	if entry.RetryCount != 0 {
		t.Fatalf("expected retry count 0, got %d", entry.RetryCount)
	}
	delay := entry.NextRetryAt.Sub(before)
	if delay < 4*time.Minute || delay > 6*time.Minute {
		t.Fatalf("expected first retry ~5 minutes out, got %v", delay)
	}

	for _, pub := range env.bus.events() {
		if _, ok := pub.event.(events.PaymentFailed); ok {
			t.Fatal("transport failure must not publish PaymentFailed")
		}
	}
}

func TestOfflineRetryCaptures(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.gateway.SetAuthorizeFunc(func(req GatewayRequest) (*GatewayResult, error) {
		return nil, errors.New("connection refused")
	})
	p, _ := env.svc.ProcessPayment(ctx, paymentRequest("key-1"), "req_test")

	// gateway comes back
	env.gateway.SetAuthorizeFunc(nil)
	env.makeDue(t, env.singleQueueEntry(t))

	captured, err := env.svc.ProcessOfflineQueue(ctx, "req_test")
	if err != nil {
		t.Fatalf("ProcessOfflineQueue failed: %v", err)
	}
	if captured != 1 {
		t.Fatalf("expected 1 capture, got %d", captured)
	}

	reloaded, _ := env.svc.GetPayment(ctx, p.ID)
	if reloaded.Status != models.PaymentStatusCaptured {
		t.Fatalf("expected CAPTURED, got %s", reloaded.Status)
	}
	if reloaded.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", reloaded.RetryCount)
	}

	entry := env.singleQueueEntry(t)
	if entry.Status != models.QueueCompleted {
		t.Fatalf("expected COMPLETED entry, got %s", entry.Status)
	}

	paymentTopic, orderTopic := env.countProcessed()
	if paymentTopic != 1 || orderTopic != 1 {
		t.Fatalf("expected exactly one PaymentProcessed per topic, got payment=%d order=%d", paymentTopic, orderTopic)
	}

	// a later sweep finds nothing and captures nothing again
	captured, err = env.svc.ProcessOfflineQueue(ctx, "req_test")
	if err != nil || captured != 0 {
		t.Fatalf("expected idle sweep, got captured=%d err=%v", captured, err)
	}
}

func TestOfflineRetryBacksOff(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.gateway.SetAuthorizeFunc(func(req GatewayRequest) (*GatewayResult, error) {
		return nil, errors.New("connection refused")
	})
	env.svc.ProcessPayment(ctx, paymentRequest("key-1"), "req_test")
	env.makeDue(t, env.singleQueueEntry(t))

	before := time.Now().UTC()
	captured, err := env.svc.ProcessOfflineQueue(ctx, "req_test")
	if err != nil {
		t.Fatalf("ProcessOfflineQueue failed: %v", err)
	}
	if captured != 0 {
		t.Fatalf("expected no captures, got %d", captured)
	}

	entry := env.singleQueueEntry(t)
	if entry.Status != models.QueuePending {
		t.Fatalf("expected entry released to PENDING, got %s", entry.Status)
	}
	if entry.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", entry.RetryCount)
	}
	delay := entry.NextRetryAt.Sub(before)
	if delay < 14*time.Minute || delay > 16*time.Minute {
		t.Fatalf("expected second attempt ~15 minutes out, got %v", delay)
	}
}

func TestOfflineRetrySkipsCapturedPayment(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.gateway.SetAuthorizeFunc(func(req GatewayRequest) (*GatewayResult, error) {
		return nil, errors.New("connection refused")
	})
	p, _ := env.svc.ProcessPayment(ctx, paymentRequest("key-1"), "req_test")
	callsAfterQueue := env.gateway.Calls()

	// payment reconciled through another path before the sweep runs
	reloaded, _ := env.svc.payments.Get(ctx, p.ID)
	reloaded.Capture("txn_manual", "AUTH01")
	if err := env.svc.payments.Update(ctx, reloaded); err != nil {
		t.Fatalf("failed to capture out of band: %v", err)
	}

	env.makeDue(t, env.singleQueueEntry(t))
	captured, err := env.svc.ProcessOfflineQueue(ctx, "req_test")
	if err != nil {
		t.Fatalf("ProcessOfflineQueue failed: %v", err)
	}
	if captured != 0 {
		t.Fatalf("expected reconciliation without capture, got %d", captured)
	}

	entry := env.singleQueueEntry(t)
	if entry.Status != models.QueueCompleted {
		t.Fatalf("expected COMPLETED entry, got %s", entry.Status)
	}
	if env.gateway.Calls() != callsAfterQueue {
		t.Fatal("already captured payment must not hit the gateway again")
	}
}

func TestRefund(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	p, _ := env.svc.ProcessPayment(ctx, paymentRequest("key-1"), "req_test")

	refunded, err := env.svc.Refund(ctx, p.ID, dec("10.00"), "req_test")
	if err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if refunded.Status != models.PaymentStatusCaptured {
		t.Fatalf("refund must not change payment status, got %s", refunded.Status)
	}

	found := false
	for _, pub := range env.bus.events() {
		if e, ok := pub.event.(events.PaymentRefunded); ok {
			found = true
			if !e.Amount.Equal(dec("10.00")) {
				t.Fatalf("unexpected refund amount %s", e.Amount)
			}
		}
	}
	if !found {
		t.Fatal("expected PaymentRefunded event")
	}

	if _, err := env.svc.Refund(ctx, p.ID, dec("100.00"), "req_test"); err == nil {
		t.Fatal("expected refund above total to fail")
	}
}

func TestRefundRequiresCapture(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.gateway.SetAuthorizeFunc(func(req GatewayRequest) (*GatewayResult, error) {
		return &GatewayResult{Success: false, Reason: "Card declined"}, nil
	})
	p, _ := env.svc.ProcessPayment(ctx, paymentRequest("key-1"), "req_test")

	if _, err := env.svc.Refund(ctx, p.ID, dec("5.00"), "req_test"); !errors.Is(err, ErrNotRefundable) {
		t.Fatalf("expected ErrNotRefundable, got %v", err)
	}
}

func TestProcessPaymentValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	tests := []struct {
		name  string
		req   ProcessPaymentRequest
		field string
	}{
		{"missing key", ProcessPaymentRequest{OrderID: "o1", Amount: dec("1.00"), Method: models.MethodCard}, "idempotency_key"},
		{"missing order", ProcessPaymentRequest{IdempotencyKey: "k", Amount: dec("1.00"), Method: models.MethodCard}, "order_id"},
		{"zero amount", ProcessPaymentRequest{IdempotencyKey: "k", OrderID: "o1", Method: models.MethodCard}, "amount"},
		{"bad method", ProcessPaymentRequest{IdempotencyKey: "k", OrderID: "o1", Amount: dec("1.00"), Method: "CHECK"}, "method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.ProcessPayment(ctx, tt.req, "req_test")
			var verr models.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Fatalf("expected %s validation error, got %v", tt.field, err)
			}
		})
	}
}
