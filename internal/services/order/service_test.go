package order

import (
	"context"
	"errors"
	"sync"
	"testing"

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

func newTestService() (*Service, *captureBus) {
	bus := &captureBus{}
	svc := NewService(NewMemoryRepository(), bus, logger.New("order-service-test"))
	return svc, bus
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateOrderPublishesOrderCreated(t *testing.T) {
	svc, bus := newTestService()

	o, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		TableID: "T1", ServerID: "S1", TerminalID: "TERM1",
	}, "req_test")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if o.Status != models.OrderStatusDraft {
		t.Fatalf("expected DRAFT order, got %s", o.Status)
	}

	published := bus.events()
	if len(published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(published))
	}
	if published[0].topic != events.TopicOrderEvents || published[0].key != o.ID {
		t.Fatalf("unexpected publish target %s/%s", published[0].topic, published[0].key)
	}
	created, ok := published[0].event.(events.OrderCreated)
	if !ok {
		t.Fatalf("expected OrderCreated, got %T", published[0].event)
	}
	if created.OrderID != o.ID || created.TableID != "T1" {
		t.Fatalf("unexpected event payload: %+v", created)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{ServerID: "S1"}, "req_test")
	var verr models.ValidationError
	if !errors.As(err, &verr) || verr.Field != "table_id" {
		t.Fatalf("expected table_id validation error, got %v", err)
	}
}

func TestAddItemPersistsTotals(t *testing.T) {
	svc, bus := newTestService()

	o, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		TableID: "T1", ServerID: "S1", TerminalID: "TERM1",
	}, "req_test")
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	_, err = svc.AddItem(context.Background(), o.ID, models.ItemSpec{
		MenuItemID: "burger-1", Name: "Burger", Quantity: 2, UnitPrice: dec("10.00"),
	}, "req_test")
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	stored, err := svc.GetOrder(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if !stored.Total.Equal(dec("21.60")) {
		t.Fatalf("expected total 21.60, got %s", stored.Total)
	}
	if len(stored.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(stored.Items))
	}

	published := bus.events()
	last := published[len(published)-1]
	added, ok := last.event.(events.OrderItemAdded)
	if !ok {
		t.Fatalf("expected OrderItemAdded, got %T", last.event)
	}
	if added.OrderID != o.ID || added.Quantity != 2 {
		t.Fatalf("unexpected event payload: %+v", added)
	}
}

func TestAddItemUnknownOrder(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.AddItem(context.Background(), "missing", models.ItemSpec{
		MenuItemID: "m1", Name: "Soup", Quantity: 1, UnitPrice: dec("5.00"),
	}, "req_test")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitOrderDualPublish(t *testing.T) {
	svc, bus := newTestService()

	o, _ := svc.CreateOrder(context.Background(), CreateOrderRequest{
		TableID: "T4", ServerID: "S1", TerminalID: "TERM1",
	}, "req_test")
	_, err := svc.AddItem(context.Background(), o.ID, models.ItemSpec{
		MenuItemID: "steak-1", Name: "Ribeye Steak", Quantity: 1, UnitPrice: dec("32.00"),
	}, "req_test")
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	submitted, err := svc.SubmitOrder(context.Background(), o.ID, "req_test")
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	if submitted.Status != models.OrderStatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", submitted.Status)
	}
	for _, item := range submitted.Items {
		if item.Status != models.ItemStatusSentToKitchen {
			t.Fatalf("expected item SENT_TO_KITCHEN, got %s", item.Status)
		}
	}

	topics := map[string]bool{}
	for _, p := range bus.events() {
		if evt, ok := p.event.(events.OrderSubmitted); ok {
			topics[p.topic] = true
			if p.key != o.ID {
				t.Fatalf("expected partition key %s, got %s", o.ID, p.key)
			}
			if len(evt.Items) != 1 || evt.Items[0].Name != "Ribeye Steak" {
				t.Fatalf("expected denormalized items, got %+v", evt.Items)
			}
		}
	}
	if !topics[events.TopicOrderEvents] || !topics[events.TopicKitchenEvents] {
		t.Fatalf("expected OrderSubmitted on both topics, got %v", topics)
	}
}

func TestSubmitEmptyOrder(t *testing.T) {
	svc, _ := newTestService()

	o, _ := svc.CreateOrder(context.Background(), CreateOrderRequest{
		TableID: "T1", ServerID: "S1", TerminalID: "TERM1",
	}, "req_test")

	_, err := svc.SubmitOrder(context.Background(), o.ID, "req_test")
	var verr models.ValidationError
	if !errors.As(err, &verr) || verr.Field != "items" {
		t.Fatalf("expected items validation error, got %v", err)
	}
}

func TestMutationsRejectedAfterSubmit(t *testing.T) {
	svc, _ := newTestService()

	o, _ := svc.CreateOrder(context.Background(), CreateOrderRequest{
		TableID: "T1", ServerID: "S1", TerminalID: "TERM1",
	}, "req_test")
	svc.AddItem(context.Background(), o.ID, models.ItemSpec{
		MenuItemID: "m1", Name: "Soup", Quantity: 1, UnitPrice: dec("5.00"),
	}, "req_test")
	if _, err := svc.SubmitOrder(context.Background(), o.ID, "req_test"); err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}

	_, err := svc.AddItem(context.Background(), o.ID, models.ItemSpec{
		MenuItemID: "m2", Name: "Salad", Quantity: 1, UnitPrice: dec("6.00"),
	}, "req_test")
	if !errors.Is(err, ErrOrderNotEditable) {
		t.Fatalf("expected ErrOrderNotEditable on AddItem, got %v", err)
	}

	_, err = svc.SubmitOrder(context.Background(), o.ID, "req_test")
	if !errors.Is(err, ErrOrderNotEditable) {
		t.Fatalf("expected ErrOrderNotEditable on second submit, got %v", err)
	}
}

func TestMarkSyncedListUnsyncedRoundTrip(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, _ := svc.CreateOrder(ctx, CreateOrderRequest{TableID: "T1", ServerID: "S1", TerminalID: "TERM1"}, "req_test")
	second, _ := svc.CreateOrder(ctx, CreateOrderRequest{TableID: "T2", ServerID: "S1", TerminalID: "TERM1"}, "req_test")

	unsynced, err := svc.ListUnsynced(ctx)
	if err != nil {
		t.Fatalf("ListUnsynced failed: %v", err)
	}
	if len(unsynced) != 2 {
		t.Fatalf("expected 2 unsynced orders, got %d", len(unsynced))
	}

	if err := svc.MarkSynced(ctx, first.ID, "req_test"); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	// repeated call is a no-op
	if err := svc.MarkSynced(ctx, first.ID, "req_test"); err != nil {
		t.Fatalf("repeated MarkSynced failed: %v", err)
	}

	unsynced, err = svc.ListUnsynced(ctx)
	if err != nil {
		t.Fatalf("ListUnsynced failed: %v", err)
	}
	if len(unsynced) != 1 || unsynced[0].ID != second.ID {
		t.Fatalf("expected only the second order unsynced, got %d", len(unsynced))
	}
}

func TestMemoryRepositoryVersionConflict(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	o := models.NewOrder("T1", "S1", "TERM1")
	if err := repo.Create(ctx, o); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	stale, _ := repo.Get(ctx, o.ID)
	fresh, _ := repo.Get(ctx, o.ID)

	if err := repo.Update(ctx, fresh); err != nil {
		t.Fatalf("first update failed: %v", err)
	}
	if err := repo.Update(ctx, stale); !errors.Is(err, models.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}
