package order

import (
	"context"
	"errors"
	"fmt"

	"restaurant-pos/internal/events"
	"restaurant-pos/internal/locking"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
)

// ErrOrderNotEditable is returned when a mutation targets an order that
// has already been submitted.
var ErrOrderNotEditable = errors.New("order has already been submitted")

// CreateOrderRequest is the payload for opening a new draft order
type CreateOrderRequest struct {
	TableID    string `json:"table_id"`
	ServerID   string `json:"server_id"`
	TerminalID string `json:"terminal_id"`
}

// Validate rejects malformed create requests
func (r CreateOrderRequest) Validate() error {
	if r.TableID == "" {
		return models.ValidationError{Field: "table_id", Message: "table id is required"}
	}
	if r.ServerID == "" {
		return models.ValidationError{Field: "server_id", Message: "server id is required"}
	}
	return nil
}

// Service owns the ordering context. All mutations take a per-order
// mutex around load-mutate-save, and events are published only after
// the save commits.
type Service struct {
	repo   Repository
	bus    events.Bus
	locks  *locking.KeyedMutex
	logger *logger.Logger
}

// NewService creates the order service
func NewService(repo Repository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		bus:    bus,
		locks:  locking.NewKeyedMutex(),
		logger: log,
	}
}

// CreateOrder opens a DRAFT order and announces it on order-events
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest, requestID string) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	o := models.NewOrder(req.TableID, req.ServerID, req.TerminalID)
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.Info("order_created", "Order created", requestID, map[string]interface{}{
		"order_id": o.ID,
		"table_id": o.TableID,
	})

	s.publish(ctx, events.TopicOrderEvents, o.ID, events.OrderCreated{
		OrderID:    o.ID,
		TableID:    o.TableID,
		ServerID:   o.ServerID,
		TerminalID: o.TerminalID,
		Timestamp:  o.CreatedAt,
	}, requestID)

	return o, nil
}

// GetOrder loads one order
func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.repo.Get(ctx, orderID)
}

// AddItem appends an item to a draft order, recomputes the totals and
// announces the item on order-events.
func (s *Service) AddItem(ctx context.Context, orderID string, spec models.ItemSpec, requestID string) (*models.Order, error) {
	s.locks.Lock(orderID)
	defer s.locks.Unlock(orderID)

	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != models.OrderStatusDraft {
		return nil, ErrOrderNotEditable
	}

	item, err := o.AddItem(spec)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	s.logger.Debug("order_item_added", "Item added to order", requestID, map[string]interface{}{
		"order_id": o.ID,
		"item_id":  item.ID,
		"name":     item.Name,
		"total":    o.Total.String(),
	})

	s.publish(ctx, events.TopicOrderEvents, o.ID, events.OrderItemAdded{
		OrderID:       o.ID,
		ItemID:        item.ID,
		MenuItemID:    item.MenuItemID,
		Name:          item.Name,
		Quantity:      item.Quantity,
		UnitPrice:     item.UnitPrice,
		Modifications: modificationDTOs(item.Modifications),
		Timestamp:     o.UpdatedAt,
	}, requestID)

	return o, nil
}

// SubmitOrder moves a draft order to SUBMITTED and hands it to the
// kitchen by publishing OrderSubmitted on both order-events and
// kitchen-events with the items denormalized into the payload.
func (s *Service) SubmitOrder(ctx context.Context, orderID, requestID string) (*models.Order, error) {
	s.locks.Lock(orderID)
	defer s.locks.Unlock(orderID)

	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != models.OrderStatusDraft {
		return nil, ErrOrderNotEditable
	}
	if len(o.Items) == 0 {
		return nil, models.ValidationError{Field: "items", Message: "cannot submit an order with no items"}
	}

	o.Submit()
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	s.logger.Info("order_submitted", "Order submitted to kitchen", requestID, map[string]interface{}{
		"order_id":   o.ID,
		"item_count": len(o.Items),
		"total":      o.Total.String(),
	})

	evt := events.OrderSubmitted{
		OrderID:   o.ID,
		TableID:   o.TableID,
		Total:     o.Total,
		Items:     orderItemDTOs(o.Items),
		Timestamp: o.UpdatedAt,
	}
	s.publish(ctx, events.TopicOrderEvents, o.ID, evt, requestID)
	s.publish(ctx, events.TopicKitchenEvents, o.ID, evt, requestID)

	return o, nil
}

// ListUnsynced returns the orders an external reconciliation process
// has not yet seen, oldest first.
func (s *Service) ListUnsynced(ctx context.Context) ([]*models.Order, error) {
	return s.repo.ListUnsynced(ctx)
}

// MarkSynced records that the reconciliation process has seen an order
func (s *Service) MarkSynced(ctx context.Context, orderID, requestID string) error {
	s.locks.Lock(orderID)
	defer s.locks.Unlock(orderID)

	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Synced {
		return nil
	}

	o.MarkSynced()
	if err := s.repo.Update(ctx, o); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}

	s.logger.Debug("order_synced", "Order marked as synced", requestID, map[string]interface{}{
		"order_id": o.ID,
	})
	return nil
}

// publish sends an event after the aggregate is durable. A publish
// failure is logged and swallowed: the save already committed and the
// caller's operation succeeded.
func (s *Service) publish(ctx context.Context, topic, key string, evt events.Event, requestID string) {
	if err := s.bus.Publish(ctx, topic, key, evt); err != nil {
		s.logger.Error("event_publish_failed", "Failed to publish "+evt.EventType(), requestID, err, map[string]interface{}{
			"topic": topic,
			"key":   key,
		})
	}
}

func modificationDTOs(mods []models.ItemModification) []events.ModificationDTO {
	dtos := make([]events.ModificationDTO, 0, len(mods))
	for _, m := range mods {
		dtos = append(dtos, events.ModificationDTO{
			ModificationID:  m.ModificationID,
			Name:            m.Name,
			PriceAdjustment: m.PriceAdjustment,
		})
	}
	return dtos
}

func orderItemDTOs(items []models.OrderItem) []events.OrderItemDTO {
	dtos := make([]events.OrderItemDTO, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, events.OrderItemDTO{
			ItemID:        item.ID,
			MenuItemID:    item.MenuItemID,
			Name:          item.Name,
			Quantity:      item.Quantity,
			CourseType:    item.CourseType,
			Modifications: modificationDTOs(item.Modifications),
		})
	}
	return dtos
}
