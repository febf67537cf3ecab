package kitchen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restaurant-pos/internal/events"
	"restaurant-pos/internal/locking"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
)

// ErrTicketNotStartable is returned when StartTicket targets a ticket
// that is not in the NEW state.
var ErrTicketNotStartable = errors.New("ticket is not in a startable state")

// Service owns the kitchen context. It reacts to OrderSubmitted events
// and exposes the ticket workflow to the kitchen display. The fan-in
// decision for "all items ready" happens under the per-ticket mutex so
// exactly one MarkItemReady call observes the completion.
type Service struct {
	repo   Repository
	bus    events.Bus
	locks  *locking.KeyedMutex
	logger *logger.Logger
}

// NewService creates the kitchen service
func NewService(repo Repository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		bus:    bus,
		locks:  locking.NewKeyedMutex(),
		logger: log,
	}
}

// Register subscribes the service to the topics it consumes
func (s *Service) Register(bus events.Bus) {
	bus.Subscribe(events.TopicKitchenEvents, s.HandleEvent)
}

// HandleEvent dispatches bus deliveries. Events the kitchen does not
// consume are acked without action.
func (s *Service) HandleEvent(ctx context.Context, key string, evt events.Event) error {
	switch e := evt.(type) {
	case events.OrderSubmitted:
		return s.handleOrderSubmitted(ctx, e)
	case *events.OrderSubmitted:
		return s.handleOrderSubmitted(ctx, *e)
	default:
		return nil
	}
}

// handleOrderSubmitted creates the ticket for a submitted order. The
// bus is at-least-once, so a redelivered event finds the existing
// ticket and does nothing.
func (s *Service) handleOrderSubmitted(ctx context.Context, evt events.OrderSubmitted) error {
	requestID := logger.GenerateRequestID()

	lockKey := "order:" + evt.OrderID
	s.locks.Lock(lockKey)
	defer s.locks.Unlock(lockKey)

	if _, err := s.repo.GetByOrderID(ctx, evt.OrderID); err == nil {
		s.logger.Debug("ticket_duplicate", "Ticket already exists for order", requestID, map[string]interface{}{
			"order_id": evt.OrderID,
		})
		return nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check existing ticket: %w", err)
	}

	items := make([]models.TicketItem, 0, len(evt.Items))
	for _, dto := range evt.Items {
		mods := make([]string, 0, len(dto.Modifications))
		for _, m := range dto.Modifications {
			mods = append(mods, m.Name)
		}
		items = append(items, models.NewTicketItem(dto.ItemID, dto.Name, dto.Quantity, mods, dto.CourseType))
	}

	t := models.NewKitchenTicket(evt.OrderID, evt.TableID, items)
	if err := s.repo.Create(ctx, t); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil
		}
		return fmt.Errorf("failed to create ticket: %w", err)
	}

	s.logger.Info("ticket_created", "Kitchen ticket created", requestID, map[string]interface{}{
		"ticket_id":  t.ID,
		"order_id":   t.OrderID,
		"station_id": t.StationID,
		"estimate":   t.EstimatedMinutes,
	})

	s.publish(ctx, events.TopicKitchenEvents, t.ID, events.TicketCreated{
		TicketID:  t.ID,
		OrderID:   t.OrderID,
		TableID:   t.TableID,
		StationID: t.StationID,
		Timestamp: t.ReceivedAt,
	}, requestID)

	return nil
}

// GetTicket loads one ticket
func (s *Service) GetTicket(ctx context.Context, ticketID string) (*models.KitchenTicket, error) {
	return s.repo.Get(ctx, ticketID)
}

// StartTicket moves a NEW ticket to IN_PROGRESS
func (s *Service) StartTicket(ctx context.Context, ticketID, requestID string) (*models.KitchenTicket, error) {
	s.locks.Lock(ticketID)
	defer s.locks.Unlock(ticketID)

	t, err := s.repo.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TicketStatusNew {
		return nil, ErrTicketNotStartable
	}

	t.Start()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to save ticket: %w", err)
	}

	s.logger.Info("ticket_started", "Ticket preparation started", requestID, map[string]interface{}{
		"ticket_id": t.ID,
		"order_id":  t.OrderID,
	})
	return t, nil
}

// MarkItemReady sets one ticket item READY. If that completes the
// ticket, exactly one TicketCompleted goes out on kitchen-events and
// order-events.
func (s *Service) MarkItemReady(ctx context.Context, ticketID, itemID, requestID string) (*models.KitchenTicket, error) {
	s.locks.Lock(ticketID)
	defer s.locks.Unlock(ticketID)

	t, err := s.repo.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	completed, err := t.MarkItemReady(itemID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to save ticket: %w", err)
	}

	now := time.Now().UTC()
	itemName := ""
	for _, item := range t.Items {
		if item.ID == itemID {
			itemName = item.ItemName
			break
		}
	}

	s.publish(ctx, events.TopicKitchenEvents, t.ID, events.ItemReady{
		TicketID:  t.ID,
		OrderID:   t.OrderID,
		ItemID:    itemID,
		ItemName:  itemName,
		Timestamp: now,
	}, requestID)

	if completed {
		s.logger.Info("ticket_completed", "All ticket items ready", requestID, map[string]interface{}{
			"ticket_id": t.ID,
			"order_id":  t.OrderID,
		})

		evt := events.TicketCompleted{
			TicketID:  t.ID,
			OrderID:   t.OrderID,
			TableID:   t.TableID,
			ItemIDs:   t.OrderItemIDs(),
			Timestamp: now,
		}
		s.publish(ctx, events.TopicKitchenEvents, t.ID, evt, requestID)
		s.publish(ctx, events.TopicOrderEvents, t.OrderID, evt, requestID)
	}

	return t, nil
}

// ListActive returns tickets still needing attention, rush first, then
// oldest first.
func (s *Service) ListActive(ctx context.Context) ([]*models.KitchenTicket, error) {
	return s.repo.ListActive(ctx)
}

func (s *Service) publish(ctx context.Context, topic, key string, evt events.Event, requestID string) {
	if err := s.bus.Publish(ctx, topic, key, evt); err != nil {
		s.logger.Error("event_publish_failed", "Failed to publish "+evt.EventType(), requestID, err, map[string]interface{}{
			"topic": topic,
			"key":   key,
		})
	}
}
