package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TicketStatus represents the lifecycle state of a kitchen ticket
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "NEW"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusReady      TicketStatus = "READY"
)

// TicketItemStatus represents the lifecycle state of a ticket item
type TicketItemStatus string

const (
	TicketItemPending   TicketItemStatus = "PENDING"
	TicketItemPreparing TicketItemStatus = "PREPARING"
	TicketItemReady     TicketItemStatus = "READY"
)

// TicketPriority orders tickets on the kitchen display, highest first
type TicketPriority int

const (
	PriorityNormal TicketPriority = 1
	PriorityRush   TicketPriority = 2
)

// Station identifiers for ticket routing
const (
	StationGrill = "GRILL_STATION"
	StationHot   = "HOT_STATION"
)

var grillKeywords = []string{"steak", "burger"}

// TicketItem references an order item by id; the kitchen context never
// owns the order item itself.
type TicketItem struct {
	ID            string           `json:"id" db:"id"`
	OrderItemID   string           `json:"order_item_id" db:"order_item_id"`
	ItemName      string           `json:"item_name" db:"item_name"`
	Quantity      int              `json:"quantity" db:"quantity"`
	Modifications []string         `json:"modifications"`
	Status        TicketItemStatus `json:"status" db:"status"`
	CourseType    string           `json:"course_type" db:"course_type"`
	StartedAt     *time.Time       `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
}

// KitchenTicket is the aggregate root for the kitchen context. Exactly
// one ticket exists per submitted order.
type KitchenTicket struct {
	ID               string         `json:"id" db:"id"`
	OrderID          string         `json:"order_id" db:"order_id"`
	TableID          string         `json:"table_id" db:"table_id"`
	Status           TicketStatus   `json:"status" db:"status"`
	Priority         TicketPriority `json:"priority" db:"priority"`
	StationID        string         `json:"station_id" db:"station_id"`
	Items            []TicketItem   `json:"items"`
	ReceivedAt       time.Time      `json:"received_at" db:"received_at"`
	StartedAt        *time.Time     `json:"started_at,omitempty" db:"started_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	EstimatedMinutes int            `json:"estimated_minutes" db:"estimated_minutes"`
}

// NewTicketItem builds a ticket item referencing the originating order item
func NewTicketItem(orderItemID, itemName string, quantity int, modifications []string, courseType string) TicketItem {
	return TicketItem{
		ID:            uuid.NewString(),
		OrderItemID:   orderItemID,
		ItemName:      itemName,
		Quantity:      quantity,
		Modifications: modifications,
		Status:        TicketItemPending,
		CourseType:    courseType,
	}
}

// NewKitchenTicket derives a NEW ticket from a submitted order's items,
// routing it to a station and estimating its preparation time.
func NewKitchenTicket(orderID, tableID string, items []TicketItem) *KitchenTicket {
	return &KitchenTicket{
		ID:               uuid.NewString(),
		OrderID:          orderID,
		TableID:          tableID,
		Status:           TicketStatusNew,
		Priority:         PriorityNormal,
		StationID:        DetermineStation(items),
		Items:            items,
		ReceivedAt:       time.Now().UTC(),
		EstimatedMinutes: EstimateMinutes(len(items)),
	}
}

// DetermineStation routes grill-class items to the grill station and
// everything else to the default hot station.
func DetermineStation(items []TicketItem) string {
	for _, item := range items {
		name := strings.ToLower(item.ItemName)
		for _, kw := range grillKeywords {
			if strings.Contains(name, kw) {
				return StationGrill
			}
		}
	}
	return StationHot
}

// EstimateMinutes is a deliberately simple heuristic, linear in item count
func EstimateMinutes(itemCount int) int {
	return itemCount*5 + 10
}

// Start moves the ticket to IN_PROGRESS and every item to PREPARING
func (t *KitchenTicket) Start() {
	now := time.Now().UTC()
	t.Status = TicketStatusInProgress
	t.StartedAt = &now
	for i := range t.Items {
		t.Items[i].Status = TicketItemPreparing
		startedAt := now
		t.Items[i].StartedAt = &startedAt
	}
}

// MarkItemReady sets one item READY. If that was the last non-READY
// item the ticket itself transitions to READY and completed reports
// true; the caller must hold the ticket's lock so the fan-in check is
// atomic with the item update.
func (t *KitchenTicket) MarkItemReady(itemID string) (completed bool, err error) {
	now := time.Now().UTC()

	var found *TicketItem
	for i := range t.Items {
		if t.Items[i].ID == itemID {
			found = &t.Items[i]
			break
		}
	}
	if found == nil {
		return false, ErrNotFound
	}

	found.Status = TicketItemReady
	found.CompletedAt = &now

	for _, item := range t.Items {
		if item.Status != TicketItemReady {
			return false, nil
		}
	}

	t.Status = TicketStatusReady
	t.CompletedAt = &now
	return true, nil
}

// OrderItemIDs returns the originating order item ids, in ticket order
func (t *KitchenTicket) OrderItemIDs() []string {
	ids := make([]string, 0, len(t.Items))
	for _, item := range t.Items {
		ids = append(ids, item.OrderItemID)
	}
	return ids
}

// Active reports whether the ticket still needs kitchen attention
func (t *KitchenTicket) Active() bool {
	return t.Status == TicketStatusNew || t.Status == TicketStatusInProgress
}
