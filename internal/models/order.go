package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
)

// ItemStatus represents the lifecycle state of an order item
type ItemStatus string

const (
	ItemStatusPending       ItemStatus = "PENDING"
	ItemStatusSentToKitchen ItemStatus = "SENT_TO_KITCHEN"
)

// taxRate is the fixed sales tax applied to every order subtotal.
var taxRate = decimal.New(8, -2) // 0.08

// ItemModification is a named price adjustment on an order item
type ItemModification struct {
	ModificationID  string          `json:"modification_id" db:"modification_id"`
	Name            string          `json:"name" db:"name"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment" db:"price_adjustment"`
}

// OrderItem is owned by its Order; it never outlives the parent
type OrderItem struct {
	ID              string             `json:"id" db:"id"`
	MenuItemID      string             `json:"menu_item_id" db:"menu_item_id"`
	Name            string             `json:"name" db:"name"`
	Quantity        int                `json:"quantity" db:"quantity"`
	UnitPrice       decimal.Decimal    `json:"unit_price" db:"unit_price"`
	TotalPrice      decimal.Decimal    `json:"total_price" db:"total_price"`
	Modifications   []ItemModification `json:"modifications"`
	Status          ItemStatus         `json:"status" db:"status"`
	CourseType      string             `json:"course_type" db:"course_type"`
	SentToKitchenAt *time.Time         `json:"sent_to_kitchen_at,omitempty" db:"sent_to_kitchen_at"`
}

// RecalculateTotal re-derives totalPrice from unit price, modifications
// and quantity. Called on every mutation of either.
func (i *OrderItem) RecalculateTotal() {
	adj := decimal.Zero
	for _, m := range i.Modifications {
		adj = adj.Add(m.PriceAdjustment)
	}
	i.TotalPrice = i.UnitPrice.Add(adj).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is the aggregate root for the ordering context
type Order struct {
	ID         string          `json:"id" db:"id"`
	TableID    string          `json:"table_id" db:"table_id"`
	ServerID   string          `json:"server_id" db:"server_id"`
	TerminalID string          `json:"terminal_id" db:"terminal_id"`
	Status     OrderStatus     `json:"status" db:"status"`
	Items      []OrderItem     `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal" db:"subtotal"`
	Tax        decimal.Decimal `json:"tax" db:"tax"`
	Total      decimal.Decimal `json:"total" db:"total"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
	Synced     bool            `json:"synced" db:"synced"`
	SyncedAt   *time.Time      `json:"synced_at,omitempty" db:"synced_at"`
	Version    int64           `json:"version" db:"version"`
}

// NewOrder creates a DRAFT order with zero totals
func NewOrder(tableID, serverID, terminalID string) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:         uuid.NewString(),
		TableID:    tableID,
		ServerID:   serverID,
		TerminalID: terminalID,
		Status:     OrderStatusDraft,
		Subtotal:   decimal.Zero,
		Tax:        decimal.Zero,
		Total:      decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
}

// ItemSpec is the caller-supplied description of an item to add
type ItemSpec struct {
	MenuItemID    string             `json:"menu_item_id"`
	Name          string             `json:"name"`
	Quantity      int                `json:"quantity"`
	UnitPrice     decimal.Decimal    `json:"unit_price"`
	Modifications []ItemModification `json:"modifications,omitempty"`
	CourseType    string             `json:"course_type,omitempty"`
}

// Validate rejects malformed item specs before any mutation
func (s ItemSpec) Validate() error {
	if s.MenuItemID == "" {
		return ValidationError{Field: "menu_item_id", Message: "menu item id is required"}
	}
	if s.Name == "" {
		return ValidationError{Field: "name", Message: "item name is required"}
	}
	if s.Quantity <= 0 {
		return ValidationError{Field: "quantity", Message: "quantity must be greater than 0"}
	}
	if !s.UnitPrice.IsPositive() {
		return ValidationError{Field: "unit_price", Message: "unit price must be greater than 0"}
	}
	return nil
}

// AddItem appends an item from the spec and recomputes the order totals
func (o *Order) AddItem(spec ItemSpec) (*OrderItem, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	item := OrderItem{
		ID:            uuid.NewString(),
		MenuItemID:    spec.MenuItemID,
		Name:          spec.Name,
		Quantity:      spec.Quantity,
		UnitPrice:     spec.UnitPrice,
		Modifications: spec.Modifications,
		Status:        ItemStatusPending,
		CourseType:    spec.CourseType,
	}
	item.RecalculateTotal()

	o.Items = append(o.Items, item)
	o.Recalculate()
	o.UpdatedAt = time.Now().UTC()

	return &o.Items[len(o.Items)-1], nil
}

// Recalculate re-derives subtotal, tax and total from the item list.
// Invariant: total = subtotal + tax, tax = subtotal * 8%.
func (o *Order) Recalculate() {
	subtotal := decimal.Zero
	for _, item := range o.Items {
		subtotal = subtotal.Add(item.TotalPrice)
	}
	o.Subtotal = subtotal
	o.Tax = subtotal.Mul(taxRate).Round(2)
	o.Total = o.Subtotal.Add(o.Tax)
}

// Submit moves the order to SUBMITTED and marks every item as sent to
// the kitchen. The transition is terminal for the ordering context.
func (o *Order) Submit() {
	now := time.Now().UTC()
	o.Status = OrderStatusSubmitted
	o.UpdatedAt = now
	for i := range o.Items {
		o.Items[i].Status = ItemStatusSentToKitchen
		sentAt := now
		o.Items[i].SentToKitchenAt = &sentAt
	}
}

// MarkSynced records that an external reconciliation process has seen
// this order.
func (o *Order) MarkSynced() {
	now := time.Now().UTC()
	o.Synced = true
	o.SyncedAt = &now
	o.UpdatedAt = now
}
