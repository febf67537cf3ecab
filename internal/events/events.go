package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Logical topics. The partition key for every publish is the aggregate
// id most relevant to the topic's consumers, which is what gives
// per-entity ordering on the bus.
const (
	TopicOrderEvents   = "order-events"
	TopicKitchenEvents = "kitchen-events"
	TopicPaymentEvents = "payment-events"
)

// Event is any cross-context message carried by the bus
type Event interface {
	EventType() string
}

// ModificationDTO mirrors an item modification on the wire
type ModificationDTO struct {
	ModificationID  string          `json:"modificationId"`
	Name            string          `json:"name"`
	PriceAdjustment decimal.Decimal `json:"priceAdjustment"`
}

// OrderItemDTO is the denormalized item carried by OrderSubmitted so
// the kitchen never needs a follow-up query.
type OrderItemDTO struct {
	ItemID        string            `json:"itemId"`
	MenuItemID    string            `json:"menuItemId"`
	Name          string            `json:"name"`
	Quantity      int               `json:"quantity"`
	CourseType    string            `json:"courseType,omitempty"`
	Modifications []ModificationDTO `json:"modifications"`
}

type OrderCreated struct {
	OrderID    string    `json:"orderId"`
	TableID    string    `json:"tableId"`
	ServerID   string    `json:"serverId"`
	TerminalID string    `json:"terminalId"`
	Timestamp  time.Time `json:"timestamp"`
}

func (OrderCreated) EventType() string { return "OrderCreated" }

type OrderItemAdded struct {
	OrderID       string            `json:"orderId"`
	ItemID        string            `json:"itemId"`
	MenuItemID    string            `json:"menuItemId"`
	Name          string            `json:"name"`
	Quantity      int               `json:"quantity"`
	UnitPrice     decimal.Decimal   `json:"unitPrice"`
	Modifications []ModificationDTO `json:"modifications"`
	Timestamp     time.Time         `json:"timestamp"`
}

func (OrderItemAdded) EventType() string { return "OrderItemAdded" }

type OrderSubmitted struct {
	OrderID   string          `json:"orderId"`
	TableID   string          `json:"tableId"`
	Total     decimal.Decimal `json:"total"`
	Items     []OrderItemDTO  `json:"items"`
	Timestamp time.Time       `json:"timestamp"`
}

func (OrderSubmitted) EventType() string { return "OrderSubmitted" }

type TicketCreated struct {
	TicketID  string    `json:"ticketId"`
	OrderID   string    `json:"orderId"`
	TableID   string    `json:"tableId"`
	StationID string    `json:"stationId"`
	Timestamp time.Time `json:"timestamp"`
}

func (TicketCreated) EventType() string { return "TicketCreated" }

type ItemReady struct {
	TicketID  string    `json:"ticketId"`
	OrderID   string    `json:"orderId"`
	ItemID    string    `json:"itemId"`
	ItemName  string    `json:"itemName"`
	Timestamp time.Time `json:"timestamp"`
}

func (ItemReady) EventType() string { return "ItemReady" }

type TicketCompleted struct {
	TicketID  string    `json:"ticketId"`
	OrderID   string    `json:"orderId"`
	TableID   string    `json:"tableId"`
	ItemIDs   []string  `json:"itemIds"`
	Timestamp time.Time `json:"timestamp"`
}

func (TicketCompleted) EventType() string { return "TicketCompleted" }

type PaymentProcessed struct {
	PaymentID     string          `json:"paymentId"`
	OrderID       string          `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	TipAmount     decimal.Decimal `json:"tipAmount"`
	PaymentMethod string          `json:"paymentMethod"`
	TransactionID string          `json:"transactionId"`
	Timestamp     time.Time       `json:"timestamp"`
}

func (PaymentProcessed) EventType() string { return "PaymentProcessed" }

type PaymentFailed struct {
	PaymentID string    `json:"paymentId"`
	OrderID   string    `json:"orderId"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func (PaymentFailed) EventType() string { return "PaymentFailed" }

type PaymentRefunded struct {
	PaymentID string          `json:"paymentId"`
	OrderID   string          `json:"orderId"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

func (PaymentRefunded) EventType() string { return "PaymentRefunded" }

// Envelope wraps an event for transport over a broker
type Envelope struct {
	EventType string          `json:"eventType"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
}

// Wrap serializes an event into its transport envelope
func Wrap(key string, evt Event) (Envelope, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", evt.EventType(), err)
	}
	return Envelope{
		EventType: evt.EventType(),
		Key:       key,
		Payload:   payload,
	}, nil
}

// Decode rebuilds the typed event from an envelope
func (e Envelope) Decode() (Event, error) {
	var evt Event
	switch e.EventType {
	case "OrderCreated":
		evt = &OrderCreated{}
	case "OrderItemAdded":
		evt = &OrderItemAdded{}
	case "OrderSubmitted":
		evt = &OrderSubmitted{}
	case "TicketCreated":
		evt = &TicketCreated{}
	case "ItemReady":
		evt = &ItemReady{}
	case "TicketCompleted":
		evt = &TicketCompleted{}
	case "PaymentProcessed":
		evt = &PaymentProcessed{}
	case "PaymentFailed":
		evt = &PaymentFailed{}
	case "PaymentRefunded":
		evt = &PaymentRefunded{}
	default:
		return nil, fmt.Errorf("unknown event type %q", e.EventType)
	}

	if err := json.Unmarshal(e.Payload, evt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", e.EventType, err)
	}
	return evt, nil
}
