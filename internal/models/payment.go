package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the lifecycle state of a payment.
// CAPTURED and DECLINED are terminal; PENDING persists while the
// payment waits in the offline retry queue.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusCaptured PaymentStatus = "CAPTURED"
	PaymentStatusDeclined PaymentStatus = "DECLINED"
)

// PaymentMethod identifies how a payment is tendered
type PaymentMethod string

const (
	MethodCard   PaymentMethod = "CARD"
	MethodCash   PaymentMethod = "CASH"
	MethodMobile PaymentMethod = "MOBILE"
)

// QueueStatus represents the state of an offline payment queue entry
type QueueStatus string

const (
	QueuePending    QueueStatus = "PENDING"
	QueueProcessing QueueStatus = "PROCESSING"
	QueueCompleted  QueueStatus = "COMPLETED"
)

// retryBackoffMinutes is indexed by retryCount and clamped to the last
// entry once the count runs past the table.
var retryBackoffMinutes = []int{5, 15, 30, 60, 120}

// RetryDelay returns the backoff delay for the given retry count
func RetryDelay(retryCount int) time.Duration {
	idx := retryCount
	if idx < 0 {
		idx = 0
	}
	if idx >= len(retryBackoffMinutes) {
		idx = len(retryBackoffMinutes) - 1
	}
	return time.Duration(retryBackoffMinutes[idx]) * time.Minute
}

// PaymentSplit is an owned child recording one customer's share of a
// split tender.
type PaymentSplit struct {
	ID            string          `json:"id" db:"id"`
	CustomerID    string          `json:"customer_id" db:"customer_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Method        PaymentMethod   `json:"method" db:"method"`
	TransactionID string          `json:"transaction_id,omitempty" db:"transaction_id"`
}

// Payment is the aggregate root for the payment context. Exactly one
// payment exists per idempotency key.
type Payment struct {
	ID                string          `json:"id" db:"id"`
	OrderID           string          `json:"order_id" db:"order_id"`
	TerminalID        string          `json:"terminal_id" db:"terminal_id"`
	Status            PaymentStatus   `json:"status" db:"status"`
	Method            PaymentMethod   `json:"method" db:"method"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	TipAmount         decimal.Decimal `json:"tip_amount" db:"tip_amount"`
	TotalAmount       decimal.Decimal `json:"total_amount" db:"total_amount"`
	Splits            []PaymentSplit  `json:"splits,omitempty"`
	TransactionID     string          `json:"transaction_id,omitempty" db:"transaction_id"`
	AuthorizationCode string          `json:"authorization_code,omitempty" db:"authorization_code"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
	Synced            bool            `json:"synced" db:"synced"`
	SyncedAt          *time.Time      `json:"synced_at,omitempty" db:"synced_at"`
	RetryCount        int             `json:"retry_count" db:"retry_count"`
	IdempotencyKey    string          `json:"idempotency_key" db:"idempotency_key"`
	Version           int64           `json:"version" db:"version"`
}

// NewPayment creates a PENDING payment, the durable intent persisted
// before any gateway call.
func NewPayment(orderID, terminalID string, amount, tipAmount decimal.Decimal, method PaymentMethod, idempotencyKey string) (*Payment, error) {
	if orderID == "" {
		return nil, ValidationError{Field: "order_id", Message: "order id is required"}
	}
	if idempotencyKey == "" {
		return nil, ValidationError{Field: "idempotency_key", Message: "idempotency key is required"}
	}
	if !amount.IsPositive() {
		return nil, ValidationError{Field: "amount", Message: "amount must be greater than 0"}
	}
	if tipAmount.IsNegative() {
		return nil, ValidationError{Field: "tip_amount", Message: "tip amount must not be negative"}
	}
	switch method {
	case MethodCard, MethodCash, MethodMobile:
	default:
		return nil, ValidationError{Field: "method", Message: fmt.Sprintf("unknown payment method %q", method)}
	}

	return &Payment{
		ID:             uuid.NewString(),
		OrderID:        orderID,
		TerminalID:     terminalID,
		Status:         PaymentStatusPending,
		Method:         method,
		Amount:         amount,
		TipAmount:      tipAmount,
		TotalAmount:    amount.Add(tipAmount),
		CreatedAt:      time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
		Version:        1,
	}, nil
}

// Capture records a successful gateway authorization. Terminal.
func (p *Payment) Capture(transactionID, authorizationCode string) {
	now := time.Now().UTC()
	p.Status = PaymentStatusCaptured
	p.TransactionID = transactionID
	p.AuthorizationCode = authorizationCode
	p.ProcessedAt = &now
	p.Synced = true
	p.SyncedAt = &now
}

// Decline records a gateway decline. Terminal; declines are not retried.
func (p *Payment) Decline() {
	now := time.Now().UTC()
	p.Status = PaymentStatusDeclined
	p.ProcessedAt = &now
}

// AddSplit appends an owned split record
func (p *Payment) AddSplit(customerID string, amount decimal.Decimal, method PaymentMethod) {
	p.Splits = append(p.Splits, PaymentSplit{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Amount:     amount,
		Method:     method,
	})
}

// OfflinePaymentQueueEntry holds a payment that could not be captured
// synchronously, retried later with backoff.
type OfflinePaymentQueueEntry struct {
	ID          string      `json:"id" db:"id"`
	PaymentID   string      `json:"payment_id" db:"payment_id"`
	OrderID     string      `json:"order_id" db:"order_id"`
	PaymentData []byte      `json:"payment_data" db:"payment_data"`
	QueuedAt    time.Time   `json:"queued_at" db:"queued_at"`
	RetryCount  int         `json:"retry_count" db:"retry_count"`
	LastRetryAt *time.Time  `json:"last_retry_at,omitempty" db:"last_retry_at"`
	NextRetryAt time.Time   `json:"next_retry_at" db:"next_retry_at"`
	Status      QueueStatus `json:"status" db:"status"`
}

// NewQueueEntry snapshots a payment into a PENDING queue entry with the
// first retry due after the initial backoff delay.
func NewQueueEntry(p *Payment) (*OfflinePaymentQueueEntry, error) {
	snapshot, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payment snapshot: %w", err)
	}

	now := time.Now().UTC()
	return &OfflinePaymentQueueEntry{
		ID:          uuid.NewString(),
		PaymentID:   p.ID,
		OrderID:     p.OrderID,
		PaymentData: snapshot,
		QueuedAt:    now,
		RetryCount:  0,
		NextRetryAt: now.Add(RetryDelay(0)),
		Status:      QueuePending,
	}, nil
}

// Claim marks the entry as being processed by a retry sweep. Claimed
// entries are not visible to a concurrent scan until released.
func (e *OfflinePaymentQueueEntry) Claim() {
	now := time.Now().UTC()
	e.Status = QueueProcessing
	e.RetryCount++
	e.LastRetryAt = &now
}

// Release returns the entry to PENDING with the next retry scheduled
// from the backoff table.
func (e *OfflinePaymentQueueEntry) Release() {
	e.Status = QueuePending
	e.NextRetryAt = time.Now().UTC().Add(RetryDelay(e.RetryCount))
}

// Complete removes the entry from further processing
func (e *OfflinePaymentQueueEntry) Complete() {
	e.Status = QueueCompleted
}
