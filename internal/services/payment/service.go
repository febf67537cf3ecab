package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"restaurant-pos/internal/events"
	"restaurant-pos/internal/locking"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
)

// declineReason is used when the gateway declines without giving one
const declineReason = "Card declined"

// ErrNotRefundable is returned when a refund targets a payment that
// was never captured.
var ErrNotRefundable = errors.New("only captured payments can be refunded")

// ProcessPaymentRequest is the payload for capturing a payment
type ProcessPaymentRequest struct {
	OrderID        string               `json:"order_id"`
	TerminalID     string               `json:"terminal_id"`
	Amount         decimal.Decimal      `json:"amount"`
	TipAmount      decimal.Decimal      `json:"tip_amount"`
	Method         models.PaymentMethod `json:"method"`
	IdempotencyKey string               `json:"idempotency_key"`
}

// Service owns the payment context. ProcessPayment is idempotent by
// key: the per-key mutex serializes concurrent same-key callers inside
// the process and the repository's unique constraint covers everything
// else. Events go out only after the payment row is durable.
type Service struct {
	payments       PaymentRepository
	queue          QueueRepository
	gateway        Gateway
	bus            events.Bus
	locks          *locking.KeyedMutex
	logger         *logger.Logger
	gatewayTimeout time.Duration
}

// NewService creates the payment service
func NewService(payments PaymentRepository, queue QueueRepository, gateway Gateway, bus events.Bus, gatewayTimeout time.Duration, log *logger.Logger) *Service {
	return &Service{
		payments:       payments,
		queue:          queue,
		gateway:        gateway,
		bus:            bus,
		locks:          locking.NewKeyedMutex(),
		logger:         log,
		gatewayTimeout: gatewayTimeout,
	}
}

// ProcessPayment captures a payment in three steps: return the existing
// payment if the idempotency key was seen before, persist the PENDING
// intent, then call the gateway. A decline is terminal; a transport
// failure leaves the payment PENDING and queues it for background
// retry.
func (s *Service) ProcessPayment(ctx context.Context, req ProcessPaymentRequest, requestID string) (*models.Payment, error) {
	if req.IdempotencyKey == "" {
		return nil, models.ValidationError{Field: "idempotency_key", Message: "idempotency key is required"}
	}

	lockKey := "key:" + req.IdempotencyKey
	s.locks.Lock(lockKey)
	defer s.locks.Unlock(lockKey)

	existing, err := s.payments.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err == nil {
		s.logger.Debug("payment_duplicate", "Idempotency key already processed", requestID, map[string]interface{}{
			"payment_id":      existing.ID,
			"idempotency_key": req.IdempotencyKey,
		})
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}

	p, err := models.NewPayment(req.OrderID, req.TerminalID, req.Amount, req.TipAmount, req.Method, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if err := s.payments.Create(ctx, p); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return s.payments.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		}
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	result, err := s.authorize(ctx, p)
	if err != nil {
		// gateway unreachable: keep the payment PENDING and hand it
		// to the offline retry queue
		s.logger.Error("gateway_unreachable", "Gateway transport failure, queueing payment", requestID, err, map[string]interface{}{
			"payment_id": p.ID,
			"order_id":   p.OrderID,
		})
		if qerr := s.enqueue(ctx, p); qerr != nil {
			return nil, qerr
		}
		return p, nil
	}

	if !result.Success {
		p.Decline()
		if err := s.payments.Update(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to save declined payment: %w", err)
		}

		reason := result.Reason
		if reason == "" {
			reason = declineReason
		}
		s.logger.Info("payment_declined", "Gateway declined payment", requestID, map[string]interface{}{
			"payment_id": p.ID,
			"order_id":   p.OrderID,
			"reason":     reason,
		})
		s.publish(ctx, events.TopicPaymentEvents, p.ID, events.PaymentFailed{
			PaymentID: p.ID,
			OrderID:   p.OrderID,
			Reason:    reason,
			Timestamp: time.Now().UTC(),
		}, requestID)
		return p, nil
	}

	p.Capture(result.TransactionID, result.AuthorizationCode)
	if err := s.payments.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save captured payment: %w", err)
	}

	s.logger.Info("payment_captured", "Payment captured", requestID, map[string]interface{}{
		"payment_id":     p.ID,
		"order_id":       p.OrderID,
		"transaction_id": p.TransactionID,
		"total":          p.TotalAmount.String(),
	})
	s.publishProcessed(ctx, p, requestID)

	return p, nil
}

// GetPayment loads one payment
func (s *Service) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.payments.Get(ctx, paymentID)
}

// ProcessOfflineQueue retries due queue entries oldest first. A payment
// captured elsewhere in the meantime just completes its entry; a failed
// attempt goes back to PENDING with the next delay from the backoff
// table. Returns the number of payments captured this sweep.
func (s *Service) ProcessOfflineQueue(ctx context.Context, requestID string) (int, error) {
	entries, err := s.queue.ListDue(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to list due queue entries: %w", err)
	}

	captured := 0
	for _, entry := range entries {
		ok, err := s.retryEntry(ctx, entry, requestID)
		if err != nil {
			s.logger.Error("payment_retry_failed", "Queue entry retry errored", requestID, err, map[string]interface{}{
				"entry_id":   entry.ID,
				"payment_id": entry.PaymentID,
			})
			continue
		}
		if ok {
			captured++
		}
	}
	return captured, nil
}

func (s *Service) retryEntry(ctx context.Context, entry *models.OfflinePaymentQueueEntry, requestID string) (bool, error) {
	p, err := s.payments.Get(ctx, entry.PaymentID)
	if err != nil {
		return false, fmt.Errorf("failed to load queued payment: %w", err)
	}

	lockKey := "key:" + p.IdempotencyKey
	s.locks.Lock(lockKey)
	defer s.locks.Unlock(lockKey)

	if p.Status == models.PaymentStatusCaptured {
		entry.Complete()
		return false, s.queue.Update(ctx, entry)
	}

	entry.Claim()
	if err := s.queue.Update(ctx, entry); err != nil {
		return false, fmt.Errorf("failed to claim queue entry: %w", err)
	}

	result, err := s.authorize(ctx, p)
	if err != nil || !result.Success {
		// still unreachable, or declined on the retry path: both are
		// recoverable here, back off and try again later
		entry.Release()
		if uerr := s.queue.Update(ctx, entry); uerr != nil {
			return false, fmt.Errorf("failed to release queue entry: %w", uerr)
		}
		s.logger.Info("payment_retry_deferred", "Retry did not capture, backing off", requestID, map[string]interface{}{
			"payment_id":    p.ID,
			"retry_count":   entry.RetryCount,
			"next_retry_at": entry.NextRetryAt.Format(time.RFC3339),
		})
		return false, nil
	}

	p.RetryCount = entry.RetryCount
	p.Capture(result.TransactionID, result.AuthorizationCode)
	if err := s.payments.Update(ctx, p); err != nil {
		entry.Release()
		s.queue.Update(ctx, entry)
		return false, fmt.Errorf("failed to save captured payment: %w", err)
	}

	entry.Complete()
	if err := s.queue.Update(ctx, entry); err != nil {
		return false, fmt.Errorf("failed to complete queue entry: %w", err)
	}

	s.logger.Info("payment_captured", "Queued payment captured on retry", requestID, map[string]interface{}{
		"payment_id":     p.ID,
		"order_id":       p.OrderID,
		"transaction_id": p.TransactionID,
		"retry_count":    entry.RetryCount,
	})
	s.publishProcessed(ctx, p, requestID)
	return true, nil
}

// Refund reverses a captured payment through the gateway and announces
// it on payment-events. The payment record itself stays CAPTURED.
func (s *Service) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, requestID string) (*models.Payment, error) {
	s.locks.Lock(paymentID)
	defer s.locks.Unlock(paymentID)

	p, err := s.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentStatusCaptured {
		return nil, ErrNotRefundable
	}
	if !amount.IsPositive() {
		return nil, models.ValidationError{Field: "amount", Message: "refund amount must be greater than 0"}
	}
	if amount.GreaterThan(p.TotalAmount) {
		return nil, models.ValidationError{Field: "amount", Message: "refund amount exceeds payment total"}
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	if err := s.gateway.Refund(gctx, p.TransactionID, amount); err != nil {
		return nil, fmt.Errorf("gateway refund failed: %w", err)
	}

	s.logger.Info("payment_refunded", "Payment refunded", requestID, map[string]interface{}{
		"payment_id": p.ID,
		"order_id":   p.OrderID,
		"amount":     amount.String(),
	})
	s.publish(ctx, events.TopicPaymentEvents, p.ID, events.PaymentRefunded{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	}, requestID)

	return p, nil
}

// authorize calls the gateway under the configured timeout; a timeout
// is indistinguishable from any other transport failure.
func (s *Service) authorize(ctx context.Context, p *models.Payment) (*GatewayResult, error) {
	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	return s.gateway.Authorize(gctx, GatewayRequest{
		IdempotencyKey: p.IdempotencyKey,
		OrderID:        p.OrderID,
		TerminalID:     p.TerminalID,
		Amount:         p.TotalAmount,
		Method:         p.Method,
	})
}

func (s *Service) enqueue(ctx context.Context, p *models.Payment) error {
	entry, err := models.NewQueueEntry(p)
	if err != nil {
		return err
	}
	if err := s.queue.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to enqueue payment: %w", err)
	}
	return nil
}

func (s *Service) publishProcessed(ctx context.Context, p *models.Payment, requestID string) {
	evt := events.PaymentProcessed{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		Amount:        p.Amount,
		TipAmount:     p.TipAmount,
		PaymentMethod: string(p.Method),
		TransactionID: p.TransactionID,
		Timestamp:     time.Now().UTC(),
	}
	s.publish(ctx, events.TopicPaymentEvents, p.ID, evt, requestID)
	s.publish(ctx, events.TopicOrderEvents, p.OrderID, evt, requestID)
}

func (s *Service) publish(ctx context.Context, topic, key string, evt events.Event, requestID string) {
	if err := s.bus.Publish(ctx, topic, key, evt); err != nil {
		s.logger.Error("event_publish_failed", "Failed to publish "+evt.EventType(), requestID, err, map[string]interface{}{
			"topic": topic,
			"key":   key,
		})
	}
}
