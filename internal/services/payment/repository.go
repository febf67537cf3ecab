package payment

import (
	"context"
	"time"

	"restaurant-pos/internal/models"
)

// PaymentRepository persists payment aggregates. Create returns
// models.ErrDuplicate when the idempotency key is already taken; that
// unique constraint is the durable backstop behind the service's
// in-process idempotency lock.
type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	Get(ctx context.Context, id string) (*models.Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error)
	Update(ctx context.Context, p *models.Payment) error
}

// QueueRepository persists the offline payment retry queue. ListDue
// returns PENDING entries whose next retry time has passed, oldest
// queued first; entries claimed as PROCESSING stay invisible until
// released.
type QueueRepository interface {
	Create(ctx context.Context, e *models.OfflinePaymentQueueEntry) error
	Update(ctx context.Context, e *models.OfflinePaymentQueueEntry) error
	ListDue(ctx context.Context, now time.Time) ([]*models.OfflinePaymentQueueEntry, error)
}
