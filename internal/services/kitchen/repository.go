package kitchen

import (
	"context"

	"restaurant-pos/internal/models"
)

// Repository persists kitchen tickets. Create returns
// models.ErrDuplicate when a ticket already exists for the order id,
// which is what makes OrderSubmitted redeliveries safe.
type Repository interface {
	Create(ctx context.Context, t *models.KitchenTicket) error
	Get(ctx context.Context, id string) (*models.KitchenTicket, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.KitchenTicket, error)
	Update(ctx context.Context, t *models.KitchenTicket) error
	ListActive(ctx context.Context) ([]*models.KitchenTicket, error)
}
