package order

import (
	"context"

	"restaurant-pos/internal/models"
)

// Repository persists order aggregates. Update enforces optimistic
// versioning and returns models.ErrVersionConflict when the stored
// version differs from the one the caller loaded.
type Repository interface {
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id string) (*models.Order, error)
	Update(ctx context.Context, o *models.Order) error
	ListUnsynced(ctx context.Context) ([]*models.Order, error)
}
