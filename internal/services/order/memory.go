package order

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"restaurant-pos/internal/models"
)

// MemoryRepository keeps orders in process memory. Every read and write
// goes through a deep copy so callers can never alias the stored state.
// Used by tests and by the memory storage mode.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
}

// NewMemoryRepository creates an empty in-memory order repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[string]*models.Order)}
}

func (r *MemoryRepository) Create(ctx context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[o.ID]; ok {
		return models.ErrDuplicate
	}
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryRepository) Update(ctx context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[o.ID]
	if !ok {
		return models.ErrNotFound
	}
	if stored.Version != o.Version {
		return models.ErrVersionConflict
	}

	next := cloneOrder(o)
	next.Version++
	r.orders[o.ID] = next
	o.Version++
	return nil
}

func (r *MemoryRepository) ListUnsynced(ctx context.Context) ([]*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orders []*models.Order
	for _, o := range r.orders {
		if !o.Synced {
			orders = append(orders, cloneOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func cloneOrder(o *models.Order) *models.Order {
	data, err := json.Marshal(o)
	if err != nil {
		panic("order clone: " + err.Error())
	}
	var clone models.Order
	if err := json.Unmarshal(data, &clone); err != nil {
		panic("order clone: " + err.Error())
	}
	return &clone
}
