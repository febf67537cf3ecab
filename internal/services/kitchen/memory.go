package kitchen

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"restaurant-pos/internal/models"
)

// MemoryRepository keeps tickets in process memory with deep copies on
// every read and write. Used by tests and by the memory storage mode.
type MemoryRepository struct {
	mu      sync.RWMutex
	tickets map[string]*models.KitchenTicket
	byOrder map[string]string
}

// NewMemoryRepository creates an empty in-memory ticket repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tickets: make(map[string]*models.KitchenTicket),
		byOrder: make(map[string]string),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, t *models.KitchenTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byOrder[t.OrderID]; ok {
		return models.ErrDuplicate
	}
	r.tickets[t.ID] = cloneTicket(t)
	r.byOrder[t.OrderID] = t.ID
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.KitchenTicket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tickets[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneTicket(t), nil
}

func (r *MemoryRepository) GetByOrderID(ctx context.Context, orderID string) (*models.KitchenTicket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneTicket(r.tickets[id]), nil
}

func (r *MemoryRepository) Update(ctx context.Context, t *models.KitchenTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tickets[t.ID]; !ok {
		return models.ErrNotFound
	}
	r.tickets[t.ID] = cloneTicket(t)
	return nil
}

func (r *MemoryRepository) ListActive(ctx context.Context) ([]*models.KitchenTicket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*models.KitchenTicket
	for _, t := range r.tickets {
		if t.Active() {
			active = append(active, cloneTicket(t))
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority > active[j].Priority
		}
		return active[i].ReceivedAt.Before(active[j].ReceivedAt)
	})
	return active, nil
}

func cloneTicket(t *models.KitchenTicket) *models.KitchenTicket {
	data, err := json.Marshal(t)
	if err != nil {
		panic("ticket clone: " + err.Error())
	}
	var clone models.KitchenTicket
	if err := json.Unmarshal(data, &clone); err != nil {
		panic("ticket clone: " + err.Error())
	}
	return &clone
}
