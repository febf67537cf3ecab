package payment

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"restaurant-pos/internal/models"
)

// MemoryPaymentRepository keeps payments in process memory with deep
// copies on every read and write. Used by tests and by the memory
// storage mode.
type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*models.Payment
	byKey    map[string]string
}

// NewMemoryPaymentRepository creates an empty in-memory payment repository
func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		payments: make(map[string]*models.Payment),
		byKey:    make(map[string]string),
	}
}

func (r *MemoryPaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[p.IdempotencyKey]; ok {
		return models.ErrDuplicate
	}
	r.payments[p.ID] = clonePayment(p)
	r.byKey[p.IdempotencyKey] = p.ID
	return nil
}

func (r *MemoryPaymentRepository) Get(ctx context.Context, id string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clonePayment(p), nil
}

func (r *MemoryPaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clonePayment(r.payments[id]), nil
}

func (r *MemoryPaymentRepository) Update(ctx context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.payments[p.ID]
	if !ok {
		return models.ErrNotFound
	}
	if stored.Version != p.Version {
		return models.ErrVersionConflict
	}

	next := clonePayment(p)
	next.Version++
	r.payments[p.ID] = next
	p.Version++
	return nil
}

func clonePayment(p *models.Payment) *models.Payment {
	data, err := json.Marshal(p)
	if err != nil {
		panic("payment clone: " + err.Error())
	}
	var clone models.Payment
	if err := json.Unmarshal(data, &clone); err != nil {
		panic("payment clone: " + err.Error())
	}
	return &clone
}

// MemoryQueueRepository keeps offline queue entries in process memory
type MemoryQueueRepository struct {
	mu      sync.RWMutex
	entries map[string]*models.OfflinePaymentQueueEntry
}

// NewMemoryQueueRepository creates an empty in-memory queue repository
func NewMemoryQueueRepository() *MemoryQueueRepository {
	return &MemoryQueueRepository{entries: make(map[string]*models.OfflinePaymentQueueEntry)}
}

func (r *MemoryQueueRepository) Create(ctx context.Context, e *models.OfflinePaymentQueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[e.ID]; ok {
		return models.ErrDuplicate
	}
	r.entries[e.ID] = cloneEntry(e)
	return nil
}

func (r *MemoryQueueRepository) Update(ctx context.Context, e *models.OfflinePaymentQueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[e.ID]; !ok {
		return models.ErrNotFound
	}
	r.entries[e.ID] = cloneEntry(e)
	return nil
}

func (r *MemoryQueueRepository) ListDue(ctx context.Context, now time.Time) ([]*models.OfflinePaymentQueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []*models.OfflinePaymentQueueEntry
	for _, e := range r.entries {
		if e.Status == models.QueuePending && !e.NextRetryAt.After(now) {
			due = append(due, cloneEntry(e))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].QueuedAt.Before(due[j].QueuedAt)
	})
	return due, nil
}

func cloneEntry(e *models.OfflinePaymentQueueEntry) *models.OfflinePaymentQueueEntry {
	data, err := json.Marshal(e)
	if err != nil {
		panic("queue entry clone: " + err.Error())
	}
	var clone models.OfflinePaymentQueueEntry
	if err := json.Unmarshal(data, &clone); err != nil {
		panic("queue entry clone: " + err.Error())
	}
	return &clone
}
