package orderRepo

import (
	"context"
	"sync"
	"time"

	"tripnotify/models"
)

// MemoryOrderRepo is an in-process order store.
type MemoryOrderRepo struct {
	mu     sync.RWMutex
	orders map[string]models.Order
}

func NewMemoryOrderRepo(orders ...models.Order) *MemoryOrderRepo {
	r := &MemoryOrderRepo{orders: make(map[string]models.Order)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

// Put inserts or replaces an order.
func (r *MemoryOrderRepo) Put(o models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
}

func (r *MemoryOrderRepo) GetOrder(_ context.Context, id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &o, nil
}

func (r *MemoryOrderRepo) UpdateStatus(_ context.Context, id string, from []models.OrderStatus, to models.OrderStatus, transactionID string, now time.Time) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	allowed := false
	for _, s := range from {
		if o.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = now
	if transactionID != "" {
		o.PaymentTransactionID = transactionID
	}
	r.orders[id] = o
	return &o, nil
}
