package repository

import (
	"context"
	"sort"
	"sync"

	"bloodbank/internal/models"
)

// MemoryOrderRepository keeps orders in process memory. Stored values are
// copied on the way in and out so callers never share state with the store.
type MemoryOrderRepository struct {
	mu         sync.RWMutex
	byID       map[string]*models.PurchaseOrder
	byTracking map[string]string
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		byID:       make(map[string]*models.PurchaseOrder),
		byTracking: make(map[string]string),
	}
}

var _ OrderRepository = (*MemoryOrderRepository)(nil)

func (r *MemoryOrderRepository) Create(_ context.Context, o *models.PurchaseOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[o.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := r.byTracking[o.TrackingNumber]; ok {
		return ErrDuplicate
	}
	r.byID[o.ID] = o.Clone()
	r.byTracking[o.TrackingNumber] = o.ID
	return nil
}

func (r *MemoryOrderRepository) GetByID(_ context.Context, id string) (*models.PurchaseOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (r *MemoryOrderRepository) GetByTracking(_ context.Context, trackingNumber string) (*models.PurchaseOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byTracking[trackingNumber]
	if !ok {
		return nil, ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *MemoryOrderRepository) TrackingExists(_ context.Context, trackingNumber string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byTracking[trackingNumber]
	return ok, nil
}

func (r *MemoryOrderRepository) Update(_ context.Context, o *models.PurchaseOrder, expected models.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[o.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expected {
		return ErrStatusConflict
	}
	next := cur.Clone()
	next.Status = o.Status
	next.AdminNotes = o.AdminNotes
	next.UpdatedAt = o.UpdatedAt
	next.PickupDetails = nil
	if o.PickupDetails != nil {
		pd := *o.PickupDetails
		next.PickupDetails = &pd
	}
	r.byID[o.ID] = next
	return nil
}

func (r *MemoryOrderRepository) List(_ context.Context, f OrderFilter) ([]*models.PurchaseOrder, error) {
	r.mu.RLock()
	matched := make([]*models.PurchaseOrder, 0)
	for _, o := range r.byID {
		if f.match(o) {
			matched = append(matched, o.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	offset := max(f.Offset, 0)
	if offset >= len(matched) {
		return []*models.PurchaseOrder{}, nil
	}
	end := min(offset+f.limit(), len(matched))
	return matched[offset:end], nil
}
