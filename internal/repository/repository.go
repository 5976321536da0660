package repository

import (
	"context"
	"errors"

	"bloodbank/internal/models"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("duplicate key")
	ErrStatusConflict = errors.New("order status changed concurrently")
)

type OrderFilter struct {
	PurchasedBy string
	Status      models.OrderStatus
	BloodType   models.BloodType
	Urgency     models.Urgency
	Limit       int
	Offset      int
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

func (f OrderFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultLimit
	case f.Limit > maxLimit:
		return maxLimit
	default:
		return f.Limit
	}
}

func (f OrderFilter) match(o *models.PurchaseOrder) bool {
	if f.PurchasedBy != "" && o.PurchasedBy != f.PurchasedBy {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.BloodType != "" && o.BloodType != f.BloodType {
		return false
	}
	if f.Urgency != "" && o.Urgency != f.Urgency {
		return false
	}
	return true
}

// OrderRepository persists purchase orders. Each call is one atomic
// single-row operation.
type OrderRepository interface {
	Create(ctx context.Context, o *models.PurchaseOrder) error
	GetByID(ctx context.Context, id string) (*models.PurchaseOrder, error)
	GetByTracking(ctx context.Context, trackingNumber string) (*models.PurchaseOrder, error)
	TrackingExists(ctx context.Context, trackingNumber string) (bool, error)
	// Update writes the mutable workflow fields (status, notes, pickup, updatedAt)
	// only if the stored status still equals expected; otherwise ErrStatusConflict.
	Update(ctx context.Context, o *models.PurchaseOrder, expected models.OrderStatus) error
	List(ctx context.Context, f OrderFilter) ([]*models.PurchaseOrder, error)
}
