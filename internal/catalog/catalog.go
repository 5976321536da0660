package catalog

import (
	"context"
	"errors"

	"bloodbank/internal/models"
)

var ErrSourceNotFound = errors.New("source not found")

// Catalog is the read side of the source store. Implementations return sources
// in a stable catalog order; ranking relies on it for tie-breaking.
type Catalog interface {
	Sources(ctx context.Context) ([]models.Source, error)
}

// Reserver atomically takes units out of a source's inventory. It returns
// *apperr.Error of kind insufficient_stock when fewer units are left.
// Release puts previously reserved units back.
type Reserver interface {
	Reserve(ctx context.Context, sourceID string, bloodType models.BloodType, units int) error
	Release(ctx context.Context, sourceID string, bloodType models.BloodType, units int) error
}

// Store is a catalog that can also reserve stock.
type Store interface {
	Catalog
	Reserver
}
