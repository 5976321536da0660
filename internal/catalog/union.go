package catalog

import (
	"context"
	"errors"
	"fmt"

	"bloodbank/internal/models"
)

// UnionCatalog merges the built-in seed directory with the persisted store.
// A persisted source replaces a seed source with the same id in place; new
// persisted sources follow the seed ones. Callers cannot tell which backing
// store an entry came from.
type UnionCatalog struct {
	seed      *MemoryCatalog
	persisted Store
}

func NewUnionCatalog(seed *MemoryCatalog, persisted Store) *UnionCatalog {
	return &UnionCatalog{seed: seed, persisted: persisted}
}

var _ Store = (*UnionCatalog)(nil)

func (u *UnionCatalog) Sources(ctx context.Context) ([]models.Source, error) {
	var base []models.Source
	if u.seed != nil {
		var err error
		if base, err = u.seed.Sources(ctx); err != nil {
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
	}
	if u.persisted == nil {
		return base, nil
	}
	stored, err := u.persisted.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("persisted catalog: %w", err)
	}

	pos := make(map[string]int, len(base))
	for i, s := range base {
		pos[s.ID] = i
	}
	for _, s := range stored {
		if i, ok := pos[s.ID]; ok {
			base[i] = s
			continue
		}
		pos[s.ID] = len(base)
		base = append(base, s)
	}
	return base, nil
}

func (u *UnionCatalog) Reserve(ctx context.Context, sourceID string, bloodType models.BloodType, units int) error {
	if u.persisted != nil {
		err := u.persisted.Reserve(ctx, sourceID, bloodType, units)
		if !errors.Is(err, ErrSourceNotFound) {
			return err
		}
	}
	if u.seed != nil && u.seed.Has(sourceID) {
		return u.seed.Reserve(ctx, sourceID, bloodType, units)
	}
	return ErrSourceNotFound
}

// Release returns units to whichever store would have served the reservation.
func (u *UnionCatalog) Release(ctx context.Context, sourceID string, bloodType models.BloodType, units int) error {
	if u.persisted != nil {
		err := u.persisted.Release(ctx, sourceID, bloodType, units)
		if !errors.Is(err, ErrSourceNotFound) {
			return err
		}
	}
	if u.seed != nil && u.seed.Has(sourceID) {
		return u.seed.Release(ctx, sourceID, bloodType, units)
	}
	return ErrSourceNotFound
}
