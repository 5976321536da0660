package catalog

import (
	"context"
	"sync"

	"bloodbank/internal/apperr"
	"bloodbank/internal/models"
)

// MemoryCatalog backs the built-in seed dataset and tests.
type MemoryCatalog struct {
	mu      sync.RWMutex
	order   []string
	sources map[string]models.Source
}

func NewMemoryCatalog(sources ...models.Source) *MemoryCatalog {
	c := &MemoryCatalog{sources: make(map[string]models.Source, len(sources))}
	for _, s := range sources {
		c.Put(s)
	}
	return c
}

var _ Store = (*MemoryCatalog)(nil)

// Put inserts or replaces a source, keeping the original catalog position.
func (c *MemoryCatalog) Put(s models.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sources[s.ID]; !ok {
		c.order = append(c.order, s.ID)
	}
	c.sources[s.ID] = s.Clone()
}

func (c *MemoryCatalog) Sources(_ context.Context) ([]models.Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Source, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.sources[id].Clone())
	}
	return out, nil
}

func (c *MemoryCatalog) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sources[id]
	return ok
}

func (c *MemoryCatalog) Reserve(_ context.Context, sourceID string, bloodType models.BloodType, units int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sources[sourceID]
	if !ok {
		return ErrSourceNotFound
	}
	left := s.UnitsOf(bloodType)
	if left < units {
		return apperr.InsufficientStock("%s has %d units of %s left, %d requested", s.Name, left, bloodType, units)
	}
	if s.Inventory == nil {
		s.Inventory = make(map[models.BloodType]int)
	}
	s.Inventory[bloodType] = left - units
	c.sources[sourceID] = s
	return nil
}

func (c *MemoryCatalog) Release(_ context.Context, sourceID string, bloodType models.BloodType, units int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sources[sourceID]
	if !ok {
		return ErrSourceNotFound
	}
	if s.Inventory == nil {
		s.Inventory = make(map[models.BloodType]int)
	}
	s.Inventory[bloodType] += units
	c.sources[sourceID] = s
	return nil
}
