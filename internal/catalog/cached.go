package catalog

import (
	"context"
	"log/slog"
	"time"

	"bloodbank/internal/cache"
	"bloodbank/internal/models"
)

// CachedCatalog serves searches from a periodically refreshed snapshot.
// Reservations always go to the backing store and invalidate the snapshot.
type CachedCatalog struct {
	backing Store
	cache   *cache.SnapshotCache[models.Source]
	log     *slog.Logger
}

func NewCachedCatalog(backing Store, log *slog.Logger) *CachedCatalog {
	return &CachedCatalog{
		backing: backing,
		cache:   cache.NewSnapshotCache[models.Source](backing.Sources),
		log:     log,
	}
}

var _ Store = (*CachedCatalog)(nil)

func (c *CachedCatalog) Sources(ctx context.Context) ([]models.Source, error) {
	if items, ok := c.cache.Get(); ok {
		return cloneAll(items), nil
	}
	if err := c.cache.Refresh(ctx); err != nil {
		return nil, err
	}
	items, _ := c.cache.Get()
	return cloneAll(items), nil
}

func (c *CachedCatalog) Reserve(ctx context.Context, sourceID string, bloodType models.BloodType, units int) error {
	err := c.backing.Reserve(ctx, sourceID, bloodType, units)
	if err == nil {
		c.cache.Invalidate()
	}
	return err
}

func (c *CachedCatalog) Release(ctx context.Context, sourceID string, bloodType models.BloodType, units int) error {
	err := c.backing.Release(ctx, sourceID, bloodType, units)
	if err == nil {
		c.cache.Invalidate()
	}
	return err
}

func (c *CachedCatalog) Run(ctx context.Context, interval time.Duration) {
	c.cache.StartAutoRefresh(ctx, interval, func(err error) {
		c.log.Warn("catalog refresh failed", "loaded_at", c.cache.LoadedAt(), "err", err)
	})
}

func cloneAll(in []models.Source) []models.Source {
	out := make([]models.Source, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}
