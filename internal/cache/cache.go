package cache

import (
	"context"
	"sync"
	"time"
)

type Loader[T any] func(ctx context.Context) ([]T, error)

// SnapshotCache keeps the last successfully loaded list. Readers never see a
// partially refreshed snapshot.
type SnapshotCache[T any] struct {
	mu       sync.RWMutex
	items    []T
	loadedAt time.Time
	load     Loader[T]
}

func NewSnapshotCache[T any](load Loader[T]) *SnapshotCache[T] {
	return &SnapshotCache[T]{load: load}
}

func (c *SnapshotCache[T]) Refresh(ctx context.Context) error {
	items, err := c.load(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items = items
	c.loadedAt = time.Now().UTC()
	c.mu.Unlock()
	return nil
}

// Get returns the current snapshot and whether one was ever loaded.
func (c *SnapshotCache[T]) Get() ([]T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items, !c.loadedAt.IsZero()
}

func (c *SnapshotCache[T]) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

func (c *SnapshotCache[T]) Invalidate() {
	c.mu.Lock()
	c.items = nil
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

// StartAutoRefresh blocks until ctx is done. A failed refresh keeps the previous
// snapshot and is reported through onErr.
func (c *SnapshotCache[T]) StartAutoRefresh(ctx context.Context, interval time.Duration, onErr func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil && onErr != nil {
				onErr(err)
			}
		case <-ctx.Done():
			return
		}
	}
}
