package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloodbank/internal/models"
	"bloodbank/internal/repository"
)

func newOrder(id, tracking, owner string, created time.Time) *models.PurchaseOrder {
	return &models.PurchaseOrder{
		ID:             id,
		TrackingNumber: tracking,
		SourceID:       "hosp-dmch",
		BloodType:      models.BloodOPos,
		Units:          1,
		Urgency:        models.UrgencyNormal,
		Status:         models.StatusPending,
		PurchasedBy:    owner,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func TestMemoryCreateGet(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryOrderRepository()
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	o := newOrder("o-1", "BBAAAA1111", "u-1", now)
	require.NoError(t, repo.Create(ctx, o))

	got, err := repo.GetByID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.PurchasedBy)

	got.Status = models.StatusCancelled
	again, err := repo.GetByID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, again.Status)

	byTracking, err := repo.GetByTracking(ctx, "BBAAAA1111")
	require.NoError(t, err)
	assert.Equal(t, "o-1", byTracking.ID)

	exists, err := repo.TrackingExists(ctx, "BBAAAA1111")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetByTracking(ctx, "BBZZZZ0000")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMemoryCreateDuplicateTracking(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryOrderRepository()
	now := time.Now()

	require.NoError(t, repo.Create(ctx, newOrder("o-1", "BBDUP00001", "u", now)))
	err := repo.Create(ctx, newOrder("o-2", "BBDUP00001", "u", now))
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestMemoryUpdateCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryOrderRepository()
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, newOrder("o-1", "BB00000001", "u", now)))

	o, err := repo.GetByID(ctx, "o-1")
	require.NoError(t, err)
	o.UpdateState(models.StatusVerified, now.Add(time.Minute))
	o.AdminNotes = "docs checked"
	o.Units = 99
	require.NoError(t, repo.Update(ctx, o, models.StatusPending))

	stored, err := repo.GetByID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, stored.Status)
	assert.Equal(t, "docs checked", stored.AdminNotes)
	assert.Equal(t, 1, stored.Units, "only workflow fields are writable")

	o.UpdateState(models.StatusCancelled, now.Add(2*time.Minute))
	err = repo.Update(ctx, o, models.StatusPending)
	assert.ErrorIs(t, err, repository.ErrStatusConflict)

	o.ID = "missing"
	assert.ErrorIs(t, repo.Update(ctx, o, models.StatusPending), repository.ErrNotFound)
}

func TestMemoryUpdateSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryOrderRepository()
	require.NoError(t, repo.Create(ctx, newOrder("o-1", "BB00000001", "u", time.Now())))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := repo.GetByID(ctx, "o-1")
			if err != nil {
				return
			}
			o.UpdateState(models.StatusVerified, time.Now())
			if repo.Update(ctx, o, models.StatusPending) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryListFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryOrderRepository()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		owner := "u-1"
		if i%2 == 1 {
			owner = "u-2"
		}
		o := newOrder(fmt.Sprintf("o-%d", i), fmt.Sprintf("BB0000000%d", i), owner, base.Add(time.Duration(i)*time.Hour))
		if i == 4 {
			o.Urgency = models.UrgencyEmergency
		}
		require.NoError(t, repo.Create(ctx, o))
	}

	mine, err := repo.List(ctx, repository.OrderFilter{PurchasedBy: "u-1"})
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, []string{"o-4", "o-2", "o-0"}, []string{mine[0].ID, mine[1].ID, mine[2].ID})

	urgent, err := repo.List(ctx, repository.OrderFilter{Urgency: models.UrgencyEmergency})
	require.NoError(t, err)
	require.Len(t, urgent, 1)
	assert.Equal(t, "o-4", urgent[0].ID)

	page, err := repo.List(ctx, repository.OrderFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "o-1", page[0].ID)

	empty, err := repo.List(ctx, repository.OrderFilter{Offset: 100})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestMemoryTaskRepository(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTaskRepository()

	require.NoError(t, repo.CreateTask(ctx, "evt-1", "o-1", []byte(`{"a":1}`)))
	require.NoError(t, repo.CreateTask(ctx, "evt-1", "o-1", []byte(`{"a":1}`)))
	require.NoError(t, repo.CreateTask(ctx, "evt-2", "o-2", []byte(`{"a":2}`)))

	tasks, err := repo.GetPendingTasks(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "evt-1", tasks[0].EventID)

	require.NoError(t, repo.MarkTaskProcessing(ctx, tasks[0].ID))
	require.NoError(t, repo.UpdateTaskFailure(ctx, tasks[1].ID, 3, repository.TaskStatusNoAttemptsLeft, time.Now()))

	pending, err := repo.GetPendingTasks(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, repo.DeleteTask(ctx, tasks[0].ID))
	assert.Len(t, repo.Snapshot(), 1)
}
