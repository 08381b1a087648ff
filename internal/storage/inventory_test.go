package storage_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pbazhenov/lockerdesk/internal/db"
	"github.com/pbazhenov/lockerdesk/internal/repository"
	"github.com/pbazhenov/lockerdesk/internal/repository/memory"
	"github.com/pbazhenov/lockerdesk/internal/storage"
)

type inventoryFixture struct {
	lockers *memory.LockerStore
	history *memory.HistoryStore
	service *storage.InventoryService
}

func newInventoryFixture(t *testing.T, zoneSpec string) *inventoryFixture {
	t.Helper()

	f := &inventoryFixture{
		lockers: memory.NewLockerStore(),
		history: memory.NewHistoryStore(),
	}
	f.service = storage.NewInventoryService(f.lockers, f.history, f.lockers, zap.NewNop()).
		WithNowFunc(func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) })

	catalog, err := storage.ParseZones(zoneSpec)
	require.NoError(t, err)
	require.NoError(t, f.service.Init(context.Background(), catalog))
	return f
}

func staff() storage.Actor {
	return storage.Actor{ID: "actor-s", Name: "Sam", Role: storage.RoleGuest}
}

func TestInventoryService_Init(t *testing.T) {
	f := newInventoryFixture(t, "A:3,B:2")
	ctx := context.Background()

	lockers, err := f.service.List(ctx, "", nil)
	require.NoError(t, err)
	require.Len(t, lockers, 5)
	assert.Equal(t, "A01", lockers[0].Number)
	assert.Equal(t, "A03", lockers[2].Number)
	assert.Equal(t, "B02", lockers[4].Number)

	// Re-running the seed must not reset anything.
	_, err = f.service.Update(ctx, "A01", storage.UpdateFields{Occupied: true, OccupantName: "Ivanov"}, nil, staff())
	require.NoError(t, err)

	catalog, err := storage.ParseZones("A:3,B:2")
	require.NoError(t, err)
	require.NoError(t, f.service.Init(ctx, catalog))

	locker, err := f.service.Get(ctx, "A01")
	require.NoError(t, err)
	assert.True(t, locker.Occupied)
	assert.Equal(t, "Ivanov", locker.OccupantName)
}

func TestInventoryService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("guarded write advances version by one", func(t *testing.T) {
		f := newInventoryFixture(t, "A:2")

		expected := int64(0)
		updated, err := f.service.Update(ctx, "A01",
			storage.UpdateFields{Occupied: true, OccupantName: "Ivanov"}, &expected, staff())
		require.NoError(t, err)
		assert.Equal(t, int64(1), updated.Version)
		assert.Equal(t, "Sam", updated.UpdatedBy)
	})

	t.Run("stale version never mutates", func(t *testing.T) {
		f := newInventoryFixture(t, "A:2")

		expected := int64(0)
		_, err := f.service.Update(ctx, "A01",
			storage.UpdateFields{Occupied: true, OccupantName: "Ivanov"}, &expected, staff())
		require.NoError(t, err)

		stale := int64(0)
		_, err = f.service.Update(ctx, "A01",
			storage.UpdateFields{Occupied: false}, &stale, staff())

		var conflict *repository.ErrVersionConflict
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, int64(1), conflict.CurrentVersion)

		locker, err := f.service.Get(ctx, "A01")
		require.NoError(t, err)
		assert.True(t, locker.Occupied)
		assert.Equal(t, "Ivanov", locker.OccupantName)
		assert.Equal(t, int64(1), locker.Version)
	})

	t.Run("nil expected version skips the guard but still bumps", func(t *testing.T) {
		f := newInventoryFixture(t, "A:2")

		updated, err := f.service.Update(ctx, "A01",
			storage.UpdateFields{Occupied: true, OccupantName: "Ivanov"}, nil, staff())
		require.NoError(t, err)
		assert.Equal(t, int64(1), updated.Version)

		updated, err = f.service.Update(ctx, "A01",
			storage.UpdateFields{Occupied: false}, nil, staff())
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)
	})

	t.Run("unknown locker", func(t *testing.T) {
		f := newInventoryFixture(t, "A:2")

		_, err := f.service.Update(ctx, "Z99", storage.UpdateFields{}, nil, staff())
		assert.ErrorIs(t, err, repository.ErrObjectNotFound)
	})

	t.Run("records a history event", func(t *testing.T) {
		f := newInventoryFixture(t, "A:2")

		_, err := f.service.Update(ctx, "A01",
			storage.UpdateFields{Occupied: true, OccupantName: "Ivanov"}, nil, staff())
		require.NoError(t, err)

		events, err := f.service.History(ctx, "A01")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, repository.ActionUpdate, events[0].Action)
		assert.Equal(t, "Sam", events[0].ActorName)
	})
}

func TestInventoryService_ConcurrentGuardedUpdates(t *testing.T) {
	// Everyone read version 0; exactly one write may land.
	f := newInventoryFixture(t, "A:1")
	ctx := context.Background()

	const writers = 32
	var (
		wg        sync.WaitGroup
		successes int64
		mu        sync.Mutex
	)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			expected := int64(0)
			_, err := f.service.Update(ctx, "A01",
				storage.UpdateFields{Occupied: true, OccupantName: fmt.Sprintf("writer-%d", n)},
				&expected, staff())
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes)

	locker, err := f.service.Get(ctx, "A01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), locker.Version)
}

func TestInventoryService_Import(t *testing.T) {
	ctx := context.Background()

	t.Run("merge counts unknown numbers without failing the run", func(t *testing.T) {
		f := newInventoryFixture(t, "A:50")

		rows := make([]storage.ImportRow, 0, 50)
		for i := 1; i <= 50; i++ {
			number := fmt.Sprintf("A%02d", i)
			if i == 37 {
				number = "X99"
			}
			rows = append(rows, storage.ImportRow{Number: number, OccupantName: fmt.Sprintf("p-%d", i)})
		}

		report, err := f.service.Import(ctx, rows, storage.ImportModeMerge, staff())
		require.NoError(t, err)
		assert.Equal(t, 49, report.Imported)
		assert.Equal(t, 1, report.NotFound)
		assert.Equal(t, 0, report.Errors)
		assert.False(t, report.RolledBack)
	})

	t.Run("merge skips occupied lockers", func(t *testing.T) {
		f := newInventoryFixture(t, "A:3")

		_, err := f.service.Update(ctx, "A02",
			storage.UpdateFields{Occupied: true, OccupantName: "Ivanov"}, nil, staff())
		require.NoError(t, err)

		report, err := f.service.Import(ctx, []storage.ImportRow{
			{Number: "A01", OccupantName: "Petrov"},
			{Number: "A02", OccupantName: "Sidorov"},
		}, storage.ImportModeMerge, staff())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Imported)
		assert.Equal(t, 1, report.Skipped)

		locker, err := f.service.Get(ctx, "A02")
		require.NoError(t, err)
		assert.Equal(t, "Ivanov", locker.OccupantName)
	})

	t.Run("replace vacates everything first", func(t *testing.T) {
		f := newInventoryFixture(t, "A:3")

		_, err := f.service.Update(ctx, "A02",
			storage.UpdateFields{Occupied: true, OccupantName: "Ivanov"}, nil, staff())
		require.NoError(t, err)

		report, err := f.service.Import(ctx, []storage.ImportRow{
			{Number: "A01", OccupantName: "Petrov"},
		}, storage.ImportModeReplace, staff())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Imported)

		a01, err := f.service.Get(ctx, "A01")
		require.NoError(t, err)
		assert.True(t, a01.Occupied)
		assert.Equal(t, "Petrov", a01.OccupantName)

		a02, err := f.service.Get(ctx, "A02")
		require.NoError(t, err)
		assert.False(t, a02.Occupied)
		assert.Empty(t, a02.OccupantName)
	})

	t.Run("every imported row advances the version", func(t *testing.T) {
		f := newInventoryFixture(t, "A:2")

		before, err := f.service.Get(ctx, "A01")
		require.NoError(t, err)

		_, err = f.service.Import(ctx, []storage.ImportRow{
			{Number: "A01", OccupantName: "Petrov"},
		}, storage.ImportModeMerge, staff())
		require.NoError(t, err)

		after, err := f.service.Get(ctx, "A01")
		require.NoError(t, err)
		assert.Equal(t, before.Version+1, after.Version)
	})

	t.Run("unknown mode is rejected", func(t *testing.T) {
		f := newInventoryFixture(t, "A:2")

		_, err := f.service.Import(ctx, nil, storage.ImportMode("upsert"), staff())
		assert.Error(t, err)
	})

	t.Run("writes a summary history event", func(t *testing.T) {
		f := newInventoryFixture(t, "A:2")

		_, err := f.service.Import(ctx, []storage.ImportRow{
			{Number: "A01", OccupantName: "Petrov"},
		}, storage.ImportModeMerge, staff())
		require.NoError(t, err)

		events, err := f.history.GetByLockerNumber(ctx, "")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, repository.ActionImport, events[0].Action)
		assert.Contains(t, events[0].Details, "imported=1")
	})
}

// brokenWrites delegates everything to the in-memory store but fails each
// transactional row write, driving the import over its error threshold.
type brokenWrites struct {
	*memory.LockerStore
}

func (b *brokenWrites) UpdateTx(ctx context.Context, tx db.Tx, locker *repository.Locker) error {
	return errors.New("write failed")
}

func TestInventoryService_ImportRollsBackOnErrorThreshold(t *testing.T) {
	ctx := context.Background()

	store := memory.NewLockerStore()
	history := memory.NewHistoryStore()
	service := storage.NewInventoryService(&brokenWrites{LockerStore: store}, history, store, zap.NewNop())

	catalog, err := storage.ParseZones("Z:101")
	require.NoError(t, err)
	require.NoError(t, service.Init(ctx, catalog))

	// One locker is occupied before the run; replace mode vacates it inside
	// the transaction, so the rollback must bring it back.
	require.NoError(t, store.Update(ctx, &repository.Locker{
		Number:       "Z01",
		Occupied:     true,
		OccupantName: "Ivanov",
		UpdatedAt:    time.Now().UTC(),
		UpdatedBy:    "seed",
	}, nil))

	rows := make([]storage.ImportRow, 0, 101)
	for i := 1; i <= 101; i++ {
		rows = append(rows, storage.ImportRow{Number: fmt.Sprintf("Z%02d", i), OccupantName: "x"})
	}

	report, err := service.Import(ctx, rows, storage.ImportModeReplace, staff())
	require.Error(t, err)
	require.NotNil(t, report)
	assert.True(t, report.RolledBack)
	assert.Equal(t, 101, report.Errors)

	restored, err := store.GetByNumber(ctx, "Z01")
	require.NoError(t, err)
	assert.True(t, restored.Occupied)
	assert.Equal(t, "Ivanov", restored.OccupantName)
}
