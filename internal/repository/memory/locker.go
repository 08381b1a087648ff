// Package memory provides mutex-guarded in-memory implementations of the
// repository interfaces. They back the test suite and the single-process
// dev mode; the lock and version semantics are identical to the postgres
// implementations.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgconn"

	"github.com/pbazhenov/lockerdesk/internal/db"
	"github.com/pbazhenov/lockerdesk/internal/repository"
)

var errTxUnsupported = errors.New("memory transaction does not support SQL operations")

type LockerStore struct {
	mu      sync.RWMutex
	lockers map[string]*repository.Locker
}

func NewLockerStore() *LockerStore {
	return &LockerStore{lockers: make(map[string]*repository.Locker)}
}

func (s *LockerStore) EnsureExists(ctx context.Context, number, zone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.lockers[number]; exists {
		return nil
	}
	s.lockers[number] = &repository.Locker{
		Number:    number,
		Zone:      zone,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *LockerStore) GetByNumber(ctx context.Context, number string) (*repository.Locker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	locker, found := s.lockers[number]
	if !found {
		return nil, repository.ErrObjectNotFound
	}
	cp := *locker
	return &cp, nil
}

func (s *LockerStore) List(ctx context.Context, zone string, occupied *bool) ([]*repository.Locker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var lockers []*repository.Locker
	for _, locker := range s.lockers {
		if zone != "" && locker.Zone != zone {
			continue
		}
		if occupied != nil && locker.Occupied != *occupied {
			continue
		}
		cp := *locker
		lockers = append(lockers, &cp)
	}
	sortLockers(lockers)
	return lockers, nil
}

// Update applies the occupancy fields under the store mutex, making the
// version compare-and-bump atomic relative to concurrent writers.
func (s *LockerStore) Update(ctx context.Context, locker *repository.Locker, expectedVersion *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(locker, expectedVersion)
}

func (s *LockerStore) updateLocked(locker *repository.Locker, expectedVersion *int64) error {
	current, found := s.lockers[locker.Number]
	if !found {
		return repository.ErrObjectNotFound
	}
	if expectedVersion != nil && current.Version != *expectedVersion {
		return &repository.ErrVersionConflict{CurrentVersion: current.Version}
	}
	current.Occupied = locker.Occupied
	current.OccupantName = locker.OccupantName
	current.Note = locker.Note
	current.MedicalFlag = locker.MedicalFlag
	current.UpdatedAt = locker.UpdatedAt
	current.UpdatedBy = locker.UpdatedBy
	current.Version++
	return nil
}

func (s *LockerStore) GetByNumberTx(ctx context.Context, tx db.Tx, number string) (*repository.Locker, error) {
	return s.GetByNumber(ctx, number)
}

func (s *LockerStore) UpdateTx(ctx context.Context, tx db.Tx, locker *repository.Locker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(locker, nil)
}

func (s *LockerStore) VacateAllTx(ctx context.Context, tx db.Tx, updatedBy string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var vacated int64
	now := time.Now().UTC()
	for _, locker := range s.lockers {
		if !locker.Occupied {
			continue
		}
		locker.Occupied = false
		locker.OccupantName = ""
		locker.Note = ""
		locker.MedicalFlag = false
		locker.UpdatedAt = now
		locker.UpdatedBy = updatedBy
		locker.Version++
		vacated++
	}
	return vacated, nil
}

// BeginTx snapshots the whole locker map. Rollback restores the snapshot,
// giving the bulk import path all-or-nothing semantics without a database.
func (s *LockerStore) BeginTx(ctx context.Context) (db.Tx, error) {
	s.mu.RLock()
	snapshot := make(map[string]*repository.Locker, len(s.lockers))
	for number, locker := range s.lockers {
		cp := *locker
		snapshot[number] = &cp
	}
	s.mu.RUnlock()
	return &lockerTx{store: s, snapshot: snapshot}, nil
}

type lockerTx struct {
	store    *LockerStore
	snapshot map[string]*repository.Locker
	done     bool
}

func (t *lockerTx) Commit(ctx context.Context) error {
	t.done = true
	return nil
}

func (t *lockerTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Lock()
	t.store.lockers = t.snapshot
	t.store.mu.Unlock()
	return nil
}

func (t *lockerTx) Exec(ctx context.Context, query string, args ...interface{}) (pgconn.CommandTag, error) {
	return nil, errTxUnsupported
}

func (t *lockerTx) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return errTxUnsupported
}

func (t *lockerTx) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return errTxUnsupported
}

func sortLockers(lockers []*repository.Locker) {
	sort.Slice(lockers, func(i, j int) bool { return lockers[i].Number < lockers[j].Number })
}
