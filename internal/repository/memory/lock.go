package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pbazhenov/lockerdesk/internal/repository"
)

type LockStore struct {
	mu    sync.Mutex
	locks map[string]*repository.LockerLock
}

func NewLockStore() *LockStore {
	return &LockStore{locks: make(map[string]*repository.LockerLock)}
}

// TryAcquire mirrors the postgres upsert: insert when absent, take over
// when expired, extend when re-entered by the same owner. The whole
// decision runs under the store mutex, so concurrent callers on the same
// key serialize and exactly one wins.
func (s *LockStore) TryAcquire(ctx context.Context, lock *repository.LockerLock, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found := s.locks[lock.LockerNumber]
	if !found || !existing.ExpiresAt.After(now) {
		cp := *lock
		s.locks[lock.LockerNumber] = &cp
		return true, nil
	}
	if existing.OwnerID == lock.OwnerID {
		existing.OwnerName = lock.OwnerName
		existing.OriginIP = lock.OriginIP
		existing.ExpiresAt = lock.ExpiresAt
		return true, nil
	}
	return false, nil
}

func (s *LockStore) GetByNumber(ctx context.Context, number string) (*repository.LockerLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, found := s.locks[number]
	if !found {
		return nil, repository.ErrObjectNotFound
	}
	cp := *lock
	return &cp, nil
}

func (s *LockStore) Renew(ctx context.Context, number, ownerID string, expiresAt, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, found := s.locks[number]
	if !found || lock.OwnerID != ownerID || !lock.ExpiresAt.After(now) {
		return false, nil
	}
	lock.ExpiresAt = expiresAt
	return true, nil
}

func (s *LockStore) DeleteOwned(ctx context.Context, number, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, found := s.locks[number]
	if !found || lock.OwnerID != ownerID {
		return false, nil
	}
	delete(s.locks, number)
	return true, nil
}

func (s *LockStore) Delete(ctx context.Context, number string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.locks[number]; !found {
		return false, nil
	}
	delete(s.locks, number)
	return true, nil
}

func (s *LockStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for number, lock := range s.locks {
		if !lock.ExpiresAt.After(now) {
			delete(s.locks, number)
			removed++
		}
	}
	return removed, nil
}
