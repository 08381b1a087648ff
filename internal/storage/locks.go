package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pbazhenov/lockerdesk/internal/metrics"
	"github.com/pbazhenov/lockerdesk/internal/repository"
)

// LockService enforces at-most-one-active-editor-per-locker using a
// time-bounded lease. Expiry is lazy: an expired row is treated as absent by
// every read path, and the periodic sweep only bounds table growth.
type LockService struct {
	locks         LockRepository
	lockers       LockerRepository
	history       HistoryRepository
	leaseDuration time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

func NewLockService(locks LockRepository, lockers LockerRepository, history HistoryRepository, leaseDuration time.Duration, logger *zap.Logger) *LockService {
	return &LockService{
		locks:         locks,
		lockers:       lockers,
		history:       history,
		leaseDuration: leaseDuration,
		logger:        logger,
		now:           time.Now,
	}
}

// WithNowFunc overrides the clock. Tests only.
func (s *LockService) WithNowFunc(now func() time.Time) *LockService {
	s.now = now
	return s
}

// Acquire grants a lease on the locker, or reports who holds it and for how
// much longer. Re-entry by the current owner extends the lease and is always
// granted.
func (s *LockService) Acquire(ctx context.Context, number string, actor Actor) (*AcquireResult, error) {
	if actor.ID == "" {
		return nil, errors.New("acquire: actor id is required")
	}

	if _, err := s.lockers.GetByNumber(ctx, number); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	s.cleanExpiredBestEffort(ctx, now)

	lock := &repository.LockerLock{
		LockerNumber: number,
		OwnerID:      actor.ID,
		OwnerName:    actor.Name,
		OriginIP:     actor.IP,
		AcquiredAt:   now,
		ExpiresAt:    now.Add(s.leaseDuration),
	}

	// A re-entry by the current holder is a renewal, not a fresh grant; the
	// distinction only matters for the history trail, so a racing release
	// between this read and the attempt is harmless.
	action := repository.ActionLockGranted
	if existing, lookupErr := s.locks.GetByNumber(ctx, number); lookupErr == nil &&
		existing.OwnerID == actor.ID && existing.ExpiresAt.After(now) {
		action = repository.ActionLockRenewed
	}

	granted, err := s.locks.TryAcquire(ctx, lock, now)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", number, err)
	}

	if granted {
		metrics.LocksGrantedTotal.Inc()
		s.recordHistory(ctx, number, action, actor,
			fmt.Sprintf("lease until %s", lock.ExpiresAt.Format(time.RFC3339)))
		return &AcquireResult{
			Granted:          true,
			OwnerName:        actor.Name,
			ExpiresInSeconds: int64(s.leaseDuration.Seconds()),
		}, nil
	}

	metrics.LocksDeniedTotal.Inc()

	holder, err := s.locks.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			// The holder released between our attempt and the lookup.
			// The caller simply retries; no point looping here.
			return &AcquireResult{Granted: false}, nil
		}
		return nil, fmt.Errorf("failed to inspect lock for %s: %w", number, err)
	}

	return &AcquireResult{
		Granted:          false,
		OwnerName:        holder.OwnerName,
		ExpiresInSeconds: remainingSeconds(holder.ExpiresAt, now),
	}, nil
}

// Renew extends the lease only while actorID still owns it. A false return
// means the lock was lost (expired or force-released), so the caller can
// warn the user instead of failing silently.
func (s *LockService) Renew(ctx context.Context, number, actorID string) (bool, error) {
	now := s.now().UTC()
	renewed, err := s.locks.Renew(ctx, number, actorID, now.Add(s.leaseDuration), now)
	if err != nil {
		return false, fmt.Errorf("failed to renew lock for %s: %w", number, err)
	}
	if renewed {
		// The lock row carries the owner's display name; the caller only
		// knows the opaque actor id.
		if lock, lookupErr := s.locks.GetByNumber(ctx, number); lookupErr == nil {
			s.recordHistory(ctx, number, repository.ActionLockRenewed,
				Actor{ID: actorID, Name: lock.OwnerName}, "")
		}
	}
	return renewed, nil
}

// Release drops the lease if actorID owns it; otherwise it is a silent
// no-op so a stale client cannot release another actor's active lock.
func (s *LockService) Release(ctx context.Context, number string, actor Actor) error {
	if actor.ID == "" {
		return errors.New("release: actor id is required")
	}

	released, err := s.locks.DeleteOwned(ctx, number, actor.ID)
	if err != nil {
		return fmt.Errorf("failed to release lock for %s: %w", number, err)
	}
	if released {
		s.recordHistory(ctx, number, repository.ActionLockReleased, actor, "")
	}
	return nil
}

// Check reports the lock state for UI polling, applying the same lazy
// expiry rule as Acquire.
func (s *LockService) Check(ctx context.Context, number string) (*LockStatus, error) {
	if _, err := s.lockers.GetByNumber(ctx, number); err != nil {
		return nil, err
	}

	now := s.now().UTC()

	lock, err := s.locks.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return &LockStatus{Locked: false}, nil
		}
		return nil, fmt.Errorf("failed to check lock for %s: %w", number, err)
	}

	if !lock.ExpiresAt.After(now) {
		s.cleanExpiredBestEffort(ctx, now)
		return &LockStatus{Locked: false}, nil
	}

	return &LockStatus{
		Locked:           true,
		OwnerName:        lock.OwnerName,
		ExpiresInSeconds: remainingSeconds(lock.ExpiresAt, now),
	}, nil
}

// ForceRelease removes any lease regardless of owner. Admin override; the
// distinct history action keeps the takeover visible to the original holder.
func (s *LockService) ForceRelease(ctx context.Context, number string, actor Actor) error {
	removed, err := s.locks.Delete(ctx, number)
	if err != nil {
		return fmt.Errorf("failed to force-release lock for %s: %w", number, err)
	}
	if removed {
		s.recordHistory(ctx, number, repository.ActionForceRelease, actor, "administrative override")
	}
	return nil
}

// CleanExpired bulk-deletes lapsed lock rows. Purely a storage-growth bound;
// correctness never depends on it because expiry is checked per row.
func (s *LockService) CleanExpired(ctx context.Context) (int64, error) {
	removed, err := s.locks.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean expired locks: %w", err)
	}
	if removed > 0 {
		metrics.LocksExpiredReclaimedTotal.Add(float64(removed))
	}
	return removed, nil
}

// RunSweeper periodically purges expired lock rows until ctx is cancelled.
func (s *LockService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := s.CleanExpired(ctx)
			if err != nil {
				s.logger.Warn("lock sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				s.logger.Debug("lock sweep reclaimed expired leases", zap.Int64("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *LockService) cleanExpiredBestEffort(ctx context.Context, now time.Time) {
	removed, err := s.locks.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Warn("expired lock cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		metrics.LocksExpiredReclaimedTotal.Add(float64(removed))
	}
}

// recordHistory appends an audit event. Failures are logged and swallowed:
// the primary operation must never roll back because the trail write failed.
func (s *LockService) recordHistory(ctx context.Context, number, action string, actor Actor, details string) {
	event := &repository.HistoryEvent{
		LockerNumber: number,
		Action:       action,
		ActorName:    actor.Name,
		ActorRole:    actor.Role,
		Details:      details,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.history.Append(ctx, event); err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("history_append").Inc()
		s.logger.Warn("failed to append history event",
			zap.String("locker", number),
			zap.String("action", action),
			zap.Error(err))
	}
}

func remainingSeconds(expiresAt, now time.Time) int64 {
	remaining := int64(expiresAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}
