package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/pbazhenov/lockerdesk/internal/db"
	"github.com/pbazhenov/lockerdesk/internal/repository"
)

type LockRepo struct {
	db db.DB
}

func NewLockRepo(database db.DB) *LockRepo {
	return &LockRepo{db: database}
}

// TryAcquire attempts to take the lease in a single atomic statement.
// The insert wins when no row exists; the conditional upsert wins when the
// existing row is expired (takeover) or already owned by the same actor
// (renewal). A live lock held by someone else leaves zero rows affected.
func (r *LockRepo) TryAcquire(ctx context.Context, lock *repository.LockerLock, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        INSERT INTO locker_locks (locker_number, owner_id, owner_name, origin_ip, acquired_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (locker_number) DO UPDATE
        SET owner_id = EXCLUDED.owner_id,
            owner_name = EXCLUDED.owner_name,
            origin_ip = EXCLUDED.origin_ip,
            acquired_at = CASE
                WHEN locker_locks.owner_id = EXCLUDED.owner_id AND locker_locks.expires_at > $7
                THEN locker_locks.acquired_at
                ELSE EXCLUDED.acquired_at
            END,
            expires_at = EXCLUDED.expires_at
        WHERE locker_locks.expires_at <= $7 OR locker_locks.owner_id = EXCLUDED.owner_id
    `, lock.LockerNumber, lock.OwnerID, lock.OwnerName, lock.OriginIP,
		lock.AcquiredAt, lock.ExpiresAt, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *LockRepo) GetByNumber(ctx context.Context, number string) (*repository.LockerLock, error) {
	var lock repository.LockerLock
	err := r.db.Get(ctx, &lock, "SELECT * FROM locker_locks WHERE locker_number = $1", number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &lock, nil
}

// Renew extends the lease only while it is still live and owned by ownerID.
func (r *LockRepo) Renew(ctx context.Context, number, ownerID string, expiresAt, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE locker_locks
        SET expires_at = $3
        WHERE locker_number = $1 AND owner_id = $2 AND expires_at > $4
    `, number, ownerID, expiresAt, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteOwned removes the lease only if ownerID holds it. Releasing a lock
// you do not own is a silent no-op.
func (r *LockRepo) DeleteOwned(ctx context.Context, number, ownerID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		"DELETE FROM locker_locks WHERE locker_number = $1 AND owner_id = $2",
		number, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes any lease regardless of owner. Admin override.
func (r *LockRepo) Delete(ctx context.Context, number string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		"DELETE FROM locker_locks WHERE locker_number = $1", number)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *LockRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		"DELETE FROM locker_locks WHERE expires_at <= $1", now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
