package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/pbazhenov/lockerdesk/internal/db"
	"github.com/pbazhenov/lockerdesk/internal/repository"
)

type LockerRepo struct {
	db db.DB
}

func NewLockerRepo(database db.DB) *LockerRepo {
	return &LockerRepo{db: database}
}

// EnsureExists pre-creates a locker row. Existing rows are left untouched,
// so calling this on every startup is safe.
func (r *LockerRepo) EnsureExists(ctx context.Context, number, zone string) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO lockers (number, zone, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (number) DO NOTHING
    `, number, zone)
	return err
}

func (r *LockerRepo) GetByNumber(ctx context.Context, number string) (*repository.Locker, error) {
	var locker repository.Locker
	err := r.db.Get(ctx, &locker, "SELECT * FROM lockers WHERE number = $1", number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &locker, nil
}

func (r *LockerRepo) List(ctx context.Context, zone string, occupied *bool) ([]*repository.Locker, error) {
	query := "SELECT * FROM lockers"
	args := []interface{}{}
	where := ""

	if zone != "" {
		args = append(args, zone)
		where = " WHERE zone = $1"
	}
	if occupied != nil {
		args = append(args, *occupied)
		if where == "" {
			where = " WHERE occupied = $1"
		} else {
			where += " AND occupied = $2"
		}
	}

	query += where + " ORDER BY number ASC"

	var lockers []*repository.Locker
	err := r.db.Select(ctx, &lockers, query, args...)
	return lockers, err
}

const updateGuardedQuery = `
        UPDATE lockers
        SET
            occupied = $2,
            occupant_name = $3,
            note = $4,
            medical_flag = $5,
            version = version + 1,
            updated_at = $6,
            updated_by = $7
        WHERE number = $1 AND version = $8
    `

const updateUnguardedQuery = `
        UPDATE lockers
        SET
            occupied = $2,
            occupant_name = $3,
            note = $4,
            medical_flag = $5,
            version = version + 1,
            updated_at = $6,
            updated_by = $7
        WHERE number = $1
    `

// Update writes the locker's occupancy fields and advances its version by
// one. When expectedVersion is non-nil the write only succeeds if the stored
// version still matches; a stale expectation yields ErrVersionConflict
// carrying the current version.
func (r *LockerRepo) Update(ctx context.Context, locker *repository.Locker, expectedVersion *int64) error {
	if expectedVersion == nil {
		tag, err := r.db.Exec(ctx, updateUnguardedQuery,
			locker.Number, locker.Occupied, locker.OccupantName, locker.Note,
			locker.MedicalFlag, locker.UpdatedAt, locker.UpdatedBy)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrObjectNotFound
		}
		return nil
	}

	tag, err := r.db.Exec(ctx, updateGuardedQuery,
		locker.Number, locker.Occupied, locker.OccupantName, locker.Note,
		locker.MedicalFlag, locker.UpdatedAt, locker.UpdatedBy, *expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Zero rows: either the locker does not exist or the version moved on.
	var current int64
	err = r.db.ExecQueryRow(ctx, "SELECT version FROM lockers WHERE number = $1", locker.Number).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrObjectNotFound
		}
		return err
	}
	return &repository.ErrVersionConflict{CurrentVersion: current}
}

// UpdateTx is the unguarded variant used by bulk import inside a transaction.
// The version still advances by one per row.
func (r *LockerRepo) UpdateTx(ctx context.Context, tx db.Tx, locker *repository.Locker) error {
	tag, err := tx.Exec(ctx, updateUnguardedQuery,
		locker.Number, locker.Occupied, locker.OccupantName, locker.Note,
		locker.MedicalFlag, locker.UpdatedAt, locker.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

func (r *LockerRepo) GetByNumberTx(ctx context.Context, tx db.Tx, number string) (*repository.Locker, error) {
	var locker repository.Locker
	err := tx.Get(ctx, &locker, "SELECT * FROM lockers WHERE number = $1 FOR UPDATE", number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &locker, nil
}

// VacateAllTx resets every occupied locker to empty. Used by replace-mode
// import before the new occupants are written.
func (r *LockerRepo) VacateAllTx(ctx context.Context, tx db.Tx, updatedBy string) (int64, error) {
	tag, err := tx.Exec(ctx, `
        UPDATE lockers
        SET
            occupied = FALSE,
            occupant_name = '',
            note = '',
            medical_flag = FALSE,
            version = version + 1,
            updated_at = now(),
            updated_by = $1
        WHERE occupied = TRUE
    `, updatedBy)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
