package storage

import (
	"context"
	"time"

	"github.com/pbazhenov/lockerdesk/internal/db"
	"github.com/pbazhenov/lockerdesk/internal/repository"
)

const (
	RoleAdmin = "admin"
	RoleGuest = "guest"
)

// Actor identifies who is performing an operation. Derived from the session
// by the request-authentication middleware.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
	IP   string `json:"ip,omitempty"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type Locker struct {
	Number       string    `json:"number"`
	Zone         string    `json:"zone"`
	Occupied     bool      `json:"occupied"`
	OccupantName string    `json:"occupant_name"`
	Note         string    `json:"note"`
	MedicalFlag  bool      `json:"medical_flag"`
	Version      int64     `json:"version"`
	UpdatedAt    time.Time `json:"updated_at"`
	UpdatedBy    string    `json:"updated_by"`
}

// UpdateFields carries the mutable occupancy fields of a locker.
type UpdateFields struct {
	Occupied     bool   `json:"occupied"`
	OccupantName string `json:"occupant_name"`
	Note         string `json:"note"`
	MedicalFlag  bool   `json:"medical_flag"`
}

// AcquireResult reports the outcome of a lock acquisition. A denial is an
// ordinary result, not an error: it carries the current holder's display
// name and the seconds left on their lease.
type AcquireResult struct {
	Granted          bool   `json:"granted"`
	OwnerName        string `json:"owner_name,omitempty"`
	ExpiresInSeconds int64  `json:"expires_in_seconds,omitempty"`
}

type LockStatus struct {
	Locked           bool   `json:"locked"`
	OwnerName        string `json:"owner_name,omitempty"`
	ExpiresInSeconds int64  `json:"expires_in_seconds,omitempty"`
}

type HistoryEvent struct {
	LockerNumber string    `json:"locker_number"`
	Action       string    `json:"action"`
	ActorName    string    `json:"actor_name"`
	ActorRole    string    `json:"actor_role"`
	Details      string    `json:"details,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type ImportMode string

const (
	ImportModeReplace ImportMode = "replace"
	ImportModeMerge   ImportMode = "merge"
)

type ImportRow struct {
	Number       string `json:"number"`
	OccupantName string `json:"occupant_name"`
	Note         string `json:"note"`
	MedicalFlag  bool   `json:"medical_flag"`
}

type ImportReport struct {
	Imported   int  `json:"imported"`
	Skipped    int  `json:"skipped"`
	NotFound   int  `json:"not_found"`
	Errors     int  `json:"errors"`
	RolledBack bool `json:"rolled_back"`
}

type LockerRepository interface {
	EnsureExists(ctx context.Context, number, zone string) error
	GetByNumber(ctx context.Context, number string) (*repository.Locker, error)
	List(ctx context.Context, zone string, occupied *bool) ([]*repository.Locker, error)
	Update(ctx context.Context, locker *repository.Locker, expectedVersion *int64) error
	GetByNumberTx(ctx context.Context, tx db.Tx, number string) (*repository.Locker, error)
	UpdateTx(ctx context.Context, tx db.Tx, locker *repository.Locker) error
	VacateAllTx(ctx context.Context, tx db.Tx, updatedBy string) (int64, error)
}

type LockRepository interface {
	TryAcquire(ctx context.Context, lock *repository.LockerLock, now time.Time) (bool, error)
	GetByNumber(ctx context.Context, number string) (*repository.LockerLock, error)
	Renew(ctx context.Context, number, ownerID string, expiresAt, now time.Time) (bool, error)
	DeleteOwned(ctx context.Context, number, ownerID string) (bool, error)
	Delete(ctx context.Context, number string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type HistoryRepository interface {
	Append(ctx context.Context, event *repository.HistoryEvent) error
	GetByLockerNumber(ctx context.Context, number string) ([]*repository.HistoryEvent, error)
}

// TxBeginner opens the transaction the bulk import runs under. Implemented
// by the pgx pool wrapper and by the in-memory store (snapshot semantics).
type TxBeginner interface {
	BeginTx(ctx context.Context) (db.Tx, error)
}

func toLocker(row *repository.Locker) *Locker {
	return &Locker{
		Number:       row.Number,
		Zone:         row.Zone,
		Occupied:     row.Occupied,
		OccupantName: row.OccupantName,
		Note:         row.Note,
		MedicalFlag:  row.MedicalFlag,
		Version:      row.Version,
		UpdatedAt:    row.UpdatedAt,
		UpdatedBy:    row.UpdatedBy,
	}
}

func toHistoryEvent(row *repository.HistoryEvent) HistoryEvent {
	return HistoryEvent{
		LockerNumber: row.LockerNumber,
		Action:       row.Action,
		ActorName:    row.ActorName,
		ActorRole:    row.ActorRole,
		Details:      row.Details,
		CreatedAt:    row.CreatedAt,
	}
}
