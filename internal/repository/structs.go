package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrObjectNotFound     = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ErrVersionConflict is returned when a conditional update loses the race:
// the row's version no longer matches what the caller last read.
type ErrVersionConflict struct {
	CurrentVersion int64
}

func (e *ErrVersionConflict) Error() string {
	return fmt.Sprintf("version conflict: current version is %d", e.CurrentVersion)
}

type Locker struct {
	Number       string    `db:"number"`
	Zone         string    `db:"zone"`
	Occupied     bool      `db:"occupied"`
	OccupantName string    `db:"occupant_name"`
	Note         string    `db:"note"`
	MedicalFlag  bool      `db:"medical_flag"`
	Version      int64     `db:"version"`
	UpdatedAt    time.Time `db:"updated_at"`
	UpdatedBy    string    `db:"updated_by"`
}

type LockerLock struct {
	LockerNumber string    `db:"locker_number"`
	OwnerID      string    `db:"owner_id"`
	OwnerName    string    `db:"owner_name"`
	OriginIP     string    `db:"origin_ip"`
	AcquiredAt   time.Time `db:"acquired_at"`
	ExpiresAt    time.Time `db:"expires_at"`
}

type HistoryEvent struct {
	ID           int64     `db:"id"`
	LockerNumber string    `db:"locker_number"`
	Action       string    `db:"action"`
	ActorName    string    `db:"actor_name"`
	ActorRole    string    `db:"actor_role"`
	Details      string    `db:"details"`
	CreatedAt    time.Time `db:"created_at"`
}

const (
	ActionLockGranted  = "lock_granted"
	ActionLockRenewed  = "lock_renewed"
	ActionLockReleased = "lock_released"
	ActionForceRelease = "force_release"
	ActionUpdate       = "update"
	ActionImport       = "import"
)

type User struct {
	ID       int64  `db:"id"`
	Username string `db:"username"`
	Password string `db:"password"`
	IsAdmin  bool   `db:"is_admin"`
}

type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "CREATED"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusDone       TaskStatus = "DONE"
)

type OutboxTask struct {
	ID          uuid.UUID       `db:"id"`
	Status      TaskStatus      `db:"status"`
	Payload     json.RawMessage `db:"payload"`
	Topic       string          `db:"topic"`
	Attempts    int             `db:"attempts"`
	LastError   *string         `db:"last_error"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
	CompletedAt *time.Time      `db:"completed_at"`
}
