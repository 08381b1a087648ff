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

// importErrorThreshold caps tolerated row failures in a single bulk run.
// Exceeding it is treated as a systemic failure and rolls the run back.
const importErrorThreshold = 100

// InventoryService owns the locker records: reads, version-guarded
// mutations, and the bulk reconciliation path.
type InventoryService struct {
	lockers LockerRepository
	history HistoryRepository
	tx      TxBeginner
	logger  *zap.Logger
	now     func() time.Time
}

func NewInventoryService(lockers LockerRepository, history HistoryRepository, tx TxBeginner, logger *zap.Logger) *InventoryService {
	return &InventoryService{
		lockers: lockers,
		history: history,
		tx:      tx,
		logger:  logger,
		now:     time.Now,
	}
}

// WithNowFunc overrides the clock. Tests only.
func (s *InventoryService) WithNowFunc(now func() time.Time) *InventoryService {
	s.now = now
	return s
}

// Init pre-creates one locker row per configured zone slot. Rows are never
// deleted afterwards; re-running is a no-op for existing numbers.
func (s *InventoryService) Init(ctx context.Context, catalog *ZoneCatalog) error {
	for _, zone := range catalog.Zones() {
		for _, number := range zone.SlotNumbers() {
			if err := s.lockers.EnsureExists(ctx, number, zone.Code); err != nil {
				return fmt.Errorf("failed to seed locker %s: %w", number, err)
			}
		}
	}
	return nil
}

func (s *InventoryService) Get(ctx context.Context, number string) (*Locker, error) {
	row, err := s.lockers.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return toLocker(row), nil
}

func (s *InventoryService) List(ctx context.Context, zone string, occupied *bool) ([]*Locker, error) {
	rows, err := s.lockers.List(ctx, zone, occupied)
	if err != nil {
		return nil, fmt.Errorf("failed to list lockers: %w", err)
	}
	lockers := make([]*Locker, len(rows))
	for i, row := range rows {
		lockers[i] = toLocker(row)
	}
	return lockers, nil
}

func (s *InventoryService) History(ctx context.Context, number string) ([]HistoryEvent, error) {
	rows, err := s.history.GetByLockerNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", number, err)
	}
	events := make([]HistoryEvent, len(rows))
	for i, row := range rows {
		events[i] = toHistoryEvent(row)
	}
	return events, nil
}

// Update mutates a locker's occupancy fields. When expectedVersion is
// non-nil the write succeeds only if the stored version still matches; a
// mismatch returns repository.ErrVersionConflict carrying the current
// version so the caller can re-fetch and retry. A nil expectedVersion skips
// the guard (bulk escape hatch) but the version still advances.
func (s *InventoryService) Update(ctx context.Context, number string, fields UpdateFields, expectedVersion *int64, actor Actor) (*Locker, error) {
	row := &repository.Locker{
		Number:       number,
		Occupied:     fields.Occupied,
		OccupantName: fields.OccupantName,
		Note:         fields.Note,
		MedicalFlag:  fields.MedicalFlag,
		UpdatedAt:    s.now().UTC(),
		UpdatedBy:    actor.Name,
	}

	if err := s.lockers.Update(ctx, row, expectedVersion); err != nil {
		var conflict *repository.ErrVersionConflict
		if errors.As(err, &conflict) {
			metrics.VersionConflictsTotal.Inc()
		}
		return nil, err
	}

	metrics.LockersUpdatedTotal.Inc()
	s.recordHistory(ctx, number, repository.ActionUpdate, actor,
		fmt.Sprintf("occupied=%t occupant=%q", fields.Occupied, fields.OccupantName))

	updated, err := s.lockers.GetByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read locker %s after update: %w", number, err)
	}
	return toLocker(updated), nil
}

// Import applies many occupancy updates under one transaction without taking
// per-locker leases. Every row write advances the version, so an editor
// holding a lease will see a version mismatch on submit and be forced to
// re-fetch. Row failures are independent until the error threshold, at which
// point the whole run rolls back.
func (s *InventoryService) Import(ctx context.Context, rows []ImportRow, mode ImportMode, actor Actor) (*ImportReport, error) {
	if mode != ImportModeReplace && mode != ImportModeMerge {
		return nil, fmt.Errorf("unknown import mode %q", mode)
	}

	report := &ImportReport{}
	now := s.now().UTC()

	tx, err := s.tx.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	if mode == ImportModeReplace {
		vacated, err := s.lockers.VacateAllTx(ctx, tx, actor.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to vacate lockers for replace import: %w", err)
		}
		s.logger.Info("replace import vacated occupied lockers", zap.Int64("count", vacated))
	}

	for _, row := range rows {
		current, err := s.lockers.GetByNumberTx(ctx, tx, row.Number)
		if err != nil {
			if errors.Is(err, repository.ErrObjectNotFound) {
				report.NotFound++
				metrics.ImportRowsTotal.WithLabelValues("not_found").Inc()
				continue
			}
			report.Errors++
			metrics.ImportRowsTotal.WithLabelValues("error").Inc()
			if report.Errors > importErrorThreshold {
				report.RolledBack = true
				return report, fmt.Errorf("import aborted: error count exceeded %d", importErrorThreshold)
			}
			continue
		}

		if mode == ImportModeMerge && current.Occupied {
			report.Skipped++
			metrics.ImportRowsTotal.WithLabelValues("skipped").Inc()
			continue
		}

		current.Occupied = true
		current.OccupantName = row.OccupantName
		current.Note = row.Note
		current.MedicalFlag = row.MedicalFlag
		current.UpdatedAt = now
		current.UpdatedBy = actor.Name

		if err := s.lockers.UpdateTx(ctx, tx, current); err != nil {
			report.Errors++
			metrics.ImportRowsTotal.WithLabelValues("error").Inc()
			s.logger.Warn("import row failed", zap.String("locker", row.Number), zap.Error(err))
			if report.Errors > importErrorThreshold {
				report.RolledBack = true
				return report, fmt.Errorf("import aborted: error count exceeded %d", importErrorThreshold)
			}
			continue
		}

		report.Imported++
		metrics.ImportRowsTotal.WithLabelValues("imported").Inc()
	}

	if err := tx.Commit(ctx); err != nil {
		report.RolledBack = true
		return report, fmt.Errorf("failed to commit import: %w", err)
	}

	s.recordHistory(ctx, "", repository.ActionImport, actor,
		fmt.Sprintf("mode=%s imported=%d skipped=%d notFound=%d errors=%d",
			mode, report.Imported, report.Skipped, report.NotFound, report.Errors))

	return report, nil
}

func (s *InventoryService) recordHistory(ctx context.Context, number, action string, actor Actor, details string) {
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
