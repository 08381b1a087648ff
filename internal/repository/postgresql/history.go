package postgresql

import (
	"context"

	"github.com/pbazhenov/lockerdesk/internal/db"
	"github.com/pbazhenov/lockerdesk/internal/repository"
)

type HistoryRepo struct {
	db db.DB
}

func NewHistoryRepo(database db.DB) *HistoryRepo {
	return &HistoryRepo{db: database}
}

func (r *HistoryRepo) Append(ctx context.Context, event *repository.HistoryEvent) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO locker_history (
            locker_number, action, actor_name, actor_role, details, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6)
    `, event.LockerNumber, event.Action, event.ActorName, event.ActorRole, event.Details, event.CreatedAt)
	return err
}

func (r *HistoryRepo) GetByLockerNumber(ctx context.Context, number string) ([]*repository.HistoryEvent, error) {
	var events []*repository.HistoryEvent
	err := r.db.Select(ctx, &events, `
        SELECT * FROM locker_history
        WHERE locker_number = $1
        ORDER BY created_at ASC
    `, number)
	return events, err
}
