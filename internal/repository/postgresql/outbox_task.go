package postgresql

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pbazhenov/lockerdesk/internal/db"
	"github.com/pbazhenov/lockerdesk/internal/repository"
)

type OutboxTaskRepo struct {
	db db.DB
}

func NewOutboxTaskRepo(database db.DB) *OutboxTaskRepo {
	return &OutboxTaskRepo{db: database}
}

func (r *OutboxTaskRepo) Create(ctx context.Context, task *repository.OutboxTask) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO outbox_tasks (id, status, payload, topic, attempts, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $6)
    `, task.ID, task.Status, task.Payload, task.Topic, task.Attempts, task.CreatedAt)
	return err
}

func (r *OutboxTaskRepo) GetProcessableTasks(ctx context.Context, limit int) ([]*repository.OutboxTask, error) {
	var tasks []*repository.OutboxTask
	err := r.db.Select(ctx, &tasks, `
        SELECT * FROM outbox_tasks
        WHERE status = $1
        ORDER BY created_at ASC
        LIMIT $2
    `, repository.TaskStatusCreated, limit)
	return tasks, err
}

func (r *OutboxTaskRepo) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status repository.TaskStatus, attempts int, lastError *string, completedAt *time.Time) error {
	_, err := r.db.Exec(ctx, `
        UPDATE outbox_tasks
        SET status = $2, attempts = $3, last_error = $4, completed_at = $5, updated_at = now()
        WHERE id = $1
    `, id, status, attempts, lastError, completedAt)
	return err
}

func (r *OutboxTaskRepo) UpdateTaskStatusTx(ctx context.Context, tx db.Tx, id uuid.UUID, status repository.TaskStatus, attempts int, lastError *string, completedAt *time.Time) error {
	_, err := tx.Exec(ctx, `
        UPDATE outbox_tasks
        SET status = $2, attempts = $3, last_error = $4, completed_at = $5, updated_at = now()
        WHERE id = $1
    `, id, status, attempts, lastError, completedAt)
	return err
}
