package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ideahub/backend/internal/models"
)

const taskColumns = `id, idea_id, creator_id, title, description, skill, reward, delivery_days, status, assignee_id, submission_url, submission_notes, created_at, updated_at`

// TaskRepo stores tasks in Postgres.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo returns a new TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	if err := row.Scan(&t.ID, &t.IdeaID, &t.CreatorID, &t.Title, &t.Description, &t.Skill, &t.Reward, &t.DeliveryDays, &t.Status, &t.AssigneeID, &t.SubmissionURL, &t.SubmissionNotes, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts the task inside tx.
func (r *TaskRepo) Create(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	return tx.QueryRow(ctx, `
		INSERT INTO tasks (id, idea_id, creator_id, title, description, skill, reward, delivery_days, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, t.ID, t.IdeaID, t.CreatorID, t.Title, t.Description, t.Skill, t.Reward, t.DeliveryDays, t.Status).Scan(&t.CreatedAt, &t.UpdatedAt)
}

// GetByID returns the task with the given id.
func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "task")
	}
	return t, nil
}

// GetByIDForUpdate locks the task row. Call within a transaction.
func (r *TaskRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	t, err := scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "task")
	}
	return t, nil
}

// List returns tasks matching f, newest first.
func (r *TaskRepo) List(ctx context.Context, f models.TaskFilter) ([]*models.Task, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, string(f.Status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// Claim assigns a PENDING task to assigneeID with a single compare-and-set.
// When nothing matches, a follow-up read tells the caller why.
func (r *TaskRepo) Claim(ctx context.Context, tx pgx.Tx, taskID, assigneeID uuid.UUID) (*models.Task, error) {
	t, err := scanTask(tx.QueryRow(ctx, `
		UPDATE tasks SET status = 'ASSIGNED', assignee_id = $2, updated_at = now()
		WHERE id = $1 AND status = 'PENDING' AND creator_id <> $2
		RETURNING `+taskColumns,
		taskID, assigneeID))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	var status models.TaskStatus
	var creatorID uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT status, creator_id FROM tasks WHERE id = $1`, taskID).Scan(&status, &creatorID); err != nil {
		return nil, notFound(err, "task")
	}
	if creatorID == assigneeID {
		return nil, fmt.Errorf("%w: creators cannot claim their own task", models.ErrForbidden)
	}
	return nil, fmt.Errorf("%w: task is %s", models.ErrTaskUnavailable, status)
}

// UpdateStatus writes t's mutable fields only if the stored status is still
// from. A mismatch means another transition won and yields ErrTaskUnavailable.
func (r *TaskRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, t *models.Task, from models.TaskStatus) error {
	err := tx.QueryRow(ctx, `
		UPDATE tasks
		SET status = $2, assignee_id = $3, submission_url = $4, submission_notes = $5, updated_at = now()
		WHERE id = $1 AND status = $6
		RETURNING updated_at
	`, t.ID, t.Status, t.AssigneeID, t.SubmissionURL, t.SubmissionNotes, from).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: task %s is no longer %s", models.ErrTaskUnavailable, t.ID, from)
	}
	return err
}
