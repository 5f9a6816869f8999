package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ideahub/backend/internal/database"
	"github.com/ideahub/backend/internal/models"
)

const disputeColumns = `id, task_id, initiator_id, reason, status, resolution, prior_status, resolved_by, created_at, resolved_at`

// DisputeRepo stores disputes in Postgres.
type DisputeRepo struct {
	pool *pgxpool.Pool
}

// NewDisputeRepo returns a new DisputeRepo.
func NewDisputeRepo(pool *pgxpool.Pool) *DisputeRepo {
	return &DisputeRepo{pool: pool}
}

func scanDispute(row rowScanner) (*models.Dispute, error) {
	var d models.Dispute
	if err := row.Scan(&d.ID, &d.TaskID, &d.InitiatorID, &d.Reason, &d.Status, &d.Resolution, &d.PriorStatus, &d.ResolvedBy, &d.CreatedAt, &d.ResolvedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts the dispute inside tx.
func (r *DisputeRepo) Create(ctx context.Context, tx pgx.Tx, d *models.Dispute) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO disputes (id, task_id, initiator_id, reason, status, prior_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, d.ID, d.TaskID, d.InitiatorID, d.Reason, d.Status, d.PriorStatus).Scan(&d.CreatedAt)
	if database.IsUniqueViolation(err, "disputes_one_open_per_task") {
		return fmt.Errorf("%w: task %s already has an open dispute", models.ErrTaskUnavailable, d.TaskID)
	}
	return err
}

// GetByID returns the dispute with the given id.
func (r *DisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	d, err := scanDispute(r.pool.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "dispute")
	}
	return d, nil
}

// GetByIDForUpdate reads the dispute and locks its row until tx ends.
func (r *DisputeRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	d, err := scanDispute(tx.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "dispute")
	}
	return d, nil
}

// ListOpen returns unresolved disputes, oldest first.
func (r *DisputeRepo) ListOpen(ctx context.Context) ([]*models.Dispute, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE status = 'OPEN' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// Resolve closes an OPEN dispute. A dispute that is no longer OPEN yields
// ErrAlreadyResolved.
func (r *DisputeRepo) Resolve(ctx context.Context, tx pgx.Tx, d *models.Dispute) error {
	err := tx.QueryRow(ctx, `
		UPDATE disputes
		SET status = 'RESOLVED', resolution = $2, resolved_by = $3, resolved_at = now()
		WHERE id = $1 AND status = 'OPEN'
		RETURNING status, resolved_at
	`, d.ID, d.Resolution, d.ResolvedBy).Scan(&d.Status, &d.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: dispute %s", models.ErrAlreadyResolved, d.ID)
	}
	return err
}
