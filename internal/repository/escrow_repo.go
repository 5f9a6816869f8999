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

const escrowColumns = `id, task_id, payer_id, amount, status, lock_tx_id, outcome_tx_id, contributor_id, fee, created_at, resolved_at`

// EscrowRepo stores escrow records in Postgres.
type EscrowRepo struct {
	pool *pgxpool.Pool
}

// NewEscrowRepo returns a new EscrowRepo.
func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

func scanEscrow(row rowScanner) (*models.Escrow, error) {
	var e models.Escrow
	if err := row.Scan(&e.ID, &e.TaskID, &e.PayerID, &e.Amount, &e.Status, &e.LockTxID, &e.OutcomeTxID, &e.ContributorID, &e.Fee, &e.CreatedAt, &e.ResolvedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func escrowNotFound(err error, taskID uuid.UUID) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: no escrow for task %s", models.ErrEscrowNotFound, taskID)
	}
	return err
}

// Create inserts the escrow inside tx.
func (r *EscrowRepo) Create(ctx context.Context, tx pgx.Tx, e *models.Escrow) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO escrows (id, task_id, payer_id, amount, status, lock_tx_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.TaskID, e.PayerID, e.Amount, e.Status, e.LockTxID).Scan(&e.CreatedAt)
	if database.IsUniqueViolation(err, "escrows_task_id_key") {
		return fmt.Errorf("%w: task %s", models.ErrDuplicateEscrow, e.TaskID)
	}
	return err
}

// GetByTaskID returns the escrow held for a task.
func (r *EscrowRepo) GetByTaskID(ctx context.Context, taskID uuid.UUID) (*models.Escrow, error) {
	e, err := scanEscrow(r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE task_id = $1`, taskID))
	if err != nil {
		return nil, escrowNotFound(err, taskID)
	}
	return e, nil
}

// GetByTaskIDForUpdate locks the escrow row. Call within a transaction.
func (r *EscrowRepo) GetByTaskIDForUpdate(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (*models.Escrow, error) {
	e, err := scanEscrow(tx.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE task_id = $1 FOR UPDATE`, taskID))
	if err != nil {
		return nil, escrowNotFound(err, taskID)
	}
	return e, nil
}

// Resolve moves e out of HELD. Only one caller can ever win; the rest get
// ErrAlreadyResolved.
func (r *EscrowRepo) Resolve(ctx context.Context, tx pgx.Tx, e *models.Escrow) error {
	err := tx.QueryRow(ctx, `
		UPDATE escrows
		SET status = $2, outcome_tx_id = $3, contributor_id = $4, fee = $5, resolved_at = now()
		WHERE id = $1 AND status = 'HELD'
		RETURNING resolved_at
	`, e.ID, e.Status, e.OutcomeTxID, e.ContributorID, e.Fee).Scan(&e.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: escrow for task %s", models.ErrAlreadyResolved, e.TaskID)
	}
	return err
}
