package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ideahub/backend/internal/models"
)

// EscrowRepo keeps escrows in the Store.
type EscrowRepo struct {
	s *Store
}

// NewEscrowRepo returns an EscrowRepo over s.
func NewEscrowRepo(s *Store) *EscrowRepo { return &EscrowRepo{s: s} }

// Create stores e inside tx. One escrow per task.
func (r *EscrowRepo) Create(_ context.Context, tx pgx.Tx, e *models.Escrow) error {
	return r.s.write(tx, func() (func(), error) {
		if _, ok := r.s.escrows[e.TaskID]; ok {
			return nil, fmt.Errorf("%w: task %s", models.ErrDuplicateEscrow, e.TaskID)
		}
		e.CreatedAt = time.Now().UTC()
		r.s.escrows[e.TaskID] = cloneEscrow(e)
		return func() { delete(r.s.escrows, e.TaskID) }, nil
	})
}

// GetByTaskID returns the escrow held for a task.
func (r *EscrowRepo) GetByTaskID(_ context.Context, taskID uuid.UUID) (*models.Escrow, error) {
	return r.get(nil, taskID)
}

// GetByTaskIDForUpdate reads the escrow inside tx.
func (r *EscrowRepo) GetByTaskIDForUpdate(_ context.Context, tx pgx.Tx, taskID uuid.UUID) (*models.Escrow, error) {
	return r.get(tx, taskID)
}

func (r *EscrowRepo) get(tx pgx.Tx, taskID uuid.UUID) (*models.Escrow, error) {
	var out *models.Escrow
	err := r.s.read(tx, func() error {
		e, ok := r.s.escrows[taskID]
		if !ok {
			return fmt.Errorf("%w: no escrow for task %s", models.ErrEscrowNotFound, taskID)
		}
		out = cloneEscrow(e)
		return nil
	})
	return out, err
}

// Resolve records the escrow's final status inside tx.
func (r *EscrowRepo) Resolve(_ context.Context, tx pgx.Tx, e *models.Escrow) error {
	return r.s.write(tx, func() (func(), error) {
		cur, ok := r.s.escrows[e.TaskID]
		if !ok || cur.ID != e.ID || cur.Status != models.EscrowHeld {
			return nil, fmt.Errorf("%w: escrow for task %s", models.ErrAlreadyResolved, e.TaskID)
		}
		prev := cloneEscrow(cur)
		e.ResolvedAt = timePtr(time.Now().UTC())
		cur.Status, cur.OutcomeTxID, cur.ContributorID, cur.Fee, cur.ResolvedAt = e.Status, e.OutcomeTxID, e.ContributorID, e.Fee, e.ResolvedAt
		return func() { r.s.escrows[e.TaskID] = prev }, nil
	})
}
