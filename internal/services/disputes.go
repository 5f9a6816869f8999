package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ideahub/backend/internal/events"
	"github.com/ideahub/backend/internal/models"
)

// DisputeService lets an administrator settle a contested task.
type DisputeService struct {
	tasks    TaskStore
	disputes DisputeStore
	users    CompletionRecorder
	escrow   *EscrowService
	tx       TxRunner
	events   events.Emitter
	logger   *slog.Logger
}

// NewDisputeService returns a new DisputeService.
func NewDisputeService(tasks TaskStore, disputes DisputeStore, users CompletionRecorder, escrow *EscrowService, tx TxRunner, emitter events.Emitter, logger *slog.Logger) *DisputeService {
	if logger == nil {
		logger = slog.Default()
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &DisputeService{tasks: tasks, disputes: disputes, users: users, escrow: escrow, tx: tx, events: emitter, logger: logger}
}

// Resolve closes an OPEN dispute. REFUND_PAYER returns the escrow to the
// creator and ends the task REFUNDED, RELEASE_CONTRIBUTOR pays the assignee
// and ends it COMPLETED, DISMISS moves no money and restores the status the
// dispute interrupted.
func (s *DisputeService) Resolve(ctx context.Context, p models.Principal, disputeID uuid.UUID, resolution models.Resolution) (*models.Dispute, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: resolving disputes requires an administrator", models.ErrForbidden)
	}
	if !resolution.Valid() {
		return nil, fmt.Errorf("%w: unknown resolution %q", models.ErrValidation, resolution)
	}

	var d *models.Dispute
	var t *models.Task
	err := s.tx.WithTx(ctx, "resolve_dispute", func(ctx context.Context, tx pgx.Tx) error {
		var err error
		d, err = s.disputes.GetByIDForUpdate(ctx, tx, disputeID)
		if err != nil {
			return err
		}
		if d.Status != models.DisputeOpen {
			return fmt.Errorf("%w: dispute %s", models.ErrAlreadyResolved, d.ID)
		}
		t, err = s.tasks.GetByIDForUpdate(ctx, tx, d.TaskID)
		if err != nil {
			return err
		}
		if t.Status != models.TaskDisputed {
			return unavailable(t)
		}

		switch resolution {
		case models.ResolutionRefundPayer:
			if _, err := s.escrow.RefundTx(ctx, tx, t.ID); err != nil {
				return err
			}
			t.Status = models.TaskRefunded
		case models.ResolutionReleaseContributor:
			if t.AssigneeID == nil {
				return fmt.Errorf("%w: task %s has no assignee to pay", models.ErrTaskUnavailable, t.ID)
			}
			if _, err := s.escrow.ReleaseTx(ctx, tx, t.ID, *t.AssigneeID); err != nil {
				return err
			}
			if err := s.users.IncrementCompletedTasks(ctx, tx, *t.AssigneeID); err != nil {
				return err
			}
			t.Status = models.TaskCompleted
		case models.ResolutionDismiss:
			t.Status = d.PriorStatus
		}
		if err := s.tasks.UpdateStatus(ctx, tx, t, models.TaskDisputed); err != nil {
			return err
		}

		d.Resolution = &resolution
		d.ResolvedBy = &p.ID
		return s.disputes.Resolve(ctx, tx, d)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("dispute resolved", "dispute_id", d.ID, "task_id", t.ID, "resolution", resolution, "admin_id", p.ID)
	s.events.AdminAction(ctx, events.AdminAction{
		AdminID:  p.ID,
		Action:   "resolve_dispute",
		TargetID: d.ID,
		Details:  fmt.Sprintf("%s on task %s", resolution, t.ID),
	})
	s.events.DisputeResolved(ctx, events.DisputeResolved{DisputeID: d.ID, TaskID: t.ID, Resolution: string(resolution)})
	s.events.TaskChanged(ctx, events.TaskChanged{TaskID: t.ID, Status: string(t.Status), ActorID: p.ID})
	return d, nil
}

// GetDispute returns the dispute with the given id.
func (s *DisputeService) GetDispute(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return s.disputes.GetByID(ctx, id)
}

// ListOpen returns unresolved disputes, oldest first. Admin only.
func (s *DisputeService) ListOpen(ctx context.Context, p models.Principal) ([]*models.Dispute, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: listing disputes requires an administrator", models.ErrForbidden)
	}
	return s.disputes.ListOpen(ctx)
}
