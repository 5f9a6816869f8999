package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ideahub/backend/internal/events"
	"github.com/ideahub/backend/internal/metrics"
	"github.com/ideahub/backend/internal/models"
)

const minAwardXP = 50

// TaskStore persists tasks. Claim and UpdateStatus are compare-and-set.
type TaskStore interface {
	Create(ctx context.Context, tx pgx.Tx, t *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
	List(ctx context.Context, f models.TaskFilter) ([]*models.Task, error)
	Claim(ctx context.Context, tx pgx.Tx, taskID, assigneeID uuid.UUID) (*models.Task, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, t *models.Task, from models.TaskStatus) error
}

// DisputeStore persists disputes. Resolve only succeeds on an OPEN dispute.
type DisputeStore interface {
	Create(ctx context.Context, tx pgx.Tx, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error)
	ListOpen(ctx context.Context) ([]*models.Dispute, error)
	Resolve(ctx context.Context, tx pgx.Tx, d *models.Dispute) error
}

// CompletionRecorder bumps a contributor's completed task count.
type CompletionRecorder interface {
	IncrementCompletedTasks(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error
}

// AssignQueue schedules an auto-assign attempt for a freshly created task.
type AssignQueue interface {
	EnqueueAutoAssign(ctx context.Context, taskID uuid.UUID) error
}

// CreateTaskInput is the creator-supplied part of a new task.
type CreateTaskInput struct {
	IdeaID       uuid.UUID
	Title        string
	Description  string
	Skill        string
	Reward       decimal.Decimal
	DeliveryDays int
	AutoAssign   bool
}

// TaskService drives the task lifecycle. Every transition that moves money
// runs in the same transaction as the status change.
type TaskService struct {
	tasks    TaskStore
	disputes DisputeStore
	users    CompletionRecorder
	escrow   *EscrowService
	tx       TxRunner
	events   events.Emitter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	assign   AssignQueue
}

// NewTaskService returns a new TaskService.
func NewTaskService(tasks TaskStore, disputes DisputeStore, users CompletionRecorder, escrow *EscrowService, tx TxRunner, emitter events.Emitter, m *metrics.Metrics, logger *slog.Logger) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &TaskService{
		tasks:    tasks,
		disputes: disputes,
		users:    users,
		escrow:   escrow,
		tx:       tx,
		events:   emitter,
		metrics:  m,
		logger:   logger,
	}
}

// SetAssignQueue wires the auto-assign queue. The queue's worker needs the
// service, so it is attached after construction.
func (s *TaskService) SetAssignQueue(q AssignQueue) { s.assign = q }

// XPForReward sizes the award for a completed task: ten points per unit of
// reward, never less than minAwardXP.
func XPForReward(reward decimal.Decimal) int {
	xp := int(reward.Mul(decimal.NewFromInt(10)).Floor().IntPart())
	return max(xp, minAwardXP)
}

// CreateTask stores the task as PENDING and locks its reward from the
// creator's wallet in one transaction.
func (s *TaskService) CreateTask(ctx context.Context, p models.Principal, in CreateTaskInput) (*models.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Skill = strings.TrimSpace(in.Skill)
	switch {
	case in.Title == "":
		return nil, fmt.Errorf("%w: title is required", models.ErrValidation)
	case in.Description == "":
		return nil, fmt.Errorf("%w: description is required", models.ErrValidation)
	case in.DeliveryDays < 0:
		return nil, fmt.Errorf("%w: delivery days must not be negative", models.ErrValidation)
	}
	if err := models.CheckAmount("reward", in.Reward); err != nil {
		return nil, err
	}
	if in.DeliveryDays == 0 {
		in.DeliveryDays = 1
	}
	if in.Skill == "" {
		in.Skill = models.DefaultSkill
	}

	t := &models.Task{
		ID:           uuid.New(),
		IdeaID:       in.IdeaID,
		CreatorID:    p.ID,
		Title:        in.Title,
		Description:  in.Description,
		Skill:        in.Skill,
		Reward:       in.Reward,
		DeliveryDays: in.DeliveryDays,
		Status:       models.TaskPending,
	}
	err := s.tx.WithTx(ctx, "create_task", func(ctx context.Context, tx pgx.Tx) error {
		if err := s.tasks.Create(ctx, tx, t); err != nil {
			return err
		}
		_, err := s.escrow.CreateEscrowTx(ctx, tx, p.ID, t.ID, t.Reward)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("task created", "task_id", t.ID, "creator_id", p.ID, "reward", t.Reward)
	s.events.TaskChanged(ctx, events.TaskChanged{TaskID: t.ID, Status: string(t.Status), ActorID: p.ID})
	if in.AutoAssign && s.assign != nil {
		if err := s.assign.EnqueueAutoAssign(ctx, t.ID); err != nil {
			s.logger.Warn("auto-assign not scheduled", "task_id", t.ID, "error", err)
		}
	}
	return t, nil
}

// GetTask returns the task with the given id.
func (s *TaskService) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return s.tasks.GetByID(ctx, id)
}

// ListTasks returns tasks matching f.
func (s *TaskService) ListTasks(ctx context.Context, f models.TaskFilter) ([]*models.Task, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrValidation, f.Status)
	}
	return s.tasks.List(ctx, f)
}

// Claim assigns a PENDING task to the caller. Exactly one of several
// concurrent claims wins; the rest get ErrTaskUnavailable.
func (s *TaskService) Claim(ctx context.Context, p models.Principal, taskID uuid.UUID) (*models.Task, error) {
	return s.claim(ctx, "claim_task", taskID, p.ID, p.ID)
}

func (s *TaskService) claim(ctx context.Context, op string, taskID, contributorID, actorID uuid.UUID) (*models.Task, error) {
	var t *models.Task
	err := s.tx.WithTx(ctx, op, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		t, err = s.tasks.Claim(ctx, tx, taskID, contributorID)
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrTaskUnavailable) {
			s.metrics.ClaimConflict()
		}
		return nil, err
	}
	s.logger.Info("task claimed", "task_id", taskID, "assignee_id", contributorID)
	s.events.TaskChanged(ctx, events.TaskChanged{TaskID: taskID, Status: string(t.Status), ActorID: actorID})
	return t, nil
}

// Submit hands in work. Only the assignee may submit, and only while ASSIGNED.
func (s *TaskService) Submit(ctx context.Context, p models.Principal, taskID uuid.UUID, submissionURL, notes string) (*models.Task, error) {
	submissionURL = strings.TrimSpace(submissionURL)
	if submissionURL == "" {
		return nil, fmt.Errorf("%w: submission url is required", models.ErrValidation)
	}
	return s.transition(ctx, "submit_task", p, taskID, func(t *models.Task) error {
		if t.AssigneeID == nil || *t.AssigneeID != p.ID {
			return fmt.Errorf("%w: only the assignee can submit", models.ErrForbidden)
		}
		if t.Status != models.TaskAssigned {
			return unavailable(t)
		}
		t.Status = models.TaskSubmitted
		t.SubmissionURL = submissionURL
		t.SubmissionNotes = strings.TrimSpace(notes)
		return nil
	}, nil)
}

// RequestRevision sends submitted work back to the assignee.
func (s *TaskService) RequestRevision(ctx context.Context, p models.Principal, taskID uuid.UUID) (*models.Task, error) {
	return s.transition(ctx, "request_revision", p, taskID, func(t *models.Task) error {
		if err := requireOwner(p, t); err != nil {
			return err
		}
		if t.Status != models.TaskSubmitted {
			return unavailable(t)
		}
		t.Status = models.TaskAssigned
		return nil
	}, nil)
}

// Approve releases the escrow to the assignee and completes the task. If the
// release fails the task stays SUBMITTED.
func (s *TaskService) Approve(ctx context.Context, p models.Principal, taskID uuid.UUID) (*models.Task, error) {
	t, _, err := s.complete(ctx, "approve_task", p, taskID)
	return t, err
}

// ReleaseEscrow is the administrative payout of a SUBMITTED task. It pays
// the assignee and completes the task exactly as an approval would.
func (s *TaskService) ReleaseEscrow(ctx context.Context, p models.Principal, taskID uuid.UUID) (*models.Escrow, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: releasing escrow directly requires an administrator", models.ErrForbidden)
	}
	t, e, err := s.complete(ctx, "release_escrow", p, taskID)
	if err != nil {
		return nil, err
	}
	s.events.AdminAction(ctx, events.AdminAction{
		AdminID:  p.ID,
		Action:   "release_escrow",
		TargetID: t.ID,
		Details:  fmt.Sprintf("paid %s to %s", e.Amount, *t.AssigneeID),
	})
	return e, nil
}

// RefundEscrow cancels a task that has not completed: the reward goes back
// to the creator and the task ends REFUNDED. Disputed tasks are settled
// through dispute resolution instead. Admin only.
func (s *TaskService) RefundEscrow(ctx context.Context, p models.Principal, taskID uuid.UUID) (*models.Escrow, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: refunding escrow directly requires an administrator", models.ErrForbidden)
	}
	var e *models.Escrow
	t, err := s.transition(ctx, "refund_escrow", p, taskID, func(t *models.Task) error {
		switch t.Status {
		case models.TaskPending, models.TaskAssigned, models.TaskSubmitted:
		default:
			return unavailable(t)
		}
		t.Status = models.TaskRefunded
		return nil
	}, func(ctx context.Context, tx pgx.Tx, t *models.Task) error {
		var err error
		e, err = s.escrow.RefundTx(ctx, tx, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.events.AdminAction(ctx, events.AdminAction{
		AdminID:  p.ID,
		Action:   "refund_escrow",
		TargetID: t.ID,
		Details:  fmt.Sprintf("returned %s to %s", e.Amount, e.PayerID),
	})
	return e, nil
}

// GetEscrow returns the escrow holding the task's reward.
func (s *TaskService) GetEscrow(ctx context.Context, taskID uuid.UUID) (*models.Escrow, error) {
	return s.escrow.GetEscrow(ctx, taskID)
}

// complete moves a SUBMITTED task to COMPLETED and releases its escrow to
// the assignee in the same transaction.
func (s *TaskService) complete(ctx context.Context, op string, p models.Principal, taskID uuid.UUID) (*models.Task, *models.Escrow, error) {
	var e *models.Escrow
	t, err := s.transition(ctx, op, p, taskID, func(t *models.Task) error {
		if err := requireOwner(p, t); err != nil {
			return err
		}
		if t.Status != models.TaskSubmitted || t.AssigneeID == nil {
			return unavailable(t)
		}
		t.Status = models.TaskCompleted
		return nil
	}, func(ctx context.Context, tx pgx.Tx, t *models.Task) error {
		var err error
		if e, err = s.escrow.ReleaseTx(ctx, tx, t.ID, *t.AssigneeID); err != nil {
			return err
		}
		return s.users.IncrementCompletedTasks(ctx, tx, *t.AssigneeID)
	})
	if err != nil {
		return nil, nil, err
	}
	s.events.Award(ctx, events.Award{
		UserID: *t.AssigneeID,
		Reason: fmt.Sprintf("Completed task: %s", t.Title),
		Amount: XPForReward(t.Reward),
	})
	return t, e, nil
}

// OpenDispute contests an ASSIGNED or SUBMITTED task. Either party may open
// one; the task is frozen in DISPUTED until an administrator resolves it.
func (s *TaskService) OpenDispute(ctx context.Context, p models.Principal, taskID uuid.UUID, reason string) (*models.Dispute, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", models.ErrValidation)
	}
	var d *models.Dispute
	_, err := s.transition(ctx, "open_dispute", p, taskID, func(t *models.Task) error {
		isAssignee := t.AssigneeID != nil && *t.AssigneeID == p.ID
		if t.CreatorID != p.ID && !isAssignee {
			return fmt.Errorf("%w: only the creator or the assignee can dispute a task", models.ErrForbidden)
		}
		if t.Status != models.TaskAssigned && t.Status != models.TaskSubmitted {
			return unavailable(t)
		}
		d = &models.Dispute{
			ID:          uuid.New(),
			TaskID:      t.ID,
			InitiatorID: p.ID,
			Reason:      reason,
			Status:      models.DisputeOpen,
			PriorStatus: t.Status,
		}
		t.Status = models.TaskDisputed
		return nil
	}, func(ctx context.Context, tx pgx.Tx, _ *models.Task) error {
		return s.disputes.Create(ctx, tx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// transition locks the task, applies the guard-and-mutate step, runs any
// side effects, then writes the new status conditioned on the old one.
func (s *TaskService) transition(
	ctx context.Context,
	op string,
	p models.Principal,
	taskID uuid.UUID,
	apply func(t *models.Task) error,
	effects func(ctx context.Context, tx pgx.Tx, t *models.Task) error,
) (*models.Task, error) {
	var t *models.Task
	err := s.tx.WithTx(ctx, op, func(ctx context.Context, tx pgx.Tx) error {
		cur, err := s.tasks.GetByIDForUpdate(ctx, tx, taskID)
		if err != nil {
			return err
		}
		from := cur.Status
		if err := apply(cur); err != nil {
			return err
		}
		if effects != nil {
			if err := effects(ctx, tx, cur); err != nil {
				return err
			}
		}
		if err := s.tasks.UpdateStatus(ctx, tx, cur, from); err != nil {
			return err
		}
		t = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("task transition", "op", op, "task_id", t.ID, "status", t.Status, "actor_id", p.ID)
	s.events.TaskChanged(ctx, events.TaskChanged{TaskID: t.ID, Status: string(t.Status), ActorID: p.ID})
	return t, nil
}

func requireOwner(p models.Principal, t *models.Task) error {
	if t.CreatorID != p.ID && !p.IsAdmin() {
		return fmt.Errorf("%w: only the task creator can do this", models.ErrForbidden)
	}
	return nil
}

func unavailable(t *models.Task) error {
	return fmt.Errorf("%w: task %s is %s", models.ErrTaskUnavailable, t.ID, t.Status)
}
