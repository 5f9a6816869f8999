package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ideahub/backend/internal/models"
)

// TaskRepo keeps tasks in the Store.
type TaskRepo struct {
	s *Store
}

// NewTaskRepo returns a TaskRepo over s.
func NewTaskRepo(s *Store) *TaskRepo { return &TaskRepo{s: s} }

// Create stores t inside tx.
func (r *TaskRepo) Create(_ context.Context, tx pgx.Tx, t *models.Task) error {
	return r.s.write(tx, func() (func(), error) {
		now := time.Now().UTC()
		t.CreatedAt, t.UpdatedAt = now, now
		r.s.tasks[t.ID] = cloneTask(t)
		return func() { delete(r.s.tasks, t.ID) }, nil
	})
}

// GetByID returns the task with the given id.
func (r *TaskRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	return r.get(nil, id)
}

// GetByIDForUpdate reads the task inside tx.
func (r *TaskRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	return r.get(tx, id)
}

func (r *TaskRepo) get(tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	var out *models.Task
	err := r.s.read(tx, func() error {
		t, ok := r.s.tasks[id]
		if !ok {
			return fmt.Errorf("%w: task", models.ErrNotFound)
		}
		out = cloneTask(t)
		return nil
	})
	return out, err
}

// List returns tasks matching f, newest first.
func (r *TaskRepo) List(_ context.Context, f models.TaskFilter) ([]*models.Task, error) {
	var out []*models.Task
	err := r.s.read(nil, func() error {
		for _, t := range r.s.tasks {
			if f.Status == "" || t.Status == f.Status {
				out = append(out, cloneTask(t))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// Claim assigns a pending task to assigneeID. It returns
// ErrTaskUnavailable when the task is no longer pending.
func (r *TaskRepo) Claim(_ context.Context, tx pgx.Tx, taskID, assigneeID uuid.UUID) (*models.Task, error) {
	var out *models.Task
	err := r.s.write(tx, func() (func(), error) {
		t, ok := r.s.tasks[taskID]
		if !ok {
			return nil, fmt.Errorf("%w: task", models.ErrNotFound)
		}
		if t.CreatorID == assigneeID {
			return nil, fmt.Errorf("%w: creators cannot claim their own task", models.ErrForbidden)
		}
		if t.Status != models.TaskPending {
			return nil, fmt.Errorf("%w: task is %s", models.ErrTaskUnavailable, t.Status)
		}
		prev := cloneTask(t)
		t.Status, t.AssigneeID, t.UpdatedAt = models.TaskAssigned, uuidPtr(assigneeID), time.Now().UTC()
		out = cloneTask(t)
		return func() { r.s.tasks[taskID] = prev }, nil
	})
	return out, err
}

// UpdateStatus writes t when the stored status still equals from.
func (r *TaskRepo) UpdateStatus(_ context.Context, tx pgx.Tx, t *models.Task, from models.TaskStatus) error {
	return r.s.write(tx, func() (func(), error) {
		cur, ok := r.s.tasks[t.ID]
		if !ok || cur.Status != from {
			return nil, fmt.Errorf("%w: task %s is no longer %s", models.ErrTaskUnavailable, t.ID, from)
		}
		prev := cloneTask(cur)
		t.UpdatedAt = time.Now().UTC()
		cur.Status, cur.AssigneeID, cur.SubmissionURL, cur.SubmissionNotes, cur.UpdatedAt = t.Status, t.AssigneeID, t.SubmissionURL, t.SubmissionNotes, t.UpdatedAt
		return func() { r.s.tasks[t.ID] = prev }, nil
	})
}

// DisputeRepo keeps disputes in the Store.
type DisputeRepo struct {
	s *Store
}

// NewDisputeRepo returns a DisputeRepo over s.
func NewDisputeRepo(s *Store) *DisputeRepo { return &DisputeRepo{s: s} }

// Create stores d inside tx.
func (r *DisputeRepo) Create(_ context.Context, tx pgx.Tx, d *models.Dispute) error {
	return r.s.write(tx, func() (func(), error) {
		for _, other := range r.s.disputes {
			if other.TaskID == d.TaskID && other.Status == models.DisputeOpen {
				return nil, fmt.Errorf("%w: task %s already has an open dispute", models.ErrTaskUnavailable, d.TaskID)
			}
		}
		d.CreatedAt = time.Now().UTC()
		r.s.disputes[d.ID] = cloneDispute(d)
		return func() { delete(r.s.disputes, d.ID) }, nil
	})
}

// GetByID returns the dispute with the given id.
func (r *DisputeRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	return r.get(nil, id)
}

// GetByIDForUpdate reads the dispute inside tx.
func (r *DisputeRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	return r.get(tx, id)
}

func (r *DisputeRepo) get(tx pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	var out *models.Dispute
	err := r.s.read(tx, func() error {
		d, ok := r.s.disputes[id]
		if !ok {
			return fmt.Errorf("%w: dispute", models.ErrNotFound)
		}
		out = cloneDispute(d)
		return nil
	})
	return out, err
}

// ListOpen returns unresolved disputes, oldest first.
func (r *DisputeRepo) ListOpen(_ context.Context) ([]*models.Dispute, error) {
	var out []*models.Dispute
	err := r.s.read(nil, func() error {
		for _, d := range r.s.disputes {
			if d.Status == models.DisputeOpen {
				out = append(out, cloneDispute(d))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

// Resolve records the ruling inside tx.
func (r *DisputeRepo) Resolve(_ context.Context, tx pgx.Tx, d *models.Dispute) error {
	return r.s.write(tx, func() (func(), error) {
		cur, ok := r.s.disputes[d.ID]
		if !ok || cur.Status != models.DisputeOpen {
			return nil, fmt.Errorf("%w: dispute %s", models.ErrAlreadyResolved, d.ID)
		}
		prev := cloneDispute(cur)
		d.Status = models.DisputeResolved
		d.ResolvedAt = timePtr(time.Now().UTC())
		cur.Status, cur.Resolution, cur.ResolvedBy, cur.ResolvedAt = d.Status, d.Resolution, d.ResolvedBy, d.ResolvedAt
		return func() { r.s.disputes[d.ID] = prev }, nil
	})
}
