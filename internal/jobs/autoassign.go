// Package jobs schedules automatic task assignment.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/ideahub/backend/internal/models"
)

// AutoAssignArgs is the River job that ranks contributors for one task.
type AutoAssignArgs struct {
	TaskID uuid.UUID `json:"task_id"`
}

func (AutoAssignArgs) Kind() string { return "auto_assign" }

func (AutoAssignArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 5,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

// Assigner is implemented by services.Assigner.
type Assigner interface {
	AutoAssign(ctx context.Context, p models.Principal, taskID uuid.UUID) (*models.Task, bool, error)
}

// AutoAssignWorker runs auto-assignment jobs pulled from the River queue.
type AutoAssignWorker struct {
	river.WorkerDefaults[AutoAssignArgs]
	assigner Assigner
	logger   *slog.Logger
}

// NewAutoAssignWorker returns a new AutoAssignWorker.
func NewAutoAssignWorker(a Assigner, logger *slog.Logger) *AutoAssignWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoAssignWorker{assigner: a, logger: logger}
}

// Work assigns the task named in the job. A task that is no longer
// pending is not an error.
func (w *AutoAssignWorker) Work(ctx context.Context, job *river.Job[AutoAssignArgs]) error {
	return run(ctx, w.assigner, w.logger, job.Args.TaskID)
}

// run performs one attempt. A task that is no longer PENDING, or has no
// eligible contributor, is a finished job rather than a failure.
func run(ctx context.Context, a Assigner, logger *slog.Logger, taskID uuid.UUID) error {
	t, ok, err := a.AutoAssign(ctx, models.SystemPrincipal(), taskID)
	switch {
	case errors.Is(err, models.ErrTaskUnavailable), errors.Is(err, models.ErrNotFound):
		logger.Info("auto-assign skipped", "task_id", taskID, "reason", err)
		return nil
	case err != nil:
		return fmt.Errorf("auto-assign task %s: %w", taskID, err)
	case !ok:
		logger.Info("auto-assign found no contributor", "task_id", taskID)
		return nil
	}
	logger.Info("task auto-assigned", "task_id", taskID, "assignee_id", t.AssigneeID)
	return nil
}

// Inserter is the part of river.Client the queue needs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// RiverQueue schedules auto-assign jobs on River.
type RiverQueue struct {
	client Inserter
}

// NewRiverQueue returns a queue backed by the River client.
func NewRiverQueue(client Inserter) *RiverQueue { return &RiverQueue{client: client} }

// EnqueueAutoAssign inserts an auto-assign job for taskID.
func (q *RiverQueue) EnqueueAutoAssign(ctx context.Context, taskID uuid.UUID) error {
	_, err := q.client.Insert(ctx, AutoAssignArgs{TaskID: taskID}, nil)
	return err
}

// InlineQueue runs auto-assign in a goroutine. Used with the in-memory store,
// where no job queue is available. Wait blocks until in-flight runs finish.
type InlineQueue struct {
	assigner Assigner
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewInlineQueue returns a queue that assigns in a goroutine.
func NewInlineQueue(a Assigner, logger *slog.Logger) *InlineQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &InlineQueue{assigner: a, logger: logger}
}

// EnqueueAutoAssign starts assignment of taskID in the background.
func (q *InlineQueue) EnqueueAutoAssign(ctx context.Context, taskID uuid.UUID) error {
	ctx = context.WithoutCancel(ctx)
	q.wg.Go(func() {
		if err := run(ctx, q.assigner, q.logger, taskID); err != nil {
			q.logger.Error("auto-assign failed", "task_id", taskID, "error", err)
		}
	})
	return nil
}

// Wait blocks until every started assignment has returned.
func (q *InlineQueue) Wait() { q.wg.Wait() }
