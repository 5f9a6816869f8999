package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/ideahub/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeAssigner struct {
	mu    sync.Mutex
	calls []uuid.UUID
	who   []models.Principal
	ok    bool
	err   error
}

func (f *fakeAssigner) AutoAssign(_ context.Context, p models.Principal, taskID uuid.UUID) (*models.Task, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, taskID)
	f.who = append(f.who, p)
	if f.err != nil {
		return nil, false, f.err
	}
	return &models.Task{ID: taskID}, f.ok, nil
}

type fakeInserter struct {
	args []river.JobArgs
}

func (f *fakeInserter) Insert(_ context.Context, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	f.args = append(f.args, args)
	return &rivertype.JobInsertResult{}, nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestWorkerOutcomes(t *testing.T) {
	cases := []struct {
		name    string
		a       *fakeAssigner
		wantErr bool
	}{
		{"assigned", &fakeAssigner{ok: true}, false},
		{"no candidate", &fakeAssigner{ok: false}, false},
		{"already claimed", &fakeAssigner{err: models.ErrTaskUnavailable}, false},
		{"task gone", &fakeAssigner{err: models.ErrNotFound}, false},
		{"storage failure", &fakeAssigner{err: errors.New("conn reset")}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := NewAutoAssignWorker(tc.a, quiet())
			task := uuid.New()
			err := w.Work(context.Background(), &river.Job[AutoAssignArgs]{Args: AutoAssignArgs{TaskID: task}})
			if (err != nil) != tc.wantErr {
				t.Errorf("Work: err=%v, wantErr=%v", err, tc.wantErr)
			}
			if len(tc.a.calls) != 1 || tc.a.calls[0] != task {
				t.Errorf("calls: %v", tc.a.calls)
			}
			if tc.a.who[0].ID != models.PlatformUserID || !tc.a.who[0].IsAdmin() {
				t.Errorf("worker should act as the system principal, got %+v", tc.a.who[0])
			}
		})
	}
}

func TestRiverQueueInsertsArgs(t *testing.T) {
	ins := &fakeInserter{}
	task := uuid.New()
	if err := NewRiverQueue(ins).EnqueueAutoAssign(context.Background(), task); err != nil {
		t.Fatalf("EnqueueAutoAssign: %v", err)
	}
	if len(ins.args) != 1 {
		t.Fatalf("inserted: %d", len(ins.args))
	}
	if got, ok := ins.args[0].(AutoAssignArgs); !ok || got.TaskID != task {
		t.Errorf("args: %#v", ins.args[0])
	}
}

func TestInlineQueueRunsAfterCancel(t *testing.T) {
	a := &fakeAssigner{ok: true}
	q := NewInlineQueue(a, quiet())
	ctx, cancel := context.WithCancel(context.Background())
	task := uuid.New()
	if err := q.EnqueueAutoAssign(ctx, task); err != nil {
		t.Fatalf("EnqueueAutoAssign: %v", err)
	}
	cancel()
	q.Wait()
	if len(a.calls) != 1 || a.calls[0] != task {
		t.Errorf("calls: %v", a.calls)
	}
}
