package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ideahub/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreateTaskLocksReward(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "1000")

	task := f.createTask(t, creator, "100")

	if task.Status != models.TaskPending || task.Skill != models.DefaultSkill || task.DeliveryDays != 1 {
		t.Errorf("defaults: got status=%s skill=%q days=%d", task.Status, task.Skill, task.DeliveryDays)
	}
	f.wantWallet(t, creator.ID, "900", "100")
	e, err := f.escrow.GetEscrow(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetEscrow: %v", err)
	}
	if e.PayerID != creator.ID || !e.Amount.Equal(dec("100")) {
		t.Errorf("escrow: got %+v", e)
	}
}

func TestCreateTaskInsufficientFundsLeavesNoTask(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "50")

	_, err := f.tasks.CreateTask(context.Background(), creator, CreateTaskInput{
		Title: "t", Description: "d", Reward: dec("51"),
	})
	if !errors.Is(err, models.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	list, err := f.tasks.ListTasks(context.Background(), models.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("task should not persist when the escrow fails, got %d", len(list))
	}
	f.wantWallet(t, creator.ID, "50", "0")
}

func TestCreateTaskValidation(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "10")
	cases := []struct {
		name string
		in   CreateTaskInput
	}{
		{"missing title", CreateTaskInput{Description: "d", Reward: dec("1")}},
		{"missing description", CreateTaskInput{Title: "t", Reward: dec("1")}},
		{"zero reward", CreateTaskInput{Title: "t", Description: "d", Reward: dec("0")}},
		{"negative days", CreateTaskInput{Title: "t", Description: "d", Reward: dec("1"), DeliveryDays: -1}},
		{"sub-cent reward", CreateTaskInput{Title: "t", Description: "d", Reward: dec("0.33335")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.tasks.CreateTask(context.Background(), creator, tc.in); !errors.Is(err, models.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
	f.wantWallet(t, creator.ID, "10", "0")
}

func TestCreateTaskDeliveryDays(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "10")
	_, err := f.tasks.CreateTask(context.Background(), creator, CreateTaskInput{
		Title: "t", Description: "d", Reward: dec("1"), DeliveryDays: -2,
	})
	if err == nil || !strings.Contains(err.Error(), "must not be negative") {
		t.Errorf("negative days: got %v", err)
	}
	task := f.createTask(t, creator, "1")
	if task.DeliveryDays != 1 {
		t.Errorf("omitted delivery days should default to 1, got %d", task.DeliveryDays)
	}
}

func TestCreateTaskKeepsTrailingZeros(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "10")
	f.createTask(t, creator, "2.50000")
	f.wantWallet(t, creator.ID, "7.5", "2.5")
}

type fakeQueue struct{ queued []uuid.UUID }

func (q *fakeQueue) EnqueueAutoAssign(_ context.Context, taskID uuid.UUID) error {
	q.queued = append(q.queued, taskID)
	return nil
}

func TestCreateTaskSchedulesAutoAssign(t *testing.T) {
	f := newFixture(t)
	q := &fakeQueue{}
	f.tasks.SetAssignQueue(q)
	creator := f.newUser(t, "10")

	task, err := f.tasks.CreateTask(context.Background(), creator, CreateTaskInput{
		Title: "t", Description: "d", Reward: dec("5"), AutoAssign: true,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if len(q.queued) != 1 || q.queued[0] != task.ID {
		t.Errorf("queued: got %v, want [%s]", q.queued, task.ID)
	}
	f.createTask(t, creator, "1")
	if len(q.queued) != 1 {
		t.Error("tasks without auto_assign must not be queued")
	}
}

// ---------------------------------------------------------------------------
// Claim
// ---------------------------------------------------------------------------

func TestConcurrentClaimsOneWinner(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "100")
	task := f.createTask(t, creator, "10")

	const claimants = 10
	users := make([]models.Principal, claimants)
	for i := range users {
		users[i] = f.newUser(t, "0")
	}
	errs := make([]error, claimants)
	var g errgroup.Group
	for i := range claimants {
		g.Go(func() error {
			_, errs[i] = f.tasks.Claim(context.Background(), users[i], task.ID)
			return nil
		})
	}
	_ = g.Wait()

	var winner *models.Principal
	for i, err := range errs {
		switch {
		case err == nil:
			if winner != nil {
				t.Fatal("more than one claim succeeded")
			}
			winner = &users[i]
		case !errors.Is(err, models.ErrTaskUnavailable):
			t.Errorf("loser %d: expected ErrTaskUnavailable, got %v", i, err)
		}
	}
	if winner == nil {
		t.Fatal("no claim succeeded")
	}
	got, err := f.tasks.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != models.TaskAssigned || got.AssigneeID == nil || *got.AssigneeID != winner.ID {
		t.Errorf("task after race: status=%s assignee=%v, want ASSIGNED by %s", got.Status, got.AssigneeID, winner.ID)
	}
}

func TestCreatorCannotClaim(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "10")
	task := f.createTask(t, creator, "5")
	if _, err := f.tasks.Claim(context.Background(), creator, task.ID); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Submit / revision / approve
// ---------------------------------------------------------------------------

// assigned returns a task claimed by a fresh contributor.
func assigned(t *testing.T, f *fixture, reward string) (creator, contributor models.Principal, task *models.Task) {
	t.Helper()
	creator = f.newUser(t, "1000")
	contributor = f.newUser(t, "0")
	task = f.createTask(t, creator, reward)
	if _, err := f.tasks.Claim(context.Background(), contributor, task.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	return creator, contributor, task
}

func TestSubmitRules(t *testing.T) {
	f := newFixture(t)
	creator, contributor, task := assigned(t, f, "10")
	ctx := context.Background()

	if _, err := f.tasks.Submit(ctx, creator, task.ID, "https://example.com/w", ""); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("non-assignee submit: expected ErrForbidden, got %v", err)
	}
	if _, err := f.tasks.Submit(ctx, contributor, task.ID, " ", ""); !errors.Is(err, models.ErrValidation) {
		t.Errorf("blank url: expected ErrValidation, got %v", err)
	}
	got, err := f.tasks.Submit(ctx, contributor, task.ID, "https://example.com/w", "done")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Status != models.TaskSubmitted || got.SubmissionURL != "https://example.com/w" || got.SubmissionNotes != "done" {
		t.Errorf("after submit: %+v", got)
	}
	if _, err := f.tasks.Submit(ctx, contributor, task.ID, "https://example.com/w", ""); !errors.Is(err, models.ErrTaskUnavailable) {
		t.Errorf("double submit: expected ErrTaskUnavailable, got %v", err)
	}
}

func TestRequestRevision(t *testing.T) {
	f := newFixture(t)
	creator, contributor, task := assigned(t, f, "10")
	ctx := context.Background()

	if _, err := f.tasks.RequestRevision(ctx, creator, task.ID); !errors.Is(err, models.ErrTaskUnavailable) {
		t.Errorf("revision before submit: expected ErrTaskUnavailable, got %v", err)
	}
	if _, err := f.tasks.Submit(ctx, contributor, task.ID, "https://example.com/w", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.tasks.RequestRevision(ctx, contributor, task.ID); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("revision by assignee: expected ErrForbidden, got %v", err)
	}
	got, err := f.tasks.RequestRevision(ctx, creator, task.ID)
	if err != nil {
		t.Fatalf("RequestRevision: %v", err)
	}
	if got.Status != models.TaskAssigned || got.AssigneeID == nil || *got.AssigneeID != contributor.ID {
		t.Errorf("after revision: status=%s assignee=%v", got.Status, got.AssigneeID)
	}
	f.wantWallet(t, creator.ID, "990", "10")
}

func TestApprovePaysAndAwards(t *testing.T) {
	f := newFixture(t)
	creator, contributor, task := assigned(t, f, "100")
	ctx := context.Background()

	if _, err := f.tasks.Submit(ctx, contributor, task.ID, "https://example.com/w", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got, err := f.tasks.Approve(ctx, creator, task.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got.Status != models.TaskCompleted {
		t.Errorf("status: got %s", got.Status)
	}
	f.wantWallet(t, creator.ID, "900", "0")
	f.wantWallet(t, contributor.ID, "95", "0")
	f.wantWallet(t, models.PlatformUserID, "5", "0")

	if len(f.emitter.awards) != 1 {
		t.Fatalf("awards: got %d, want 1", len(f.emitter.awards))
	}
	if a := f.emitter.awards[0]; a.UserID != contributor.ID || a.Amount != 1000 {
		t.Errorf("award: got %+v", a)
	}
}

func TestApproveFailureKeepsSubmitted(t *testing.T) {
	f := newFixture(t)
	creator, contributor, task := assigned(t, f, "100")
	ctx := context.Background()
	if _, err := f.tasks.Submit(ctx, contributor, task.ID, "https://example.com/w", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// Settle the escrow out of band so the release inside Approve fails.
	if _, err := f.escrow.RefundEscrow(ctx, task.ID); err != nil {
		t.Fatalf("RefundEscrow: %v", err)
	}

	if _, err := f.tasks.Approve(ctx, creator, task.ID); !errors.Is(err, models.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	got, err := f.tasks.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != models.TaskSubmitted {
		t.Errorf("status after failed approve: got %s, want SUBMITTED", got.Status)
	}
	if len(f.emitter.awards) != 0 {
		t.Error("no award may fire when approve fails")
	}
	f.wantWallet(t, contributor.ID, "0", "0")
}

func TestApproveRequiresSubmitted(t *testing.T) {
	f := newFixture(t)
	creator, contributor, task := assigned(t, f, "10")
	ctx := context.Background()
	if _, err := f.tasks.Approve(ctx, creator, task.ID); !errors.Is(err, models.ErrTaskUnavailable) {
		t.Errorf("approve while ASSIGNED: expected ErrTaskUnavailable, got %v", err)
	}
	if _, err := f.tasks.Submit(ctx, contributor, task.ID, "https://example.com/w", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.tasks.Approve(ctx, contributor, task.ID); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("approve by assignee: expected ErrForbidden, got %v", err)
	}
	if _, err := f.tasks.Approve(ctx, admin(), task.ID); err != nil {
		t.Errorf("approve by admin: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Administrative escrow settlement
// ---------------------------------------------------------------------------

func TestAdminReleaseFollowsTaskState(t *testing.T) {
	f := newFixture(t)
	creator, contributor, task := assigned(t, f, "100")
	ctx := context.Background()

	if _, err := f.tasks.ReleaseEscrow(ctx, creator, task.ID); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("release by creator: expected ErrForbidden, got %v", err)
	}
	if _, err := f.tasks.ReleaseEscrow(ctx, admin(), task.ID); !errors.Is(err, models.ErrTaskUnavailable) {
		t.Errorf("release while ASSIGNED: expected ErrTaskUnavailable, got %v", err)
	}
	pending := f.createTask(t, creator, "10")
	if _, err := f.tasks.ReleaseEscrow(ctx, admin(), pending.ID); !errors.Is(err, models.ErrTaskUnavailable) {
		t.Errorf("release while PENDING: expected ErrTaskUnavailable, got %v", err)
	}
	f.wantWallet(t, creator.ID, "890", "110")

	if _, err := f.tasks.Submit(ctx, contributor, task.ID, "https://example.com/w", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	e, err := f.tasks.ReleaseEscrow(ctx, admin(), task.ID)
	if err != nil {
		t.Fatalf("ReleaseEscrow: %v", err)
	}
	if e.Status != models.EscrowReleased || e.ContributorID == nil || *e.ContributorID != contributor.ID {
		t.Errorf("escrow after release: %+v", e)
	}
	got, _ := f.tasks.GetTask(ctx, task.ID)
	if got.Status != models.TaskCompleted {
		t.Errorf("task after release: got %s, want COMPLETED", got.Status)
	}
	f.wantWallet(t, contributor.ID, "95", "0")
	if len(f.emitter.awards) != 1 || len(f.emitter.admin) != 1 {
		t.Errorf("events: awards=%d admin=%d, want 1 and 1", len(f.emitter.awards), len(f.emitter.admin))
	}
}

func TestAdminRefundEndsTask(t *testing.T) {
	f := newFixture(t)
	creator, contributor, task := assigned(t, f, "100")
	ctx := context.Background()

	if _, err := f.tasks.RefundEscrow(ctx, contributor, task.ID); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("refund by contributor: expected ErrForbidden, got %v", err)
	}
	e, err := f.tasks.RefundEscrow(ctx, admin(), task.ID)
	if err != nil {
		t.Fatalf("RefundEscrow: %v", err)
	}
	if e.Status != models.EscrowRefunded {
		t.Errorf("escrow status: got %s", e.Status)
	}
	got, _ := f.tasks.GetTask(ctx, task.ID)
	if got.Status != models.TaskRefunded {
		t.Fatalf("task after refund: got %s, want REFUNDED", got.Status)
	}
	f.wantWallet(t, creator.ID, "1000", "0")

	// A refunded task is terminal for every later transition.
	if _, err := f.tasks.Submit(ctx, contributor, task.ID, "https://example.com/w", ""); !errors.Is(err, models.ErrTaskUnavailable) {
		t.Errorf("submit after refund: expected ErrTaskUnavailable, got %v", err)
	}
	if _, err := f.tasks.ReleaseEscrow(ctx, admin(), task.ID); !errors.Is(err, models.ErrTaskUnavailable) {
		t.Errorf("release after refund: expected ErrTaskUnavailable, got %v", err)
	}
	if _, err := f.tasks.RefundEscrow(ctx, admin(), task.ID); !errors.Is(err, models.ErrTaskUnavailable) {
		t.Errorf("second refund: expected ErrTaskUnavailable, got %v", err)
	}
	f.wantWallet(t, contributor.ID, "0", "0")
}

func TestAdminRefundOfPendingTaskBlocksClaim(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "50")
	contributor := f.newUser(t, "0")
	task := f.createTask(t, creator, "20")
	ctx := context.Background()

	if _, err := f.tasks.RefundEscrow(ctx, admin(), task.ID); err != nil {
		t.Fatalf("RefundEscrow: %v", err)
	}
	if _, err := f.tasks.Claim(ctx, contributor, task.ID); !errors.Is(err, models.ErrTaskUnavailable) {
		t.Errorf("claim after refund: expected ErrTaskUnavailable, got %v", err)
	}
	f.wantWallet(t, creator.ID, "50", "0")
}

func TestAdminRefundLeavesDisputesToResolver(t *testing.T) {
	f := newFixture(t)
	creator, _, task := assigned(t, f, "10")
	ctx := context.Background()
	if _, err := f.tasks.OpenDispute(ctx, creator, task.ID, "late"); err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}
	if _, err := f.tasks.RefundEscrow(ctx, admin(), task.ID); !errors.Is(err, models.ErrTaskUnavailable) {
		t.Errorf("refund of disputed task: expected ErrTaskUnavailable, got %v", err)
	}
	f.wantWallet(t, creator.ID, "990", "10")
}

func TestXPForReward(t *testing.T) {
	cases := map[string]int{"1": 50, "4.99": 50, "5": 50, "5.09": 50, "7.5": 75, "100": 1000}
	for reward, want := range cases {
		if got := XPForReward(dec(reward)); got != want {
			t.Errorf("XPForReward(%s) = %d, want %d", reward, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Disputes
// ---------------------------------------------------------------------------

func TestOpenDispute(t *testing.T) {
	f := newFixture(t)
	creator, contributor, task := assigned(t, f, "10")
	ctx := context.Background()
	outsider := f.newUser(t, "0")

	if _, err := f.tasks.OpenDispute(ctx, outsider, task.ID, "spam"); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("outsider: expected ErrForbidden, got %v", err)
	}
	if _, err := f.tasks.OpenDispute(ctx, creator, task.ID, ""); !errors.Is(err, models.ErrValidation) {
		t.Errorf("no reason: expected ErrValidation, got %v", err)
	}
	d, err := f.tasks.OpenDispute(ctx, contributor, task.ID, "creator unresponsive")
	if err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}
	if d.Status != models.DisputeOpen || d.PriorStatus != models.TaskAssigned || d.InitiatorID != contributor.ID {
		t.Errorf("dispute: %+v", d)
	}
	got, _ := f.tasks.GetTask(ctx, task.ID)
	if got.Status != models.TaskDisputed {
		t.Errorf("task status: got %s", got.Status)
	}
	if _, err := f.tasks.OpenDispute(ctx, creator, task.ID, "again"); !errors.Is(err, models.ErrTaskUnavailable) {
		t.Errorf("second dispute: expected ErrTaskUnavailable, got %v", err)
	}
	f.wantWallet(t, creator.ID, "990", "10")
}

func TestOpenDisputeOnPendingTask(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "10")
	task := f.createTask(t, creator, "5")
	if _, err := f.tasks.OpenDispute(context.Background(), creator, task.ID, "changed my mind"); !errors.Is(err, models.ErrTaskUnavailable) {
		t.Errorf("expected ErrTaskUnavailable, got %v", err)
	}
}
