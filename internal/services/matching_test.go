package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/internal/repository/memory"
)

func f64(v float64) *float64 { return &v }

var testRanker = Ranker{DefaultRating: 4.5, DefaultResponseMinutes: 120}

// ---------------------------------------------------------------------------
// Ranker
// ---------------------------------------------------------------------------

func TestScoreFormula(t *testing.T) {
	c := &models.ContributorStats{XP: 100, CompletedTasks: 3, Rating: f64(4), AvgResponseMinutes: f64(30)}
	// 100*0.6 + 3*2 + 4*10 - 30/60
	if got, want := testRanker.Score(c), 105.5; got != want {
		t.Errorf("Score = %v, want %v", got, want)
	}

	placeholder := &models.ContributorStats{XP: 0}
	// 0 + 0 + 4.5*10 - 120/60
	if got, want := testRanker.Score(placeholder), 43.0; got != want {
		t.Errorf("Score with defaults = %v, want %v", got, want)
	}
}

func TestRankOrdersBestFirst(t *testing.T) {
	low := &models.ContributorStats{UserID: uuid.New(), XP: 10}
	high := &models.ContributorStats{UserID: uuid.New(), XP: 500}
	mid := &models.ContributorStats{UserID: uuid.New(), XP: 10, CompletedTasks: 5}

	ranked := testRanker.Rank([]*models.ContributorStats{low, high, mid})
	got := []uuid.UUID{ranked[0].Stats.UserID, ranked[1].Stats.UserID, ranked[2].Stats.UserID}
	want := []uuid.UUID{high.UserID, mid.UserID, low.UserID}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRankTieBreaksOnLowestUserID(t *testing.T) {
	a := &models.ContributorStats{UserID: uuid.MustParse("00000000-0000-0000-0000-0000000000aa"), XP: 10}
	b := &models.ContributorStats{UserID: uuid.MustParse("00000000-0000-0000-0000-0000000000bb"), XP: 10}

	for _, in := range [][]*models.ContributorStats{{a, b}, {b, a}} {
		best, ok := testRanker.Best(in)
		if !ok || best.UserID != a.UserID {
			t.Errorf("Best: got %v, want %s regardless of input order", best, a.UserID)
		}
	}
}

func TestBestEmpty(t *testing.T) {
	if _, ok := testRanker.Best(nil); ok {
		t.Error("Best(nil) should report no candidate")
	}
}

// ---------------------------------------------------------------------------
// AutoAssign
// ---------------------------------------------------------------------------

func newAssigner(f *fixture) *Assigner {
	return NewAssigner(f.tasks, memory.NewUserRepo(f.store), testRanker, 20, nil)
}

func TestAutoAssignPicksTopContributor(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "100")
	strong, weak := uuid.New(), uuid.New()
	f.store.PutUser(&models.User{ID: strong, Email: "s@example.com", Role: models.RoleUser, XP: 900, Skills: []string{"Design"}})
	f.store.PutUser(&models.User{ID: weak, Email: "w@example.com", Role: models.RoleUser, XP: 10, Skills: []string{"Design"}})
	task := f.createTask(t, creator, "10")

	got, ok, err := newAssigner(f).AutoAssign(context.Background(), creator, task.ID)
	if err != nil || !ok {
		t.Fatalf("AutoAssign: ok=%v err=%v", ok, err)
	}
	if got.Status != models.TaskAssigned || got.AssigneeID == nil || *got.AssigneeID != strong {
		t.Errorf("assigned to %v, want %s", got.AssigneeID, strong)
	}
}

func TestAutoAssignCandidateLimitKeepsStrongest(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "100")
	for i := 0; i < 20; i++ {
		id := uuid.New()
		f.store.PutUser(&models.User{ID: id, Email: id.String() + "@example.com", Role: models.RoleUser, XP: 100})
	}
	// 90*0.6 + 100*2 outscores 100*0.6 despite the lower XP.
	veteran := uuid.New()
	f.store.PutUser(&models.User{ID: veteran, Email: "v@example.com", Role: models.RoleUser, XP: 90, CompletedTasks: 100})
	task := f.createTask(t, creator, "10")

	assigner := NewAssigner(f.tasks, memory.NewUserRepo(f.store), testRanker, 5, nil)
	got, ok, err := assigner.AutoAssign(context.Background(), creator, task.ID)
	if err != nil || !ok {
		t.Fatalf("AutoAssign: ok=%v err=%v", ok, err)
	}
	if got.AssigneeID == nil || *got.AssigneeID != veteran {
		t.Errorf("assigned to %v, want highest scorer %s", got.AssigneeID, veteran)
	}
}

func TestListContributorsExcludesAndOrdersByScore(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "0")
	users := memory.NewUserRepo(f.store)
	if err := users.AddXP(context.Background(), creator.ID, 10000); err != nil {
		t.Fatalf("AddXP: %v", err)
	}
	low, high := uuid.New(), uuid.New()
	f.store.PutUser(&models.User{ID: low, Email: "l@example.com", Role: models.RoleUser, XP: 500})
	f.store.PutUser(&models.User{ID: high, Email: "h@example.com", Role: models.RoleUser, XP: 100, Rating: f64(5), CompletedTasks: 300})

	list, err := users.ListContributors(context.Background(), testRanker.Query("", creator.ID, 1))
	if err != nil {
		t.Fatalf("ListContributors: %v", err)
	}
	if len(list) != 1 || list[0].UserID != high {
		t.Fatalf("got %d candidates, want only %s", len(list), high)
	}
}

func TestAutoAssignSkillFilter(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "100")
	coder := uuid.New()
	f.store.PutUser(&models.User{ID: coder, Email: "c@example.com", Role: models.RoleUser, XP: 5000, Skills: []string{"Go"}})

	task, err := f.tasks.CreateTask(context.Background(), creator, CreateTaskInput{
		Title: "Logo", Description: "Vector logo", Skill: "Illustration", Reward: dec("10"),
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	got, ok, err := newAssigner(f).AutoAssign(context.Background(), creator, task.ID)
	if err != nil {
		t.Fatalf("AutoAssign: %v", err)
	}
	if ok || got.Status != models.TaskPending {
		t.Errorf("no contributor has the skill; got ok=%v status=%s", ok, got.Status)
	}
}

func TestAutoAssignSkipsCreator(t *testing.T) {
	f := newFixture(t)
	creator := f.newUser(t, "100")
	task := f.createTask(t, creator, "10")

	// The creator is the only USER account, so nobody is eligible.
	_, ok, err := newAssigner(f).AutoAssign(context.Background(), creator, task.ID)
	if err != nil || ok {
		t.Errorf("expected no assignment without error, got ok=%v err=%v", ok, err)
	}
}

func TestAutoAssignRequiresPending(t *testing.T) {
	f := newFixture(t)
	creator, _, task := assigned(t, f, "10")
	_, _, err := newAssigner(f).AutoAssign(context.Background(), creator, task.ID)
	if !errors.Is(err, models.ErrTaskUnavailable) {
		t.Errorf("expected ErrTaskUnavailable, got %v", err)
	}
	stranger := f.newUser(t, "0")
	pending := f.createTask(t, creator, "1")
	if _, _, err := newAssigner(f).AutoAssign(context.Background(), stranger, pending.ID); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("stranger: expected ErrForbidden, got %v", err)
	}
}
