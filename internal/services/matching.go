package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/ideahub/backend/internal/models"
)

// ContributorSource lists ranking inputs for contributors matching a query,
// strongest first.
type ContributorSource interface {
	ListContributors(ctx context.Context, q models.ContributorQuery) ([]*models.ContributorStats, error)
}

// Ranker scores contributors for auto-assignment. Contributors without a
// rating or response time history get the configured defaults.
type Ranker struct {
	DefaultRating          float64
	DefaultResponseMinutes float64
}

// Candidate is a scored contributor.
type Candidate struct {
	Stats *models.ContributorStats
	Score float64
}

// Score = xp*0.6 + completedTasks*2 + rating*10 - avgResponseMinutes/60.
func (r Ranker) Score(c *models.ContributorStats) float64 {
	return models.ContributorScore(c, r.DefaultRating, r.DefaultResponseMinutes)
}

// Query builds the candidate query for a task, carrying the ranker's defaults
// so stores order candidates the same way Rank does.
func (r Ranker) Query(skill string, exclude uuid.UUID, limit int) models.ContributorQuery {
	return models.ContributorQuery{
		Skill:                  skill,
		ExcludeID:              exclude,
		Limit:                  limit,
		DefaultRating:          r.DefaultRating,
		DefaultResponseMinutes: r.DefaultResponseMinutes,
	}
}

// Rank orders contributors best first. Equal scores are ordered by user id
// (byte order, lowest first) so the outcome never depends on input order.
func (r Ranker) Rank(contributors []*models.ContributorStats) []Candidate {
	out := make([]Candidate, 0, len(contributors))
	for _, c := range contributors {
		out = append(out, Candidate{Stats: c, Score: r.Score(c)})
	}
	slices.SortFunc(out, func(a, b Candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return bytes.Compare(a.Stats.UserID[:], b.Stats.UserID[:])
	})
	return out
}

// Best returns the top contributor, or false when there are none.
func (r Ranker) Best(contributors []*models.ContributorStats) (*models.ContributorStats, bool) {
	ranked := r.Rank(contributors)
	if len(ranked) == 0 {
		return nil, false
	}
	return ranked[0].Stats, true
}

// Assigner picks the best contributor for a PENDING task and claims it on
// their behalf through the same compare-and-set as a manual claim.
type Assigner struct {
	tasks          *TaskService
	contributors   ContributorSource
	ranker         Ranker
	candidateLimit int
	logger         *slog.Logger
}

// NewAssigner returns an Assigner that considers at most candidateLimit
// contributors per task.
func NewAssigner(tasks *TaskService, contributors ContributorSource, ranker Ranker, candidateLimit int, logger *slog.Logger) *Assigner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assigner{tasks: tasks, contributors: contributors, ranker: ranker, candidateLimit: candidateLimit, logger: logger}
}

// AutoAssign returns the claimed task and true, or the unchanged task and
// false when no contributor is eligible. Losing a race to a manual claim
// yields ErrTaskUnavailable.
func (a *Assigner) AutoAssign(ctx context.Context, p models.Principal, taskID uuid.UUID) (*models.Task, bool, error) {
	t, err := a.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, false, err
	}
	if err := requireOwner(p, t); err != nil {
		return nil, false, err
	}
	if t.Status != models.TaskPending {
		return nil, false, unavailable(t)
	}

	eligible, err := a.contributors.ListContributors(ctx, a.ranker.Query(t.Skill, t.CreatorID, a.candidateLimit))
	if err != nil {
		return nil, false, fmt.Errorf("list contributors: %w", err)
	}
	best, ok := a.ranker.Best(eligible)
	if !ok {
		a.logger.Info("no eligible contributor", "task_id", taskID, "skill", t.Skill)
		return t, false, nil
	}

	claimed, err := a.tasks.claim(ctx, "auto_assign", taskID, best.UserID, p.ID)
	if err != nil {
		return nil, false, err
	}
	return claimed, true, nil
}
