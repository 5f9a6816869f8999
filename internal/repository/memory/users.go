package memory

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ideahub/backend/internal/models"
)

type UserRepo struct {
	s *Store
}

func NewUserRepo(s *Store) *UserRepo { return &UserRepo{s: s} }

func (r *UserRepo) Create(_ context.Context, u *models.User) error {
	return r.s.autocommit(func() error {
		for _, other := range r.s.users {
			if other.Email == u.Email {
				return uniqueViolation("users_email_key")
			}
		}
		u.CreatedAt = time.Now().UTC()
		cp := cloneUser(u)
		cp.XP, cp.CompletedTasks, cp.Rating, cp.AvgResponseMinutes = 0, 0, nil, nil
		r.s.users[u.ID] = cp
		return nil
	})
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	var out *models.User
	err := r.s.read(nil, func() error {
		u, ok := r.s.users[id]
		if !ok {
			return fmt.Errorf("%w: user", models.ErrNotFound)
		}
		out = cloneUser(u)
		return nil
	})
	return out, err
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	var out *models.User
	err := r.s.read(nil, func() error {
		for _, u := range r.s.users {
			if u.Email == email {
				out = cloneUser(u)
				return nil
			}
		}
		return fmt.Errorf("%w: user", models.ErrNotFound)
	})
	return out, err
}

func (r *UserRepo) ListContributors(_ context.Context, q models.ContributorQuery) ([]*models.ContributorStats, error) {
	skill := q.Skill
	if skill == models.DefaultSkill {
		skill = ""
	}
	var out []*models.ContributorStats
	err := r.s.read(nil, func() error {
		for _, u := range r.s.users {
			if u.Role != models.RoleUser || u.ID == q.ExcludeID {
				continue
			}
			if skill != "" && !slices.Contains(u.Skills, skill) {
				continue
			}
			out = append(out, &models.ContributorStats{
				UserID: u.ID, XP: u.XP, CompletedTasks: u.CompletedTasks,
				Rating: u.Rating, AvgResponseMinutes: u.AvgResponseMinutes,
			})
		}
		return nil
	})
	score := func(c *models.ContributorStats) float64 {
		return models.ContributorScore(c, q.DefaultRating, q.DefaultResponseMinutes)
	}
	sort.Slice(out, func(i, j int) bool {
		if si, sj := score(out[i]), score(out[j]); si != sj {
			return si > sj
		}
		return bytes.Compare(out[i].UserID[:], out[j].UserID[:]) < 0
	})
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *UserRepo) IncrementCompletedTasks(_ context.Context, tx pgx.Tx, userID uuid.UUID) error {
	return r.s.write(tx, func() (func(), error) {
		u, ok := r.s.users[userID]
		if !ok {
			return nil, nil
		}
		u.CompletedTasks++
		return func() { u.CompletedTasks-- }, nil
	})
}

func (r *UserRepo) AddXP(_ context.Context, userID uuid.UUID, amount int) error {
	return r.s.autocommit(func() error {
		if u, ok := r.s.users[userID]; ok {
			u.XP += amount
		}
		return nil
	})
}
