package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ideahub/backend/internal/models"
)

const userColumns = `id, email, name, password_hash, role, skills, xp, completed_tasks, rating, avg_response_minutes, created_at`

// UserRepo stores users in Postgres.
type UserRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepo returns a new UserRepo.
func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.Skills, &u.XP, &u.CompletedTasks, &u.Rating, &u.AvgResponseMinutes, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts u. A duplicate email surfaces as the raw 23505 PgError.
func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	if u.Skills == nil {
		u.Skills = []string{}
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, skills)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.Skills).Scan(&u.CreatedAt)
}

// GetByID returns the user with the given id.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

// GetByEmail returns the user registered under email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

// ListContributors returns ranking inputs for USER accounts other than
// q.ExcludeID, ordered by assignment score so the limit keeps the strongest
// candidates. An empty skill or the default skill matches everyone;
// otherwise the user must list it.
func (r *UserRepo) ListContributors(ctx context.Context, q models.ContributorQuery) ([]*models.ContributorStats, error) {
	skill := q.Skill
	if skill == models.DefaultSkill {
		skill = ""
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, xp, completed_tasks, rating, avg_response_minutes
		FROM users
		WHERE role = 'USER' AND id <> $2 AND ($1 = '' OR $1 = ANY(skills))
		ORDER BY xp * $4::float8
		       + completed_tasks * $5::float8
		       + COALESCE(rating, $6::float8) * $7::float8
		       - COALESCE(avg_response_minutes, $8::float8) / 60 DESC, id
		LIMIT $3
	`, skill, q.ExcludeID, limit,
		models.ScoreWeightXP, models.ScoreWeightCompleted,
		q.DefaultRating, models.ScoreWeightRating, q.DefaultResponseMinutes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ContributorStats
	for rows.Next() {
		var c models.ContributorStats
		if err := rows.Scan(&c.UserID, &c.XP, &c.CompletedTasks, &c.Rating, &c.AvgResponseMinutes); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}

// IncrementCompletedTasks bumps the user's completed task count inside tx.
func (r *UserRepo) IncrementCompletedTasks(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE users SET completed_tasks = completed_tasks + 1 WHERE id = $1`, userID)
	return err
}

// AddXP adds amount to the user's experience points.
func (r *UserRepo) AddXP(ctx context.Context, userID uuid.UUID, amount int) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET xp = xp + $2 WHERE id = $1`, userID, amount)
	return err
}
