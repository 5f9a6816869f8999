package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a user's permission level.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// PlatformUserID owns the wallet that collects escrow fees and marketplace
// commission. Seeded by the initial migration.
var PlatformUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Principal is the authenticated caller. It is resolved by the request layer
// and passed explicitly into every core operation.
type Principal struct {
	ID   uuid.UUID
	Role Role
}

// IsAdmin reports whether the caller holds the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// SystemPrincipal acts on behalf of the platform itself (background jobs).
func SystemPrincipal() Principal {
	return Principal{ID: PlatformUserID, Role: RoleAdmin}
}

// User is a registered account.
type User struct {
	ID                 uuid.UUID `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	PasswordHash       string    `json:"-"`
	Role               Role      `json:"role"`
	Skills             []string  `json:"skills"`
	XP                 int       `json:"xp"`
	CompletedTasks     int       `json:"completed_tasks"`
	Rating             *float64  `json:"rating,omitempty"`
	AvgResponseMinutes *float64  `json:"avg_response_minutes,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// ContributorStats is the read-only view the assignment ranker scores.
// Rating and AvgResponseMinutes are nil until real history exists.
type ContributorStats struct {
	UserID             uuid.UUID
	XP                 int
	CompletedTasks     int
	Rating             *float64
	AvgResponseMinutes *float64
}

// Assignment score weights.
const (
	ScoreWeightXP        = 0.6
	ScoreWeightCompleted = 2.0
	ScoreWeightRating    = 10.0
)

// ContributorScore = xp*0.6 + completedTasks*2 + rating*10 - avgResponseMinutes/60,
// with the defaults standing in for missing history.
func ContributorScore(c *ContributorStats, defaultRating, defaultResponseMinutes float64) float64 {
	rating := defaultRating
	if c.Rating != nil {
		rating = *c.Rating
	}
	response := defaultResponseMinutes
	if c.AvgResponseMinutes != nil {
		response = *c.AvgResponseMinutes
	}
	return float64(c.XP)*ScoreWeightXP + float64(c.CompletedTasks)*ScoreWeightCompleted + rating*ScoreWeightRating - response/60
}

// ContributorQuery selects assignment candidates. Stores return them in
// descending ContributorScore order so Limit keeps the strongest ones.
type ContributorQuery struct {
	Skill                  string
	ExcludeID              uuid.UUID
	Limit                  int
	DefaultRating          float64
	DefaultResponseMinutes float64
}
