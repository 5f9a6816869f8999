package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskAssigned  TaskStatus = "ASSIGNED"
	TaskSubmitted TaskStatus = "SUBMITTED"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskDisputed  TaskStatus = "DISPUTED"
	TaskRefunded  TaskStatus = "REFUNDED"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskAssigned, TaskSubmitted, TaskCompleted, TaskDisputed, TaskRefunded:
		return true
	}
	return false
}

// DefaultSkill marks a task any contributor may take.
const DefaultSkill = "General"

// Task is a unit of funded work.
type Task struct {
	ID              uuid.UUID       `json:"id"`
	IdeaID          uuid.UUID       `json:"idea_id"`
	CreatorID       uuid.UUID       `json:"creator_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Skill           string          `json:"skill"`
	Reward          decimal.Decimal `json:"reward"`
	DeliveryDays    int             `json:"delivery_days"`
	Status          TaskStatus      `json:"status"`
	AssigneeID      *uuid.UUID      `json:"assignee_id,omitempty"`
	SubmissionURL   string          `json:"submission_url,omitempty"`
	SubmissionNotes string          `json:"submission_notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TaskFilter narrows a task listing.
type TaskFilter struct {
	Status TaskStatus
	Limit  int
}
