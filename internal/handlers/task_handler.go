package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/internal/services"
)

// TaskService is the task lifecycle as the handler sees it.
type TaskService interface {
	CreateTask(ctx context.Context, p models.Principal, in services.CreateTaskInput) (*models.Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListTasks(ctx context.Context, f models.TaskFilter) ([]*models.Task, error)
	Claim(ctx context.Context, p models.Principal, taskID uuid.UUID) (*models.Task, error)
	Submit(ctx context.Context, p models.Principal, taskID uuid.UUID, submissionURL, notes string) (*models.Task, error)
	RequestRevision(ctx context.Context, p models.Principal, taskID uuid.UUID) (*models.Task, error)
	Approve(ctx context.Context, p models.Principal, taskID uuid.UUID) (*models.Task, error)
	OpenDispute(ctx context.Context, p models.Principal, taskID uuid.UUID, reason string) (*models.Dispute, error)
}

// AutoAssigner ranks contributors and assigns the best one.
type AutoAssigner interface {
	AutoAssign(ctx context.Context, p models.Principal, taskID uuid.UUID) (*models.Task, bool, error)
}

// TaskHandler serves /api/v1/tasks endpoints.
type TaskHandler struct {
	Tasks     TaskService
	Assigner  AutoAssigner
	Validator *services.Validator
	Logger    *slog.Logger
}

// --- POST /api/v1/tasks ---

type createTaskRequest struct {
	IdeaID       string          `json:"idea_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Skill        string          `json:"skill"`
	Reward       decimal.Decimal `json:"reward"`
	DeliveryDays int             `json:"delivery_days"`
	AutoAssign   bool            `json:"auto_assign"`
}

// CreateTask handles POST /api/v1/tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := decode(r, h.Validator, services.SchemaCreateTask, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	ideaID, err := parseID(req.IdeaID, "idea_id")
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	t, err := h.Tasks.CreateTask(r.Context(), p, services.CreateTaskInput{
		IdeaID:       ideaID,
		Title:        req.Title,
		Description:  req.Description,
		Skill:        req.Skill,
		Reward:       req.Reward,
		DeliveryDays: req.DeliveryDays,
		AutoAssign:   req.AutoAssign,
	})
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// --- GET /api/v1/tasks ---

// ListTasks handles GET /api/v1/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	list, err := h.Tasks.ListTasks(r.Context(), models.TaskFilter{
		Status: models.TaskStatus(r.URL.Query().Get("status")),
		Limit:  limit,
	})
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	if list == nil {
		list = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": list})
}

// --- GET /api/v1/tasks/{id} ---

// GetTask handles GET /api/v1/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	t, err := h.Tasks.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// --- POST /api/v1/tasks/{id}/claim ---

// Claim handles POST /api/v1/tasks/{id}/claim.
func (h *TaskHandler) Claim(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Tasks.Claim)
}

// --- POST /api/v1/tasks/{id}/submit ---

type submitRequest struct {
	SubmissionURL string `json:"submission_url"`
	Notes         string `json:"notes"`
}

// Submit handles POST /api/v1/tasks/{id}/submit.
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	h.transition(w, r, func(ctx context.Context, p models.Principal, id uuid.UUID) (*models.Task, error) {
		if err := decode(r, h.Validator, services.SchemaSubmitTask, &req); err != nil {
			return nil, err
		}
		return h.Tasks.Submit(ctx, p, id, req.SubmissionURL, req.Notes)
	})
}

// --- POST /api/v1/tasks/{id}/request-revision ---

// RequestRevision handles POST /api/v1/tasks/{id}/request-revision.
func (h *TaskHandler) RequestRevision(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Tasks.RequestRevision)
}

// --- POST /api/v1/tasks/{id}/approve ---

// Approve handles POST /api/v1/tasks/{id}/approve.
func (h *TaskHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Tasks.Approve)
}

// --- POST /api/v1/tasks/{id}/dispute ---

type openDisputeRequest struct {
	Reason string `json:"reason"`
}

// OpenDispute handles POST /api/v1/tasks/{id}/dispute.
func (h *TaskHandler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	var req openDisputeRequest
	if err := decode(r, h.Validator, services.SchemaOpenDispute, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	d, err := h.Tasks.OpenDispute(r.Context(), p, id, req.Reason)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// --- POST /api/v1/tasks/{id}/auto-assign ---

type autoAssignResponse struct {
	Assigned bool         `json:"assigned"`
	Task     *models.Task `json:"task"`
}

// AutoAssign handles POST /api/v1/tasks/{id}/auto-assign.
func (h *TaskHandler) AutoAssign(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	t, assigned, err := h.Assigner.AutoAssign(r.Context(), p, id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, autoAssignResponse{Assigned: assigned, Task: t})
}

func (h *TaskHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, models.Principal, uuid.UUID) (*models.Task, error)) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	t, err := fn(r.Context(), p, id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
