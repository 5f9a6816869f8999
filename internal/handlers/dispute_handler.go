package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/internal/services"
)

// DisputeService is what DisputeHandler needs from the service layer.
type DisputeService interface {
	Resolve(ctx context.Context, p models.Principal, disputeID uuid.UUID, resolution models.Resolution) (*models.Dispute, error)
	ListOpen(ctx context.Context, p models.Principal) ([]*models.Dispute, error)
}

// DisputeHandler serves the admin dispute queue.
type DisputeHandler struct {
	Disputes  DisputeService
	Validator *services.Validator
	Logger    *slog.Logger
}

// --- GET /api/v1/disputes ---

// ListOpen handles GET /api/v1/disputes.
func (h *DisputeHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	list, err := h.Disputes.ListOpen(r.Context(), p)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	if list == nil {
		list = []*models.Dispute{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"disputes": list})
}

// --- POST /api/v1/disputes/{id}/resolve ---

type resolveRequest struct {
	Resolution models.Resolution `json:"resolution"`
}

// Resolve handles POST /api/v1/disputes/{id}/resolve.
func (h *DisputeHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	var req resolveRequest
	if err := decode(r, h.Validator, services.SchemaResolveDispute, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	d, err := h.Disputes.Resolve(r.Context(), p, id, req.Resolution)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
