package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ideahub/backend/internal/models"
)

// AdminLedger is the admin view of the ledger.
type AdminLedger interface {
	ListAll(ctx context.Context, p models.Principal, limit int) ([]*models.LedgerEntry, error)
	Stats(ctx context.Context, p models.Principal) (*models.PlatformStats, error)
}

// AdminHandler serves the platform-wide ledger view.
type AdminHandler struct {
	Ledger AdminLedger
	Logger *slog.Logger
}

// --- GET /api/v1/admin/transactions ---

// ListTransactions handles GET /api/v1/admin/transactions.
func (h *AdminHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	list, err := h.Ledger.ListAll(r.Context(), p, limit)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	if list == nil {
		list = []*models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": list})
}

// --- GET /api/v1/admin/stats ---

// Stats handles GET /api/v1/admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	st, err := h.Ledger.Stats(r.Context(), p)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
