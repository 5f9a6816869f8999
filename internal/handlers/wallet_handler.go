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

// WalletService is what WalletHandler needs from the ledger.
type WalletService interface {
	CreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error)
	Deposit(ctx context.Context, p models.Principal, userID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error)
	Withdraw(ctx context.Context, p models.Principal, amount decimal.Decimal) (*models.Wallet, error)
}

// EscrowService is the task-aware escrow surface: release and refund move
// the owning task in the same transaction as the money.
type EscrowService interface {
	GetEscrow(ctx context.Context, taskID uuid.UUID) (*models.Escrow, error)
	ReleaseEscrow(ctx context.Context, p models.Principal, taskID uuid.UUID) (*models.Escrow, error)
	RefundEscrow(ctx context.Context, p models.Principal, taskID uuid.UUID) (*models.Escrow, error)
}

// WalletHandler serves /api/v1/wallet and /api/v1/escrow endpoints.
type WalletHandler struct {
	Wallets   WalletService
	Escrow    EscrowService
	Validator *services.Validator
	Logger    *slog.Logger
}

type amountRequest struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

// --- GET /api/v1/wallet ---

// GetWallet handles GET /api/v1/wallet.
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	wal, err := h.Wallets.GetWallet(r.Context(), p.ID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wal)
}

// --- POST /api/v1/wallet ---

// CreateWallet handles POST /api/v1/wallet.
func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	wal, err := h.Wallets.CreateWallet(r.Context(), p.ID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wal)
}

// --- GET /api/v1/wallet/transactions ---

// ListTransactions handles GET /api/v1/wallet/transactions.
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	list, err := h.Wallets.ListTransactions(r.Context(), p.ID, limit)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	if list == nil {
		list = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": list})
}

// --- POST /api/v1/wallet/deposit (admin) ---

// Deposit handles POST /api/v1/wallet/deposit.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decode(r, h.Validator, services.SchemaWalletAmount, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	target, err := parseID(req.UserID, "user_id")
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	if target == uuid.Nil {
		target = p.ID
	}
	wal, err := h.Wallets.Deposit(r.Context(), p, target, req.Amount)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wal)
}

// --- POST /api/v1/wallet/withdraw ---

// Withdraw handles POST /api/v1/wallet/withdraw.
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decode(r, h.Validator, services.SchemaWalletAmount, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	wal, err := h.Wallets.Withdraw(r.Context(), p, req.Amount)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wal)
}

// --- GET /api/v1/escrow/{taskId} ---

// GetEscrow handles GET /api/v1/escrow/{taskId}.
func (h *WalletHandler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal(w, r); !ok {
		return
	}
	taskID, err := pathID(r, "taskId")
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	e, err := h.Escrow.GetEscrow(r.Context(), taskID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// --- POST /api/v1/escrow/{taskId}/release (admin) ---
// Pays the assignee of a SUBMITTED task and completes it.

// ReleaseEscrow handles POST /api/v1/escrow/{taskId}/release.
func (h *WalletHandler) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	taskID, err := pathID(r, "taskId")
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	e, err := h.Escrow.ReleaseEscrow(r.Context(), p, taskID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// --- POST /api/v1/escrow/{taskId}/refund (admin) ---
// Returns the reward to the creator and ends the task REFUNDED.

// RefundEscrow handles POST /api/v1/escrow/{taskId}/refund.
func (h *WalletHandler) RefundEscrow(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	taskID, err := pathID(r, "taskId")
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	e, err := h.Escrow.RefundEscrow(r.Context(), p, taskID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
