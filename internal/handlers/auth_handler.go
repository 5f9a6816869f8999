package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/ideahub/backend/internal/auth"
	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/internal/services"
)

// WalletCreator opens the wallet of a newly registered user.
type WalletCreator interface {
	CreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
}

// UserReader loads the caller's profile.
type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuthHandler handles HTTP requests for registration and login.
type AuthHandler struct {
	Auth      auth.Service
	Wallets   WalletCreator
	Users     UserReader
	Validator *services.Validator
	Logger    *slog.Logger
}

type registerRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Name     string   `json:"name"`
	Skills   []string `json:"skills"`
}

type registerResponse struct {
	User   *models.User   `json:"user"`
	Wallet *models.Wallet `json:"wallet"`
}

// Register handles POST /api/v1/auth/register. A new account gets its wallet
// immediately.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, h.Validator, services.SchemaRegister, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	u, err := h.Auth.Register(r.Context(), req.Email, req.Password, req.Name, req.Skills)
	if errors.Is(err, auth.ErrDuplicateEmail) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "DuplicateEmail", Message: err.Error()})
		return
	}
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	wal, err := h.Wallets.CreateWallet(r.Context(), u.ID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	h.Logger.Info("user registered", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, registerResponse{User: u, Wallet: wal})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, h.Validator, services.SchemaLogin, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	token, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized", Message: err.Error()})
		return
	}
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

type meResponse struct {
	User   *models.User   `json:"user"`
	Wallet *models.Wallet `json:"wallet"`
}

// Me handles GET /api/v1/me: the caller's profile, XP and wallet.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	u, err := h.Users.GetByID(r.Context(), p.ID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	wal, err := h.Wallets.CreateWallet(r.Context(), p.ID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: u, Wallet: wal})
}
