package router

import (
	"net/http"

	"github.com/ideahub/backend/internal/handlers"
	"github.com/ideahub/backend/internal/middleware"
)

const base = "/api/v1"

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth        *handlers.AuthHandler
	Tasks       *handlers.TaskHandler
	Wallet      *handlers.WalletHandler
	Disputes    *handlers.DisputeHandler
	Marketplace *handlers.MarketplaceHandler
	Admin       *handlers.AdminHandler
	Tokens      middleware.TokenValidator
	// Metrics is served unauthenticated at /metrics when set.
	Metrics http.Handler
}

// New returns an http.Handler that serves the API under /api/v1. Register
// and login are public; every other route requires a bearer token.
func New(h Handlers) http.Handler {
	mux := http.NewServeMux()
	authed := middleware.Authenticate(h.Tokens)
	private := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authed(fn))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}

	mux.HandleFunc("POST "+base+"/auth/register", h.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", h.Auth.Login)

	private("GET "+base+"/me", h.Auth.Me)

	private("POST "+base+"/tasks", h.Tasks.CreateTask)
	private("GET "+base+"/tasks", h.Tasks.ListTasks)
	private("GET "+base+"/tasks/{id}", h.Tasks.GetTask)
	private("POST "+base+"/tasks/{id}/claim", h.Tasks.Claim)
	private("POST "+base+"/tasks/{id}/submit", h.Tasks.Submit)
	private("POST "+base+"/tasks/{id}/request-revision", h.Tasks.RequestRevision)
	private("POST "+base+"/tasks/{id}/approve", h.Tasks.Approve)
	private("POST "+base+"/tasks/{id}/dispute", h.Tasks.OpenDispute)
	private("POST "+base+"/tasks/{id}/auto-assign", h.Tasks.AutoAssign)

	private("GET "+base+"/wallet", h.Wallet.GetWallet)
	private("POST "+base+"/wallet", h.Wallet.CreateWallet)
	private("GET "+base+"/wallet/transactions", h.Wallet.ListTransactions)
	private("POST "+base+"/wallet/deposit", h.Wallet.Deposit)
	private("POST "+base+"/wallet/withdraw", h.Wallet.Withdraw)

	private("GET "+base+"/escrow/{taskId}", h.Wallet.GetEscrow)
	private("POST "+base+"/escrow/{taskId}/release", h.Wallet.ReleaseEscrow)
	private("POST "+base+"/escrow/{taskId}/refund", h.Wallet.RefundEscrow)

	private("GET "+base+"/disputes", h.Disputes.ListOpen)
	private("POST "+base+"/disputes/{id}/resolve", h.Disputes.Resolve)

	private("GET "+base+"/marketplace/items", h.Marketplace.ListItems)
	private("POST "+base+"/marketplace/items", h.Marketplace.CreateItem)
	private("GET "+base+"/marketplace/items/{id}", h.Marketplace.GetItem)
	private("POST "+base+"/marketplace/items/{id}/buy", h.Marketplace.BuyItem)

	private("GET "+base+"/admin/transactions", h.Admin.ListTransactions)
	private("GET "+base+"/admin/stats", h.Admin.Stats)

	return mux
}
