package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/cors"

	"github.com/ideahub/backend/internal/auth"
	"github.com/ideahub/backend/internal/config"
	"github.com/ideahub/backend/internal/database"
	"github.com/ideahub/backend/internal/events"
	"github.com/ideahub/backend/internal/handlers"
	"github.com/ideahub/backend/internal/ledger"
	"github.com/ideahub/backend/internal/metrics"
	"github.com/ideahub/backend/internal/middleware"
	"github.com/ideahub/backend/internal/repository"
	"github.com/ideahub/backend/internal/repository/memory"
	"github.com/ideahub/backend/internal/router"
	"github.com/ideahub/backend/internal/services"
)

const maxBodyBytes = 1 << 20

type userStore interface {
	auth.UserStore
	handlers.UserReader
	services.CompletionRecorder
	services.ContributorSource
	events.XPStore
}

// stores is one persistence backend: Postgres or the in-memory store.
type stores struct {
	db       database.Beginner
	wallets  ledger.WalletStore
	entries  ledger.EntryStore
	escrows  services.EscrowStore
	tasks    services.TaskStore
	disputes services.DisputeStore
	items    services.ItemStore
	users    userStore
}

func postgresStores(pool *pgxpool.Pool) stores {
	return stores{
		db:       pool,
		wallets:  repository.NewWalletRepo(pool),
		entries:  repository.NewTransactionRepo(pool),
		escrows:  repository.NewEscrowRepo(pool),
		tasks:    repository.NewTaskRepo(pool),
		disputes: repository.NewDisputeRepo(pool),
		items:    repository.NewMarketplaceRepo(pool),
		users:    repository.NewUserRepo(pool),
	}
}

func memoryStores(s *memory.Store) stores {
	return stores{
		db:       s,
		wallets:  memory.NewWalletRepo(s),
		entries:  memory.NewTransactionRepo(s),
		escrows:  memory.NewEscrowRepo(s),
		tasks:    memory.NewTaskRepo(s),
		disputes: memory.NewDisputeRepo(s),
		items:    memory.NewMarketplaceRepo(s),
		users:    memory.NewUserRepo(s),
	}
}

type app struct {
	handler  http.Handler
	tasks    *services.TaskService
	assigner *services.Assigner
}

// newApp wires the services and HTTP surface on top of st.
func newApp(cfg config.Config, st stores, emitter events.Emitter, m *metrics.Metrics, logger *slog.Logger) (*app, error) {
	validator, err := services.NewValidator()
	if err != nil {
		return nil, err
	}
	tx := database.NewTransactor(st.db, database.TxOptions{
		MaxAttempts:  cfg.Tx.MaxAttempts,
		RetryBackoff: cfg.Tx.RetryBackoff,
		Timeout:      cfg.Tx.Timeout,
	}, m, logger)

	led := ledger.NewService(st.wallets, st.entries, tx, ledger.Options{
		SeedAmount: cfg.Ledger.WalletSeedAmount,
		Metrics:    m,
		Logger:     logger,
	})
	escrow := services.NewEscrowService(led, st.escrows, tx, cfg.Ledger.EscrowFeeRate, m, logger)
	tasks := services.NewTaskService(st.tasks, st.disputes, st.users, escrow, tx, emitter, m, logger)
	disputes := services.NewDisputeService(st.tasks, st.disputes, st.users, escrow, tx, emitter, logger)
	market := services.NewMarketplaceService(led, st.items, tx, cfg.Ledger.MarketplaceCommissionRate, emitter, m, logger)
	ranker := services.Ranker{
		DefaultRating:          cfg.Ranker.DefaultRating,
		DefaultResponseMinutes: cfg.Ranker.DefaultResponseMinutes,
	}
	assigner := services.NewAssigner(tasks, st.users, ranker, cfg.Ranker.CandidateLimit, logger)
	authSvc := auth.NewService(st.users, cfg.JWTSecret)

	api := router.New(router.Handlers{
		Auth:        &handlers.AuthHandler{Auth: authSvc, Wallets: led, Users: st.users, Validator: validator, Logger: logger},
		Tasks:       &handlers.TaskHandler{Tasks: tasks, Assigner: assigner, Validator: validator, Logger: logger},
		Wallet:      &handlers.WalletHandler{Wallets: led, Escrow: tasks, Validator: validator, Logger: logger},
		Disputes:    &handlers.DisputeHandler{Disputes: disputes, Validator: validator, Logger: logger},
		Marketplace: &handlers.MarketplaceHandler{Market: market, Validator: validator, Logger: logger},
		Admin:       &handlers.AdminHandler{Ledger: led, Logger: logger},
		Tokens:      authSvc,
		Metrics:     m.Handler(),
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(api)

	var h http.Handler = corsHandler
	h = middleware.MaxBody(maxBodyBytes)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.Recovery(logger)(h)

	return &app{handler: h, tasks: tasks, assigner: assigner}, nil
}

// lateInserter forwards to the River client once it exists. The client's
// workers need the services, and the services need an inserter.
type lateInserter struct {
	mu     sync.RWMutex
	client *river.Client[pgx.Tx]
}

var errRiverNotWired = errors.New("river client not wired")

func (l *lateInserter) set(c *river.Client[pgx.Tx]) {
	l.mu.Lock()
	l.client = c
	l.mu.Unlock()
}

func (l *lateInserter) Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	l.mu.RLock()
	c := l.client
	l.mu.RUnlock()
	if c == nil {
		return nil, errRiverNotWired
	}
	return c.Insert(ctx, args, opts)
}
