package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ideahub/backend/internal/database"
	"github.com/ideahub/backend/internal/events"
	"github.com/ideahub/backend/internal/ledger"
	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/internal/repository/memory"
)

// ---------------------------------------------------------------------------
// Shared fixture: every service wired to one in-memory store.
// ---------------------------------------------------------------------------

type fixture struct {
	store    *memory.Store
	ledger   *ledger.Service
	escrow   *EscrowService
	tasks    *TaskService
	disputes *DisputeService
	market   *MarketplaceService
	emitter  *recordingEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	tx := database.NewTransactor(store, database.TxOptions{
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
		Timeout:      5 * time.Second,
	}, nil, logger)

	led := ledger.NewService(memory.NewWalletRepo(store), memory.NewTransactionRepo(store), tx, ledger.Options{Logger: logger})
	em := &recordingEmitter{}
	escrow := NewEscrowService(led, memory.NewEscrowRepo(store), tx, dec("0.05"), nil, logger)
	taskRepo := memory.NewTaskRepo(store)
	disputeRepo := memory.NewDisputeRepo(store)
	users := memory.NewUserRepo(store)
	return &fixture{
		store:    store,
		ledger:   led,
		escrow:   escrow,
		tasks:    NewTaskService(taskRepo, disputeRepo, users, escrow, tx, em, nil, logger),
		disputes: NewDisputeService(taskRepo, disputeRepo, users, escrow, tx, em, logger),
		market:   NewMarketplaceService(led, memory.NewMarketplaceRepo(store), tx, dec("0.20"), em, nil, logger),
		emitter:  em,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func admin() models.Principal { return models.Principal{ID: uuid.New(), Role: models.RoleAdmin} }

// newUser stores a USER and funds their wallet with balance.
func (f *fixture) newUser(t *testing.T, balance string) models.Principal {
	t.Helper()
	id := uuid.New()
	f.store.PutUser(&models.User{ID: id, Email: id.String() + "@example.com", Name: "u", Role: models.RoleUser})
	if b := dec(balance); b.IsPositive() {
		if _, err := f.ledger.Deposit(context.Background(), models.SystemPrincipal(), id, b); err != nil {
			t.Fatalf("fund %s: %v", id, err)
		}
	}
	return models.Principal{ID: id, Role: models.RoleUser}
}

func (f *fixture) wallet(t *testing.T, userID uuid.UUID) *models.Wallet {
	t.Helper()
	w, err := f.ledger.GetWallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetWallet(%s): %v", userID, err)
	}
	return w
}

func (f *fixture) wantWallet(t *testing.T, userID uuid.UUID, balance, locked string) {
	t.Helper()
	w := f.wallet(t, userID)
	if !w.Balance.Equal(dec(balance)) || !w.LockedBalance.Equal(dec(locked)) {
		t.Errorf("wallet %s: got balance=%s locked=%s, want balance=%s locked=%s",
			userID, w.Balance, w.LockedBalance, balance, locked)
	}
}

func (f *fixture) entries(t *testing.T, ref uuid.UUID) map[models.TransactionType][]*models.Transaction {
	t.Helper()
	list, err := f.ledger.EntriesFor(context.Background(), ref)
	if err != nil {
		t.Fatalf("EntriesFor: %v", err)
	}
	out := make(map[models.TransactionType][]*models.Transaction)
	for _, e := range list {
		out[e.Type] = append(out[e.Type], e)
	}
	return out
}

// createTask posts a task with the given reward on behalf of creator.
func (f *fixture) createTask(t *testing.T, creator models.Principal, reward string) *models.Task {
	t.Helper()
	task, err := f.tasks.CreateTask(context.Background(), creator, CreateTaskInput{
		Title:       "Landing page copy",
		Description: "Write the hero section",
		Reward:      dec(reward),
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return task
}

// ---------------------------------------------------------------------------
// recordingEmitter captures events for assertions.
// ---------------------------------------------------------------------------

type recordingEmitter struct {
	mu       sync.Mutex
	awards   []events.Award
	changes  []events.TaskChanged
	resolved []events.DisputeResolved
	sales    []events.PurchaseCompleted
	admin    []events.AdminAction
}

func (r *recordingEmitter) Award(_ context.Context, a events.Award) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.awards = append(r.awards, a)
}

func (r *recordingEmitter) TaskChanged(_ context.Context, e events.TaskChanged) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, e)
}

func (r *recordingEmitter) DisputeResolved(_ context.Context, e events.DisputeResolved) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, e)
}

func (r *recordingEmitter) PurchaseCompleted(_ context.Context, e events.PurchaseCompleted) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sales = append(r.sales, e)
}

func (r *recordingEmitter) AdminAction(_ context.Context, e events.AdminAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admin = append(r.admin, e)
}
