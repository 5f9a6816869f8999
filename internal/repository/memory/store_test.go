package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ideahub/backend/internal/models"
)

func newWallet(t *testing.T, s *Store, userID uuid.UUID, balance int64) *models.Wallet {
	t.Helper()
	ctx := context.Background()
	repo := NewWalletRepo(s)
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	w := &models.Wallet{ID: uuid.New(), UserID: userID, Address: "0xtest"}
	if _, err := repo.Create(ctx, tx, w); err != nil {
		t.Fatal(err)
	}
	if balance > 0 {
		if _, err := repo.ApplyDelta(ctx, tx, w.ID, decimal.NewFromInt(balance), decimal.Zero); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestRollbackUndoesWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	user := uuid.New()
	w := newWallet(t, s, user, 100)
	wallets := NewWalletRepo(s)
	entries := NewTransactionRepo(s)

	tx, _ := s.Begin(ctx)
	if _, err := wallets.ApplyDelta(ctx, tx, w.ID, decimal.NewFromInt(-40), decimal.NewFromInt(40)); err != nil {
		t.Fatal(err)
	}
	ref := uuid.New()
	if err := entries.Create(ctx, tx, &models.Transaction{ID: uuid.New(), WalletID: w.ID, Amount: decimal.NewFromInt(40), Type: models.TxEscrowLock, ReferenceID: &ref}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatal(err)
	}

	got, _ := wallets.GetByUserID(ctx, user)
	if !got.Balance.Equal(decimal.NewFromInt(100)) || !got.LockedBalance.IsZero() {
		t.Fatalf("rollback left balance=%s locked=%s", got.Balance, got.LockedBalance)
	}
	list, _ := entries.ListByReference(ctx, ref)
	if len(list) != 0 {
		t.Fatalf("rollback left %d ledger entries", len(list))
	}
}

func TestApplyDeltaRefusesNegative(t *testing.T) {
	ctx := context.Background()
	s := New()
	w := newWallet(t, s, uuid.New(), 10)
	wallets := NewWalletRepo(s)

	tx, _ := s.Begin(ctx)
	defer tx.Rollback(ctx)
	_, err := wallets.ApplyDelta(ctx, tx, w.ID, decimal.NewFromInt(-11), decimal.Zero)
	if !errors.Is(err, models.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	_, err = wallets.ApplyDelta(ctx, tx, w.ID, decimal.Zero, decimal.NewFromInt(-1))
	if !errors.Is(err, models.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds for locked, got %v", err)
	}
}

func TestWritesRequireOpenTx(t *testing.T) {
	ctx := context.Background()
	s := New()
	w := newWallet(t, s, uuid.New(), 10)
	wallets := NewWalletRepo(s)

	tx, _ := s.Begin(ctx)
	_ = tx.Commit(ctx)
	if _, err := wallets.ApplyDelta(ctx, tx, w.ID, decimal.NewFromInt(1), decimal.Zero); !errors.Is(err, errNoTx) {
		t.Fatalf("expected errNoTx after commit, got %v", err)
	}
	if err := tx.Rollback(ctx); err == nil {
		t.Fatal("rollback after commit should report a closed tx")
	}
}

func TestSingleWriter(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, _ := s.Begin(ctx)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := s.Begin(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Begin should block until the first tx ends, got %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tx2, err := s.Begin(ctx)
		if err != nil {
			t.Error(err)
			return
		}
		_ = tx2.Rollback(ctx)
	}()
	_ = tx.Commit(ctx)
	wg.Wait()
}

func TestLedgerUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	w := newWallet(t, s, uuid.New(), 0)
	entries := NewTransactionRepo(s)
	ref := uuid.New()

	tx, _ := s.Begin(ctx)
	defer tx.Rollback(ctx)
	entry := func(typ models.TransactionType) *models.Transaction {
		return &models.Transaction{ID: uuid.New(), WalletID: w.ID, Amount: decimal.NewFromInt(1), Type: typ, ReferenceID: &ref}
	}
	if err := entries.Create(ctx, tx, entry(models.TxEscrowLock)); err != nil {
		t.Fatal(err)
	}
	if err := entries.Create(ctx, tx, entry(models.TxEscrowLock)); !errors.Is(err, models.ErrDuplicateEscrow) {
		t.Fatalf("second lock: %v", err)
	}
	if err := entries.Create(ctx, tx, entry(models.TxEscrowRelease)); err != nil {
		t.Fatal(err)
	}
	if err := entries.Create(ctx, tx, entry(models.TxEscrowRefund)); !errors.Is(err, models.ErrAlreadyResolved) {
		t.Fatalf("second outcome: %v", err)
	}
	if err := entries.Create(ctx, tx, entry(models.TxFee)); err != nil {
		t.Fatalf("fee entries are not outcomes: %v", err)
	}
}

func TestTaskClaimCAS(t *testing.T) {
	ctx := context.Background()
	s := New()
	tasks := NewTaskRepo(s)
	creator, a, b := uuid.New(), uuid.New(), uuid.New()
	task := &models.Task{ID: uuid.New(), CreatorID: creator, Status: models.TaskPending, Reward: decimal.NewFromInt(5)}

	tx, _ := s.Begin(ctx)
	if err := tasks.Create(ctx, tx, task); err != nil {
		t.Fatal(err)
	}
	_ = tx.Commit(ctx)

	tx, _ = s.Begin(ctx)
	if _, err := tasks.Claim(ctx, tx, task.ID, creator); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("creator claim: %v", err)
	}
	if _, err := tasks.Claim(ctx, tx, task.ID, a); err != nil {
		t.Fatal(err)
	}
	if _, err := tasks.Claim(ctx, tx, task.ID, b); !errors.Is(err, models.ErrTaskUnavailable) {
		t.Fatalf("second claim: %v", err)
	}
	_ = tx.Commit(ctx)

	got, _ := tasks.GetByID(ctx, task.ID)
	if got.Status != models.TaskAssigned || got.AssigneeID == nil || *got.AssigneeID != a {
		t.Fatalf("unexpected task after claims: %+v", got)
	}
}

func TestReadsOutsideTxSeeOnlyCommittedState(t *testing.T) {
	ctx := context.Background()
	s := New()
	user := uuid.New()
	w := newWallet(t, s, user, 100)
	wallets := NewWalletRepo(s)

	tx, _ := s.Begin(ctx)
	if _, err := wallets.ApplyDelta(ctx, tx, w.ID, decimal.NewFromInt(-40), decimal.NewFromInt(40)); err != nil {
		t.Fatal(err)
	}

	seen := make(chan *models.Wallet, 1)
	go func() {
		got, err := wallets.GetByUserID(ctx, user)
		if err != nil {
			t.Error(err)
		}
		seen <- got
	}()
	select {
	case got := <-seen:
		t.Fatalf("read returned mid-transaction with balance=%s", got.Balance)
	case <-time.After(20 * time.Millisecond):
	}

	if err := tx.Rollback(ctx); err != nil {
		t.Fatal(err)
	}
	got := <-seen
	if got == nil || !got.Balance.Equal(decimal.NewFromInt(100)) || !got.LockedBalance.IsZero() {
		t.Fatalf("read after rollback: %+v", got)
	}
}

func TestAutocommitWaitsForOpenTx(t *testing.T) {
	ctx := context.Background()
	s := New()
	users := NewUserRepo(s)
	id := uuid.New()
	s.PutUser(&models.User{ID: id, Email: "x@example.com", Role: models.RoleUser})

	tx, _ := s.Begin(ctx)
	done := make(chan struct{})
	go func() {
		_ = users.AddXP(ctx, id, 10)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("AddXP ran while a transaction was open")
	case <-time.After(20 * time.Millisecond):
	}
	_ = tx.Commit(ctx)
	<-done

	u, err := users.GetByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if u.XP != 10 {
		t.Fatalf("xp = %d, want 10", u.XP)
	}
}
