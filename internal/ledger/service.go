// Package ledger is the wallet ledger: one wallet per user, an append-only
// transaction log, and ApplyMutation as the single write path for balances.
package ledger

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ideahub/backend/internal/database"
	"github.com/ideahub/backend/internal/metrics"
	"github.com/ideahub/backend/internal/models"
)

// WalletStore is the wallet persistence the ledger needs.
type WalletStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetByUserIDTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error)
	Create(ctx context.Context, tx pgx.Tx, w *models.Wallet) (bool, error)
	LockByUserIDs(ctx context.Context, tx pgx.Tx, userIDs []uuid.UUID) ([]*models.Wallet, error)
	ApplyDelta(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balanceDelta, lockedDelta decimal.Decimal) (*models.Wallet, error)
}

// EntryStore is the append-only transaction log.
type EntryStore interface {
	Create(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]*models.Transaction, error)
	ListByReference(ctx context.Context, referenceID uuid.UUID) ([]*models.Transaction, error)
	ListRecent(ctx context.Context, limit int) ([]*models.LedgerEntry, error)
	Stats(ctx context.Context) (*models.PlatformStats, error)
}

// TxRunner runs a function inside one atomic unit.
type TxRunner interface {
	WithTx(ctx context.Context, op string, fn database.TxFunc) error
}

// Service owns every balance change. Other packages move money only through
// ApplyMutation inside their own transaction.
type Service struct {
	wallets WalletStore
	entries EntryStore
	tx      TxRunner
	seed    decimal.Decimal
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Options configures a Service. The zero value is usable.
type Options struct {
	// SeedAmount funds every new wallet through a DEPOSIT entry.
	SeedAmount decimal.Decimal
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// NewService returns a ledger over the given stores. A nil logger falls back
// to slog.Default.
func NewService(wallets WalletStore, entries EntryStore, tx TxRunner, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		wallets: wallets,
		entries: entries,
		tx:      tx,
		seed:    opts.SeedAmount,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// CreateWallet returns the user's wallet, creating it on first use.
func (s *Service) CreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if w, err := s.wallets.GetByUserID(ctx, userID); err == nil {
		return w, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	var w *models.Wallet
	err := s.tx.WithTx(ctx, "create_wallet", func(ctx context.Context, tx pgx.Tx) error {
		var err error
		w, err = s.EnsureWalletTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// EnsureWalletTx is CreateWallet inside the caller's transaction. A
// concurrent creator loses the insert race and reads the winner's row.
func (s *Service) EnsureWalletTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	w, err := s.wallets.GetByUserIDTx(ctx, tx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	addr, err := newAddress()
	if err != nil {
		return nil, err
	}
	created, err := s.wallets.Create(ctx, tx, &models.Wallet{ID: uuid.New(), UserID: userID, Address: addr})
	if err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	w, err = s.wallets.GetByUserIDTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("wallet created", "user_id", userID, "wallet_id", w.ID)
		if s.seed.IsPositive() {
			return s.ApplyMutation(ctx, tx, w.ID, s.seed, decimal.Zero, &models.Transaction{
				Type:        models.TxDeposit,
				Amount:      s.seed,
				Description: "Welcome bonus",
			})
		}
	}
	return w, nil
}

// GetWallet returns the user's wallet or ErrNotFound.
func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return s.wallets.GetByUserID(ctx, userID)
}

// ApplyMutation is the only way a balance changes: both deltas and the
// ledger entry are written in the caller's transaction. It fails with
// ErrInsufficientFunds if either balance would go negative.
func (s *Service) ApplyMutation(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balanceDelta, lockedDelta decimal.Decimal, rec *models.Transaction) (*models.Wallet, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: missing ledger entry", models.ErrValidation)
	}
	if err := models.CheckAmount("ledger entry amount", rec.Amount); err != nil {
		return nil, err
	}
	if err := models.CheckScale("balance delta", balanceDelta); err != nil {
		return nil, err
	}
	if err := models.CheckScale("locked delta", lockedDelta); err != nil {
		return nil, err
	}
	if !rec.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", models.ErrValidation, rec.Type)
	}
	if balanceDelta.IsZero() && lockedDelta.IsZero() {
		return nil, fmt.Errorf("%w: mutation moves nothing", models.ErrValidation)
	}
	w, err := s.wallets.ApplyDelta(ctx, tx, walletID, balanceDelta, lockedDelta)
	if err != nil {
		return nil, err
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.WalletID = walletID
	rec.Status = models.TxStatusCompleted
	if err := s.entries.Create(ctx, tx, rec); err != nil {
		return nil, err
	}
	s.metrics.LedgerEntry(string(rec.Type))
	return w, nil
}

// LockWallets creates any missing wallets, then row-locks all of them in a
// fixed order. The result is keyed by user id.
func (s *Service) LockWallets(ctx context.Context, tx pgx.Tx, userIDs ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error) {
	ids := slices.Clone(userIDs)
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	ids = slices.Compact(ids)
	for _, id := range ids {
		if _, err := s.EnsureWalletTx(ctx, tx, id); err != nil {
			return nil, err
		}
	}
	locked, err := s.wallets.LockByUserIDs(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]*models.Wallet, len(locked))
	for _, w := range locked {
		out[w.UserID] = w
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("%w: wallet for user %s", models.ErrNotFound, id)
		}
	}
	return out, nil
}

// Deposit credits a user's wallet. Admin only.
func (s *Service) Deposit(ctx context.Context, p models.Principal, userID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: deposits require an administrator", models.ErrForbidden)
	}
	if err := models.CheckAmount("amount", amount); err != nil {
		return nil, err
	}
	var w *models.Wallet
	err := s.tx.WithTx(ctx, "deposit", func(ctx context.Context, tx pgx.Tx) error {
		wallets, err := s.LockWallets(ctx, tx, userID)
		if err != nil {
			return err
		}
		w, err = s.ApplyMutation(ctx, tx, wallets[userID].ID, amount, decimal.Zero, &models.Transaction{
			Type:        models.TxDeposit,
			Amount:      amount,
			Description: fmt.Sprintf("Deposit by %s", p.ID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("deposit", "user_id", userID, "amount", amount, "admin_id", p.ID)
	return w, nil
}

// Withdraw debits the caller's own spendable balance.
func (s *Service) Withdraw(ctx context.Context, p models.Principal, amount decimal.Decimal) (*models.Wallet, error) {
	if err := models.CheckAmount("amount", amount); err != nil {
		return nil, err
	}
	var w *models.Wallet
	err := s.tx.WithTx(ctx, "withdraw", func(ctx context.Context, tx pgx.Tx) error {
		wallets, err := s.LockWallets(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		current := wallets[p.ID]
		if current.Balance.LessThan(amount) {
			return fmt.Errorf("%w: balance %s, requested %s", models.ErrInsufficientFunds, current.Balance, amount)
		}
		w, err = s.ApplyMutation(ctx, tx, current.ID, amount.Neg(), decimal.Zero, &models.Transaction{
			Type:        models.TxWithdrawal,
			Amount:      amount,
			Description: "Withdrawal",
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// ListTransactions returns the newest entries of the user's wallet.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	w, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.entries.ListByWallet(ctx, w.ID, limit)
}

// ListAll returns the newest entries across every wallet, each with its
// owner. Admin only.
func (s *Service) ListAll(ctx context.Context, p models.Principal, limit int) ([]*models.LedgerEntry, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: the platform ledger requires an administrator", models.ErrForbidden)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.entries.ListRecent(ctx, limit)
}

// Stats summarizes the platform for administrators.
func (s *Service) Stats(ctx context.Context, p models.Principal) (*models.PlatformStats, error) {
	if !p.IsAdmin() {
		return nil, fmt.Errorf("%w: platform stats require an administrator", models.ErrForbidden)
	}
	return s.entries.Stats(ctx)
}

// EntriesFor returns every ledger entry correlated with referenceID.
func (s *Service) EntriesFor(ctx context.Context, referenceID uuid.UUID) ([]*models.Transaction, error) {
	return s.entries.ListByReference(ctx, referenceID)
}

// newAddress returns an opaque "0x" + 40 hex character wallet address.
func newAddress() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate wallet address: %w", err)
	}
	return "0x" + hex.EncodeToString(b), nil
}
