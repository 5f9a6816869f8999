package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ideahub/backend/internal/models"
)

type WalletRepo struct {
	s *Store
}

func NewWalletRepo(s *Store) *WalletRepo { return &WalletRepo{s: s} }

func (r *WalletRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return r.get(nil, userID)
}

func (r *WalletRepo) GetByUserIDTx(_ context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	return r.get(tx, userID)
}

func (r *WalletRepo) get(tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	var out *models.Wallet
	err := r.s.read(tx, func() error {
		id, ok := r.s.walletByUser[userID]
		if !ok {
			return fmt.Errorf("%w: wallet", models.ErrNotFound)
		}
		out = cloneWallet(r.s.wallets[id])
		return nil
	})
	return out, err
}

func (r *WalletRepo) Create(_ context.Context, tx pgx.Tx, w *models.Wallet) (bool, error) {
	created := false
	err := r.s.write(tx, func() (func(), error) {
		if _, ok := r.s.walletByUser[w.UserID]; ok {
			return nil, nil
		}
		now := time.Now().UTC()
		cp := cloneWallet(w)
		cp.Balance, cp.LockedBalance = decimal.Zero, decimal.Zero
		cp.CreatedAt, cp.UpdatedAt = now, now
		r.s.wallets[cp.ID] = cp
		r.s.walletByUser[cp.UserID] = cp.ID
		created = true
		return func() {
			delete(r.s.wallets, cp.ID)
			delete(r.s.walletByUser, cp.UserID)
		}, nil
	})
	return created, err
}

func (r *WalletRepo) LockByUserIDs(_ context.Context, tx pgx.Tx, userIDs []uuid.UUID) ([]*models.Wallet, error) {
	var out []*models.Wallet
	err := r.s.read(tx, func() error {
		for _, uid := range userIDs {
			if id, ok := r.s.walletByUser[uid]; ok {
				out = append(out, cloneWallet(r.s.wallets[id]))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, err
}

func (r *WalletRepo) ApplyDelta(_ context.Context, tx pgx.Tx, walletID uuid.UUID, balanceDelta, lockedDelta decimal.Decimal) (*models.Wallet, error) {
	var out *models.Wallet
	err := r.s.write(tx, func() (func(), error) {
		w, ok := r.s.wallets[walletID]
		if !ok {
			return nil, fmt.Errorf("%w: wallet %s", models.ErrNotFound, walletID)
		}
		balance := w.Balance.Add(balanceDelta)
		locked := w.LockedBalance.Add(lockedDelta)
		if balance.IsNegative() || locked.IsNegative() {
			return nil, fmt.Errorf("%w: wallet %s cannot absorb balance %s / locked %s", models.ErrInsufficientFunds, walletID, balanceDelta, lockedDelta)
		}
		prev := cloneWallet(w)
		w.Balance, w.LockedBalance, w.UpdatedAt = balance, locked, time.Now().UTC()
		out = cloneWallet(w)
		return func() { r.s.wallets[walletID] = prev }, nil
	})
	return out, err
}

type TransactionRepo struct {
	s *Store
}

// NewTransactionRepo returns a TransactionRepo over s.
func NewTransactionRepo(s *Store) *TransactionRepo { return &TransactionRepo{s: s} }

// Create appends t to the ledger inside tx.
func (r *TransactionRepo) Create(_ context.Context, tx pgx.Tx, t *models.Transaction) error {
	return r.s.write(tx, func() (func(), error) {
		if t.ReferenceID != nil {
			for _, e := range r.s.entries {
				if e.ReferenceID == nil || *e.ReferenceID != *t.ReferenceID {
					continue
				}
				if t.Type == models.TxEscrowLock && e.Type == models.TxEscrowLock {
					return nil, fmt.Errorf("%w: reference %s already has a lock", models.ErrDuplicateEscrow, t.ReferenceID)
				}
				if isOutcome(t.Type) && isOutcome(e.Type) {
					return nil, fmt.Errorf("%w: reference %s already settled", models.ErrAlreadyResolved, t.ReferenceID)
				}
			}
		}
		t.CreatedAt = time.Now().UTC()
		r.s.entries = append(r.s.entries, cloneEntry(t))
		n := len(r.s.entries)
		return func() { r.s.entries = r.s.entries[:n-1] }, nil
	})
}

func isOutcome(t models.TransactionType) bool {
	return t == models.TxEscrowRelease || t == models.TxEscrowRefund
}

// ListByWallet returns a wallet's entries, newest first.
func (r *TransactionRepo) ListByWallet(_ context.Context, walletID uuid.UUID, limit int) ([]*models.Transaction, error) {
	var out []*models.Transaction
	err := r.s.read(nil, func() error {
		for i := len(r.s.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
			if r.s.entries[i].WalletID == walletID {
				out = append(out, cloneEntry(r.s.entries[i]))
			}
		}
		return nil
	})
	return out, err
}

// ListByReference returns every entry that points at referenceID.
func (r *TransactionRepo) ListByReference(_ context.Context, referenceID uuid.UUID) ([]*models.Transaction, error) {
	var out []*models.Transaction
	err := r.s.read(nil, func() error {
		for _, e := range r.s.entries {
			if e.ReferenceID != nil && *e.ReferenceID == referenceID {
				out = append(out, cloneEntry(e))
			}
		}
		return nil
	})
	return out, err
}

// ListRecent returns the newest entries across all wallets.
func (r *TransactionRepo) ListRecent(_ context.Context, limit int) ([]*models.LedgerEntry, error) {
	var out []*models.LedgerEntry
	err := r.s.read(nil, func() error {
		owners := make(map[uuid.UUID]uuid.UUID, len(r.s.wallets))
		for id, w := range r.s.wallets {
			owners[id] = w.UserID
		}
		for i := len(r.s.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
			e := &models.LedgerEntry{Transaction: *cloneEntry(r.s.entries[i])}
			e.UserID = owners[e.WalletID]
			if u, ok := r.s.users[e.UserID]; ok {
				e.Email = u.Email
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Stats returns platform-wide user, task and volume counts.
func (r *TransactionRepo) Stats(_ context.Context) (*models.PlatformStats, error) {
	st := &models.PlatformStats{TotalVolume: decimal.Zero}
	err := r.s.read(nil, func() error {
		st.TotalUsers = int64(len(r.s.users))
		for _, t := range r.s.tasks {
			if t.Status == models.TaskCompleted {
				st.CompletedTasks++
			}
		}
		for _, e := range r.s.entries {
			st.TotalVolume = st.TotalVolume.Add(e.Amount)
		}
		return nil
	})
	return st, err
}
