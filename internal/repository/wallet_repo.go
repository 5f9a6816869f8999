package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ideahub/backend/internal/models"
)

const walletColumns = `id, user_id, address, balance, locked_balance, created_at, updated_at`

// WalletRepo stores wallets in Postgres.
type WalletRepo struct {
	pool *pgxpool.Pool
}

// NewWalletRepo returns a new WalletRepo.
func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var w models.Wallet
	if err := row.Scan(&w.ID, &w.UserID, &w.Address, &w.Balance, &w.LockedBalance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// GetByUserID returns the wallet owned by userID.
func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	w, err := scanWallet(r.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
	if err != nil {
		return nil, notFound(err, "wallet")
	}
	return w, nil
}

// GetByUserIDTx reads the wallet inside tx without locking it.
func (r *WalletRepo) GetByUserIDTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	w, err := scanWallet(tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
	if err != nil {
		return nil, notFound(err, "wallet")
	}
	return w, nil
}

// Create inserts w unless the user already has a wallet. It reports whether
// a row was inserted.
func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *models.Wallet) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO wallets (id, user_id, address, balance, locked_balance)
		VALUES ($1, $2, $3, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, w.ID, w.UserID, w.Address)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// LockByUserIDs takes row locks on the given users' wallets in id order.
func (r *WalletRepo) LockByUserIDs(ctx context.Context, tx pgx.Tx, userIDs []uuid.UUID) ([]*models.Wallet, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+walletColumns+` FROM wallets
		WHERE user_id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

// ApplyDelta adds the deltas in a single conditional UPDATE. If either
// balance would go negative no row matches and ErrInsufficientFunds is
// returned.
func (r *WalletRepo) ApplyDelta(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balanceDelta, lockedDelta decimal.Decimal) (*models.Wallet, error) {
	w, err := scanWallet(tx.QueryRow(ctx, `
		UPDATE wallets
		SET balance = balance + $2, locked_balance = locked_balance + $3, updated_at = now()
		WHERE id = $1 AND balance + $2 >= 0 AND locked_balance + $3 >= 0
		RETURNING `+walletColumns,
		walletID, balanceDelta, lockedDelta))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE id = $1)`, walletID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: wallet %s", models.ErrNotFound, walletID)
	}
	return nil, fmt.Errorf("%w: wallet %s cannot absorb balance %s / locked %s", models.ErrInsufficientFunds, walletID, balanceDelta, lockedDelta)
}
