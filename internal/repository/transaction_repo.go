package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ideahub/backend/internal/database"
	"github.com/ideahub/backend/internal/models"
)

const transactionColumns = `id, wallet_id, amount, type, status, reference_id, counterparty_id, description, created_at`

// TransactionRepo stores the append-only ledger.
type TransactionRepo struct {
	pool *pgxpool.Pool
}

// NewTransactionRepo returns a new TransactionRepo.
func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	if err := row.Scan(&t.ID, &t.WalletID, &t.Amount, &t.Type, &t.Status, &t.ReferenceID, &t.CounterpartyID, &t.Description, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a ledger entry. The partial unique indexes on reference_id
// surface as ErrDuplicateEscrow (second lock) or ErrAlreadyResolved (second
// outcome).
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO transactions (id, wallet_id, amount, type, status, reference_id, counterparty_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, t.ID, t.WalletID, t.Amount, t.Type, t.Status, t.ReferenceID, t.CounterpartyID, t.Description).Scan(&t.CreatedAt)
	switch {
	case err == nil:
		return nil
	case database.IsUniqueViolation(err, "transactions_escrow_lock_once"):
		return fmt.Errorf("%w: reference %s already has a lock", models.ErrDuplicateEscrow, t.ReferenceID)
	case database.IsUniqueViolation(err, "transactions_escrow_outcome_once"):
		return fmt.Errorf("%w: reference %s already settled", models.ErrAlreadyResolved, t.ReferenceID)
	}
	return err
}

// ListByWallet returns a wallet's entries, newest first.
func (r *TransactionRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]*models.Transaction, error) {
	return r.list(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE wallet_id = $1 ORDER BY created_at DESC, id LIMIT $2
	`, walletID, limit)
}

// ListByReference returns every entry that points at referenceID.
func (r *TransactionRepo) ListByReference(ctx context.Context, referenceID uuid.UUID) ([]*models.Transaction, error) {
	return r.list(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE reference_id = $1 ORDER BY created_at, id
	`, referenceID)
}

func (r *TransactionRepo) list(ctx context.Context, sql string, args ...any) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// ListRecent returns the newest entries across every wallet with their
// owners.
func (r *TransactionRepo) ListRecent(ctx context.Context, limit int) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.wallet_id, t.amount, t.type, t.status, t.reference_id, t.counterparty_id,
		       t.description, t.created_at, w.user_id, COALESCE(u.email, '')
		FROM transactions t
		JOIN wallets w ON w.id = t.wallet_id
		LEFT JOIN users u ON u.id = w.user_id
		ORDER BY t.created_at DESC, t.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.WalletID, &e.Amount, &e.Type, &e.Status, &e.ReferenceID, &e.CounterpartyID,
			&e.Description, &e.CreatedAt, &e.UserID, &e.Email); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

// Stats returns platform-wide user, task and volume counts.
func (r *TransactionRepo) Stats(ctx context.Context) (*models.PlatformStats, error) {
	var s models.PlatformStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM users),
			(SELECT count(*) FROM tasks WHERE status = 'COMPLETED'),
			(SELECT COALESCE(sum(amount), 0) FROM transactions)
	`).Scan(&s.TotalUsers, &s.CompletedTasks, &s.TotalVolume)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
