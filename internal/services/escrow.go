package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ideahub/backend/internal/database"
	"github.com/ideahub/backend/internal/metrics"
	"github.com/ideahub/backend/internal/models"
)

// Ledger is the slice of the wallet ledger that settlement needs.
type Ledger interface {
	LockWallets(ctx context.Context, tx pgx.Tx, userIDs ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error)
	ApplyMutation(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balanceDelta, lockedDelta decimal.Decimal, rec *models.Transaction) (*models.Wallet, error)
}

// EscrowStore persists escrow entities.
type EscrowStore interface {
	Create(ctx context.Context, tx pgx.Tx, e *models.Escrow) error
	GetByTaskID(ctx context.Context, taskID uuid.UUID) (*models.Escrow, error)
	GetByTaskIDForUpdate(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (*models.Escrow, error)
	Resolve(ctx context.Context, tx pgx.Tx, e *models.Escrow) error
}

// TxRunner runs a function inside one atomic unit.
type TxRunner interface {
	WithTx(ctx context.Context, op string, fn database.TxFunc) error
}

// EscrowService locks a payer's funds against a task and settles them
// exactly once, either to the contributor (less the fee) or back to the payer.
// It does not look at task status; TaskService and DisputeService call the
// Tx variants inside the transaction that moves the task.
type EscrowService struct {
	ledger  Ledger
	escrows EscrowStore
	tx      TxRunner
	feeRate decimal.Decimal
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEscrowService builds the escrow manager. feeRate is the platform's cut
// of every release, e.g. 0.05.
func NewEscrowService(ledger Ledger, escrows EscrowStore, tx TxRunner, feeRate decimal.Decimal, m *metrics.Metrics, logger *slog.Logger) *EscrowService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EscrowService{ledger: ledger, escrows: escrows, tx: tx, feeRate: feeRate, metrics: m, logger: logger}
}

// SplitFee returns fee = amount*rate rounded to the money scale and clamped to
// [0, amount], and the remainder.
func SplitFee(amount, rate decimal.Decimal) (fee, payout decimal.Decimal) {
	fee = amount.Mul(rate).Round(models.MoneyPlaces)
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	if fee.GreaterThan(amount) {
		fee = amount
	}
	return fee, amount.Sub(fee)
}

// CreateEscrow locks amount from the payer's wallet against taskID in its
// own transaction.
func (s *EscrowService) CreateEscrow(ctx context.Context, payerID, taskID uuid.UUID, amount decimal.Decimal) (*models.Escrow, error) {
	var e *models.Escrow
	err := s.tx.WithTx(ctx, "create_escrow", func(ctx context.Context, tx pgx.Tx) error {
		var err error
		e, err = s.CreateEscrowTx(ctx, tx, payerID, taskID, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// CreateEscrowTx moves amount from the payer's balance to their locked
// balance and records the ESCROW_LOCK entry and the escrow row. Call within a
// transaction.
func (s *EscrowService) CreateEscrowTx(ctx context.Context, tx pgx.Tx, payerID, taskID uuid.UUID, amount decimal.Decimal) (*models.Escrow, error) {
	if err := models.CheckAmount("escrow amount", amount); err != nil {
		return nil, err
	}
	if _, err := s.escrows.GetByTaskIDForUpdate(ctx, tx, taskID); err == nil {
		return nil, fmt.Errorf("%w: task %s", models.ErrDuplicateEscrow, taskID)
	} else if !errors.Is(err, models.ErrEscrowNotFound) {
		return nil, err
	}

	wallets, err := s.ledger.LockWallets(ctx, tx, payerID)
	if err != nil {
		return nil, err
	}
	payer := wallets[payerID]
	if payer.Balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: balance %s, escrow needs %s", models.ErrInsufficientFunds, payer.Balance, amount)
	}

	lock := &models.Transaction{
		ID:          uuid.New(),
		Type:        models.TxEscrowLock,
		Amount:      amount,
		ReferenceID: &taskID,
		Description: fmt.Sprintf("Escrow lock for task %s", taskID),
	}
	if _, err := s.ledger.ApplyMutation(ctx, tx, payer.ID, amount.Neg(), amount, lock); err != nil {
		return nil, err
	}
	e := &models.Escrow{
		ID:       uuid.New(),
		TaskID:   taskID,
		PayerID:  payerID,
		Amount:   amount,
		Status:   models.EscrowHeld,
		LockTxID: lock.ID,
	}
	if err := s.escrows.Create(ctx, tx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ReleaseEscrow pays out a held escrow in its own transaction.
func (s *EscrowService) ReleaseEscrow(ctx context.Context, taskID, contributorID uuid.UUID) (*models.Escrow, error) {
	var e *models.Escrow
	err := s.tx.WithTx(ctx, "release_escrow", func(ctx context.Context, tx pgx.Tx) error {
		var err error
		e, err = s.ReleaseTx(ctx, tx, taskID, contributorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ReleaseTx settles the escrow for taskID to contributorID. The payer's
// locked balance drops by the full amount (PAYMENT), the contributor gets
// amount-fee (ESCROW_RELEASE) and the platform wallet the fee (FEE). Call
// within a transaction.
func (s *EscrowService) ReleaseTx(ctx context.Context, tx pgx.Tx, taskID, contributorID uuid.UUID) (*models.Escrow, error) {
	e, err := s.heldEscrow(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	fee, payout := SplitFee(e.Amount, s.feeRate)

	wallets, err := s.ledger.LockWallets(ctx, tx, e.PayerID, contributorID, models.PlatformUserID)
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.ApplyMutation(ctx, tx, wallets[e.PayerID].ID, decimal.Zero, e.Amount.Neg(), &models.Transaction{
		Type:           models.TxPayment,
		Amount:         e.Amount,
		ReferenceID:    &taskID,
		CounterpartyID: &contributorID,
		Description:    fmt.Sprintf("Escrow paid out for task %s", taskID),
	}); err != nil {
		return nil, err
	}

	release := &models.Transaction{
		ID:          uuid.New(),
		Type:        models.TxEscrowRelease,
		Amount:      payout,
		ReferenceID: &taskID,
		Description: fmt.Sprintf("Payment for task %s", taskID),
	}
	if payout.IsPositive() {
		if _, err := s.ledger.ApplyMutation(ctx, tx, wallets[contributorID].ID, payout, decimal.Zero, release); err != nil {
			return nil, err
		}
	}
	if fee.IsPositive() {
		if _, err := s.ledger.ApplyMutation(ctx, tx, wallets[models.PlatformUserID].ID, fee, decimal.Zero, &models.Transaction{
			Type:           models.TxFee,
			Amount:         fee,
			ReferenceID:    &taskID,
			CounterpartyID: &contributorID,
			Description:    fmt.Sprintf("Platform fee for task %s", taskID),
		}); err != nil {
			return nil, err
		}
	}

	e.Status = models.EscrowReleased
	if payout.IsPositive() {
		e.OutcomeTxID = &release.ID
	}
	e.ContributorID = &contributorID
	e.Fee = decimal.NewNullDecimal(fee)
	if err := s.escrows.Resolve(ctx, tx, e); err != nil {
		return nil, err
	}
	s.metrics.EscrowOutcome(string(models.EscrowReleased))
	s.logger.Info("escrow released", "task_id", taskID, "contributor_id", contributorID, "payout", payout, "fee", fee)
	return e, nil
}

// RefundEscrow returns a held escrow to its payer in its own transaction.
func (s *EscrowService) RefundEscrow(ctx context.Context, taskID uuid.UUID) (*models.Escrow, error) {
	var e *models.Escrow
	err := s.tx.WithTx(ctx, "refund_escrow", func(ctx context.Context, tx pgx.Tx) error {
		var err error
		e, err = s.RefundTx(ctx, tx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// RefundTx reverses the lock: the full amount moves from the payer's locked
// balance back to their spendable balance. Call within a transaction.
func (s *EscrowService) RefundTx(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (*models.Escrow, error) {
	e, err := s.heldEscrow(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	wallets, err := s.ledger.LockWallets(ctx, tx, e.PayerID)
	if err != nil {
		return nil, err
	}
	refund := &models.Transaction{
		ID:          uuid.New(),
		Type:        models.TxEscrowRefund,
		Amount:      e.Amount,
		ReferenceID: &taskID,
		Description: fmt.Sprintf("Escrow refund for task %s", taskID),
	}
	if _, err := s.ledger.ApplyMutation(ctx, tx, wallets[e.PayerID].ID, e.Amount, e.Amount.Neg(), refund); err != nil {
		return nil, err
	}
	e.Status = models.EscrowRefunded
	e.OutcomeTxID = &refund.ID
	e.Fee = decimal.NewNullDecimal(decimal.Zero)
	if err := s.escrows.Resolve(ctx, tx, e); err != nil {
		return nil, err
	}
	s.metrics.EscrowOutcome(string(models.EscrowRefunded))
	s.logger.Info("escrow refunded", "task_id", taskID, "payer_id", e.PayerID, "amount", e.Amount)
	return e, nil
}

// GetEscrow returns the escrow attached to taskID.
func (s *EscrowService) GetEscrow(ctx context.Context, taskID uuid.UUID) (*models.Escrow, error) {
	return s.escrows.GetByTaskID(ctx, taskID)
}

// heldEscrow locks the escrow row and rejects anything already settled.
func (s *EscrowService) heldEscrow(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (*models.Escrow, error) {
	e, err := s.escrows.GetByTaskIDForUpdate(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	if e.Status != models.EscrowHeld {
		return nil, fmt.Errorf("%w: escrow for task %s is %s", models.ErrAlreadyResolved, taskID, e.Status)
	}
	return e, nil
}
