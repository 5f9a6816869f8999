package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the scale every money column is stored with (NUMERIC(20,4)).
const MoneyPlaces = 4

// CheckAmount rejects an amount that is not positive or that carries more
// than MoneyPlaces significant decimal places. Trailing zeros are fine.
func CheckAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", ErrValidation, field)
	}
	return CheckScale(field, amount)
}

// CheckScale rejects a value that cannot be stored at MoneyPlaces without
// rounding.
func CheckScale(field string, v decimal.Decimal) error {
	if !v.Equal(v.Truncate(MoneyPlaces)) {
		return fmt.Errorf("%w: %s %s has more than %d decimal places", ErrValidation, field, v, MoneyPlaces)
	}
	return nil
}

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TxDeposit       TransactionType = "DEPOSIT"
	TxWithdrawal    TransactionType = "WITHDRAWAL"
	TxEscrowLock    TransactionType = "ESCROW_LOCK"
	TxEscrowRelease TransactionType = "ESCROW_RELEASE"
	TxEscrowRefund  TransactionType = "ESCROW_REFUND"
	TxPayment       TransactionType = "PAYMENT"
	TxFee           TransactionType = "FEE"
)

// Valid reports whether t is a known entry type.
func (t TransactionType) Valid() bool {
	switch t {
	case TxDeposit, TxWithdrawal, TxEscrowLock, TxEscrowRelease, TxEscrowRefund, TxPayment, TxFee:
		return true
	}
	return false
}

// TxStatusCompleted is the only status a ledger entry ever has; settlement is synchronous.
const TxStatusCompleted = "COMPLETED"

// Wallet holds a user's available and escrowed balances.
type Wallet struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Address       string          `json:"address"`
	Balance       decimal.Decimal `json:"balance"`
	LockedBalance decimal.Decimal `json:"locked_balance"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Transaction is an immutable ledger entry. ReferenceID correlates entries
// belonging to the same task or marketplace item. CounterpartyID names the
// other user an entry was recorded for (the seller on a commission FEE, the
// contributor on an escrow FEE).
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	WalletID       uuid.UUID       `json:"wallet_id"`
	Amount         decimal.Decimal `json:"amount"`
	Type           TransactionType `json:"type"`
	Status         string          `json:"status"`
	ReferenceID    *uuid.UUID      `json:"reference_id,omitempty"`
	CounterpartyID *uuid.UUID      `json:"counterparty_id,omitempty"`
	Description    string          `json:"description"`
	CreatedAt      time.Time       `json:"created_at"`
}

// LedgerEntry is a transaction together with the owner of its wallet, as
// listed in the admin ledger.
type LedgerEntry struct {
	Transaction
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

// PlatformStats is the admin summary: account count, finished tasks and the
// sum of every ledger entry ever recorded.
type PlatformStats struct {
	TotalUsers     int64           `json:"total_users"`
	CompletedTasks int64           `json:"completed_tasks"`
	TotalVolume    decimal.Decimal `json:"total_volume"`
}
