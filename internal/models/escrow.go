package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EscrowStatus is the lifecycle state of an escrow.
type EscrowStatus string

const (
	EscrowHeld     EscrowStatus = "HELD"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowRefunded EscrowStatus = "REFUNDED"
)

// Escrow is owned one-to-one by a task. It points directly at the ledger
// entries that locked and settled it, and moves out of HELD exactly once.
type Escrow struct {
	ID            uuid.UUID           `json:"id"`
	TaskID        uuid.UUID           `json:"task_id"`
	PayerID       uuid.UUID           `json:"payer_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Status        EscrowStatus        `json:"status"`
	LockTxID      uuid.UUID           `json:"lock_tx_id"`
	OutcomeTxID   *uuid.UUID          `json:"outcome_tx_id,omitempty"`
	ContributorID *uuid.UUID          `json:"contributor_id,omitempty"`
	Fee           decimal.NullDecimal `json:"fee"`
	CreatedAt     time.Time           `json:"created_at"`
	ResolvedAt    *time.Time          `json:"resolved_at,omitempty"`
}
