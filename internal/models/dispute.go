package models

import (
	"time"

	"github.com/google/uuid"
)

// DisputeStatus is the lifecycle state of a dispute.
type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "OPEN"
	DisputeResolved DisputeStatus = "RESOLVED"
)

// Resolution is an admin ruling on a dispute.
type Resolution string

const (
	ResolutionRefundPayer        Resolution = "REFUND_PAYER"
	ResolutionReleaseContributor Resolution = "RELEASE_CONTRIBUTOR"
	ResolutionDismiss            Resolution = "DISMISS"
)

// Valid reports whether r is a known ruling.
func (r Resolution) Valid() bool {
	return r == ResolutionRefundPayer || r == ResolutionReleaseContributor || r == ResolutionDismiss
}

// Dispute records the task status it interrupted so DISMISS can restore it.
type Dispute struct {
	ID          uuid.UUID     `json:"id"`
	TaskID      uuid.UUID     `json:"task_id"`
	InitiatorID uuid.UUID     `json:"initiator_id"`
	Reason      string        `json:"reason"`
	Status      DisputeStatus `json:"status"`
	Resolution  *Resolution   `json:"resolution,omitempty"`
	PriorStatus TaskStatus    `json:"prior_status"`
	ResolvedBy  *uuid.UUID    `json:"resolved_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}
