// Package events carries domain notifications to collaborators outside the
// core: gamification, notifications and the admin audit log. Publishing is
// best effort and never fails the operation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Kind names the type of an Event.
type Kind string

const (
	KindAward             Kind = "award"
	KindTaskChanged       Kind = "task_changed"
	KindDisputeResolved   Kind = "dispute_resolved"
	KindPurchaseCompleted Kind = "purchase_completed"
	KindAdminAction       Kind = "admin_action"
)

// Event is the envelope handed to sinks and posted to the webhook.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Kind       Kind            `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Award grants experience points to a user.
type Award struct {
	UserID uuid.UUID `json:"user_id"`
	Reason string    `json:"reason"`
	Amount int       `json:"amount"`
}

// TaskChanged reports a task status transition.
type TaskChanged struct {
	TaskID  uuid.UUID `json:"task_id"`
	Status  string    `json:"status"`
	ActorID uuid.UUID `json:"actor_id"`
}

// DisputeResolved reports an admin ruling on a dispute.
type DisputeResolved struct {
	DisputeID  uuid.UUID `json:"dispute_id"`
	TaskID     uuid.UUID `json:"task_id"`
	Resolution string    `json:"resolution"`
}

// PurchaseCompleted reports a settled marketplace sale.
type PurchaseCompleted struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
	ItemID     uuid.UUID `json:"item_id"`
	BuyerID    uuid.UUID `json:"buyer_id"`
	SellerID   uuid.UUID `json:"seller_id"`
	Amount     string    `json:"amount"`
}

// AdminAction is an audit record of a privileged operation.
type AdminAction struct {
	AdminID  uuid.UUID `json:"admin_id"`
	Action   string    `json:"action"`
	TargetID uuid.UUID `json:"target_id"`
	Details  string    `json:"details"`
}

// Emitter is what services call once their transaction has committed.
type Emitter interface {
	Award(ctx context.Context, a Award)
	TaskChanged(ctx context.Context, e TaskChanged)
	DisputeResolved(ctx context.Context, e DisputeResolved)
	PurchaseCompleted(ctx context.Context, e PurchaseCompleted)
	AdminAction(ctx context.Context, e AdminAction)
}

// Sink receives encoded events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Publisher implements Emitter by fanning each event out to its sinks.
// Sink errors are logged and dropped.
type Publisher struct {
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher returns a Publisher that fans events out to sinks.
func NewPublisher(logger *slog.Logger, sinks ...Sink) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{sinks: sinks, logger: logger, now: time.Now}
}

// Award publishes a KindAward event.
func (p *Publisher) Award(ctx context.Context, a Award) { p.emit(ctx, KindAward, a) }

// TaskChanged publishes a KindTaskChanged event.
func (p *Publisher) TaskChanged(ctx context.Context, e TaskChanged) {
	p.emit(ctx, KindTaskChanged, e)
}

// DisputeResolved publishes a KindDisputeResolved event.
func (p *Publisher) DisputeResolved(ctx context.Context, e DisputeResolved) {
	p.emit(ctx, KindDisputeResolved, e)
}

// PurchaseCompleted publishes a KindPurchaseCompleted event.
func (p *Publisher) PurchaseCompleted(ctx context.Context, e PurchaseCompleted) {
	p.emit(ctx, KindPurchaseCompleted, e)
}

// AdminAction publishes a KindAdminAction event.
func (p *Publisher) AdminAction(ctx context.Context, e AdminAction) {
	p.emit(ctx, KindAdminAction, e)
}

func (p *Publisher) emit(ctx context.Context, kind Kind, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("encode event", "kind", kind, "error", err)
		return
	}
	ev := Event{ID: uuid.New(), Kind: kind, OccurredAt: p.now().UTC(), Payload: raw}
	for _, s := range p.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			p.logger.Warn("event not delivered", "kind", kind, "event_id", ev.ID, "error", err)
		}
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Award(context.Context, Award)                         {}
func (Nop) TaskChanged(context.Context, TaskChanged)             {}
func (Nop) DisputeResolved(context.Context, DisputeResolved)     {}
func (Nop) PurchaseCompleted(context.Context, PurchaseCompleted) {}
func (Nop) AdminAction(context.Context, AdminAction)             {}
