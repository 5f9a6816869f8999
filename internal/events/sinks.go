package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// DeliverEventArgs posts one event to the configured webhook.
type DeliverEventArgs struct {
	Event Event `json:"event"`
}

func (DeliverEventArgs) Kind() string { return "deliver_event" }

func (DeliverEventArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueEvents, MaxAttempts: 10}
}

// AwardXPArgs credits experience points for a completed task.
type AwardXPArgs struct {
	EventID uuid.UUID `json:"event_id"`
	UserID  uuid.UUID `json:"user_id"`
	Amount  int       `json:"amount"`
	Reason  string    `json:"reason"`
}

func (AwardXPArgs) Kind() string { return "award_xp" }

func (AwardXPArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:      QueueEvents,
		UniqueOpts: river.UniqueOpts{ByArgs: true},
	}
}

const QueueEvents = "events"

// Inserter is the part of river.Client the sink needs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// RiverSink turns events into River jobs. Awards also get an AwardXP job so
// the points land even when no webhook is configured.
type RiverSink struct {
	client  Inserter
	webhook bool
}

// NewRiverSink returns a RiverSink. With webhook set every event is also
// queued for delivery.
func NewRiverSink(client Inserter, webhook bool) *RiverSink {
	return &RiverSink{client: client, webhook: webhook}
}

// Publish queues the jobs for ev.
func (s *RiverSink) Publish(ctx context.Context, ev Event) error {
	if ev.Kind == KindAward {
		var a Award
		if err := json.Unmarshal(ev.Payload, &a); err != nil {
			return fmt.Errorf("decode award: %w", err)
		}
		if _, err := s.client.Insert(ctx, AwardXPArgs{EventID: ev.ID, UserID: a.UserID, Amount: a.Amount, Reason: a.Reason}, nil); err != nil {
			return fmt.Errorf("insert award_xp: %w", err)
		}
	}
	if !s.webhook {
		return nil
	}
	if _, err := s.client.Insert(ctx, DeliverEventArgs{Event: ev}, nil); err != nil {
		return fmt.Errorf("insert deliver_event: %w", err)
	}
	return nil
}

// LogSink writes every event to the log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a new LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Publish logs ev at info level.
func (s *LogSink) Publish(ctx context.Context, ev Event) error {
	s.logger.InfoContext(ctx, "event", "kind", ev.Kind, "event_id", ev.ID, "payload", string(ev.Payload))
	return nil
}

// XPStore credits experience points.
type XPStore interface {
	AddXP(ctx context.Context, userID uuid.UUID, amount int) error
}

// AwardSink applies awards in-process. Used when no job queue is running.
type AwardSink struct {
	users XPStore
}

// NewAwardSink returns a new AwardSink.
func NewAwardSink(users XPStore) *AwardSink { return &AwardSink{users: users} }

// Publish applies award events directly and ignores the rest.
func (s *AwardSink) Publish(ctx context.Context, ev Event) error {
	if ev.Kind != KindAward {
		return nil
	}
	var a Award
	if err := json.Unmarshal(ev.Payload, &a); err != nil {
		return fmt.Errorf("decode award: %w", err)
	}
	return s.users.AddXP(ctx, a.UserID, a.Amount)
}
