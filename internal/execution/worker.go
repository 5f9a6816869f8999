// Package execution holds the River workers that deliver events to
// collaborators outside the core.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/riverqueue/river"

	"github.com/ideahub/backend/internal/events"
)

const webhookTimeout = 10 * time.Second

// DeliverEventWorker posts each event to a single webhook. Non-2xx responses
// fail the job so River retries it with backoff.
type DeliverEventWorker struct {
	river.WorkerDefaults[events.DeliverEventArgs]
	url        string
	httpClient *http.Client
}

// NewDeliverEventWorker returns a worker that posts events to url.
func NewDeliverEventWorker(url string) *DeliverEventWorker {
	return &DeliverEventWorker{
		url:        url,
		httpClient: &http.Client{Timeout: webhookTimeout},
	}
}

// Work posts the event body. Non-2xx responses are retried by River.
func (w *DeliverEventWorker) Work(ctx context.Context, job *river.Job[events.DeliverEventArgs]) error {
	body, err := json.Marshal(job.Args.Event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Kind", string(job.Args.Event.Kind))
	req.Header.Set("X-Event-ID", job.Args.Event.ID.String())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error calling event webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("event webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// AwardXPWorker credits experience points for completed tasks.
type AwardXPWorker struct {
	river.WorkerDefaults[events.AwardXPArgs]
	users events.XPStore
}

// NewAwardXPWorker returns a new AwardXPWorker.
func NewAwardXPWorker(users events.XPStore) *AwardXPWorker {
	return &AwardXPWorker{users: users}
}

// Work adds the job's XP to the user.
func (w *AwardXPWorker) Work(ctx context.Context, job *river.Job[events.AwardXPArgs]) error {
	if job.Args.Amount <= 0 {
		return nil
	}
	if err := w.users.AddXP(ctx, job.Args.UserID, job.Args.Amount); err != nil {
		return fmt.Errorf("award xp to %s: %w", job.Args.UserID, err)
	}
	return nil
}
