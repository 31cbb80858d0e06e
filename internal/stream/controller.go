// Package stream serves a live sequence of job state snapshots to one
// connected consumer. Each connection runs its own observation loop over
// the record store; simultaneous viewers of the same job are independent
// pollers with no shared fan-out state.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/forgelabs/genjobs/internal/job"
	"github.com/forgelabs/genjobs/internal/jobstore"
)

// Event names emitted over a stream, in order: connected, then repeated
// progress, then exactly one of completed/failed, or error if the job
// vanishes mid-stream.
const (
	EventConnected = "connected"
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventError     = "error"
)

// Event is one server-sent message.
type Event struct {
	Name string
	Data map[string]any
}

// EmitFunc writes one event to the consumer. A non-nil error means the
// consumer is gone and the loop must stop.
type EmitFunc func(Event) error

// Controller runs per-connection observation loops.
type Controller struct {
	store    jobstore.Store
	interval time.Duration
	logger   *slog.Logger
}

// New creates a Controller. A non-positive interval falls back to the
// documented 1s heartbeat.
func New(store jobstore.Store, interval time.Duration, logger *slog.Logger) *Controller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Controller{
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Run streams snapshots of jobID through emit until the job reaches a
// terminal state, the context is cancelled (consumer disconnect), or the
// job disappears. Returns job.ErrNotFound without emitting anything when
// the job does not exist at connect time.
//
// A progress event is emitted every tick even when the state is unchanged;
// consumers rely on the steady heartbeat.
func (c *Controller) Run(ctx context.Context, jobID string, emit EmitFunc) error {
	j, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if err := emit(Event{
		Name: EventConnected,
		Data: map[string]any{
			"job_id":    j.JobID,
			"status":    j.Status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}); err != nil {
		return err
	}

	// A job that is already terminal at connect time gets its final event
	// immediately rather than after the first tick.
	if j.IsTerminal() {
		return emit(terminalEvent(j))
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Stream consumer disconnected",
				slog.String("job_id", jobID),
			)
			return ctx.Err()

		case <-ticker.C:
			j, err := c.store.GetJob(ctx, jobID)
			if err != nil {
				if errors.Is(err, job.ErrNotFound) {
					_ = emit(Event{
						Name: EventError,
						Data: map[string]any{
							"job_id": jobID,
							"error":  "job no longer exists",
						},
					})
				}
				return err
			}

			if j.IsTerminal() {
				return emit(terminalEvent(j))
			}

			if err := emit(Event{
				Name: EventProgress,
				Data: map[string]any{
					"job_id":    j.JobID,
					"status":    j.Status,
					"progress":  j.Progress,
					"type":      j.Type,
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				},
			}); err != nil {
				return err
			}
		}
	}
}

// terminalEvent builds the final event carrying the completion payload.
func terminalEvent(j *job.Job) Event {
	if j.Status == job.StatusFailed {
		return Event{
			Name: EventFailed,
			Data: map[string]any{
				"job_id": j.JobID,
				"status": j.Status,
				"error":  j.ErrorMessage,
			},
		}
	}

	data := map[string]any{
		"job_id":   j.JobID,
		"status":   j.Status,
		"progress": j.Progress,
	}
	if v := j.LatestVersion(); v != nil {
		data["version"] = v.Version
		data["artifact_url"] = v.ArtifactURL
		data["size_bytes"] = v.SizeBytes
		data["content_type"] = v.ContentType
	}

	return Event{Name: EventCompleted, Data: data}
}
