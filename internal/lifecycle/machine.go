// Package lifecycle implements the job state machine. It is the only
// sanctioned mutation path into the record store: workers and the API
// surface call these operations, never the store directly.
//
// Valid transitions: queued → processing → {completed, failed}. Terminal
// states are absorbing; any later mutation attempt is rejected with
// job.ErrInvalidTransition and leaves stored state untouched.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgelabs/genjobs/internal/job"
	"github.com/forgelabs/genjobs/internal/jobstore"
	"github.com/google/uuid"
)

// Dispatcher delivers the one-shot terminal notification for a job.
// Dispatch must not block the caller; failures never affect job state.
type Dispatcher interface {
	Dispatch(ctx context.Context, j *job.Job)
}

// Machine exposes the state-machine operations over a record store.
type Machine struct {
	store    jobstore.Store
	notifier Dispatcher
	logger   *slog.Logger
}

// CreateParams holds the immutable inputs of a new job.
type CreateParams struct {
	Type        string
	UserID      string
	Config      json.RawMessage
	CallbackURL string
}

// New creates a Machine. notifier may be nil when push notification is not
// wired (e.g. in the API service, which only creates and reads jobs).
func New(store jobstore.Store, notifier Dispatcher, logger *slog.Logger) *Machine {
	return &Machine{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// Create allocates a new job in queued state after validating the
// type-specific config schema.
func (m *Machine) Create(ctx context.Context, params CreateParams) (*job.Job, error) {
	if params.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", job.ErrValidation)
	}
	if err := job.ValidateConfig(params.Type, params.Config); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	j := &job.Job{
		JobID:       uuid.New().String(),
		UserID:      params.UserID,
		Type:        params.Type,
		Status:      job.StatusQueued,
		Progress:    0,
		Config:      params.Config,
		CallbackURL: params.CallbackURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := m.store.CreateJob(ctx, j); err != nil {
		return nil, err
	}

	m.logger.Info("Job created",
		slog.String("job_id", j.JobID),
		slog.String("job_type", j.Type),
		slog.String("user_id", j.UserID),
	)

	return j, nil
}

// Get returns the current snapshot of a job.
func (m *Machine) Get(ctx context.Context, jobID string) (*job.Job, error) {
	return m.store.GetJob(ctx, jobID)
}

// List returns jobs matching the filter.
func (m *Machine) List(ctx context.Context, filter jobstore.JobFilter) ([]job.Job, error) {
	return m.store.ListJobs(ctx, filter)
}

// MarkStarted transitions queued → processing. A repeated call from a
// retried worker is tolerated: if the job is already processing the current
// record is returned without error.
func (m *Machine) MarkStarted(ctx context.Context, jobID string) (*job.Job, error) {
	j, err := m.store.MarkStarted(ctx, jobID)
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, job.ErrInvalidTransition) {
		return nil, err
	}

	current, getErr := m.store.GetJob(ctx, jobID)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status == job.StatusProcessing {
		return current, nil
	}
	return nil, job.ErrInvalidTransition
}

// SetProgress reports worker progress. Values are clamped to [0,100];
// decreasing updates are dropped by the store's compare-and-set.
func (m *Machine) SetProgress(ctx context.Context, jobID string, percent int) (*job.Job, error) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return m.store.SetProgress(ctx, jobID, percent)
}

// Complete transitions processing → completed, appending the result version
// atomically, then triggers the terminal notification exactly once.
func (m *Machine) Complete(ctx context.Context, jobID string, payload *job.VersionPayload) (*job.Job, error) {
	j, err := m.store.CompleteJob(ctx, jobID, payload)
	if err != nil {
		return nil, err
	}

	m.dispatch(ctx, j)
	return j, nil
}

// Fail transitions processing → failed with the upstream error message,
// then triggers the terminal notification exactly once.
func (m *Machine) Fail(ctx context.Context, jobID string, errorMessage string) (*job.Job, error) {
	j, err := m.store.FailJob(ctx, jobID, errorMessage)
	if err != nil {
		return nil, err
	}

	m.dispatch(ctx, j)
	return j, nil
}

// dispatch hands the terminal job to the notifier in its own goroutine.
// The detached context keeps retries alive after the triggering worker's
// context ends; a hanging callback for one job never blocks another.
func (m *Machine) dispatch(ctx context.Context, j *job.Job) {
	if m.notifier == nil || j.CallbackURL == "" {
		return
	}
	go m.notifier.Dispatch(context.WithoutCancel(ctx), j)
}
