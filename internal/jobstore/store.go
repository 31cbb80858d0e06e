// Package jobstore provides the durable record store for job documents.
// It is the single source of truth for job state; every mutation uses
// compare-and-set semantics keyed on the current stored status so that
// concurrent writers (workers, the dispatcher) cannot corrupt a record.
package jobstore

import (
	"context"
	"time"

	"github.com/forgelabs/genjobs/internal/job"
)

// JobFilter narrows ListJobs results.
type JobFilter struct {
	UserID   string
	Type     string
	Status   string
	PageSize int
	Cursor   *Cursor
}

// Cursor is an opaque pagination position over (created_at, job_id).
type Cursor struct {
	CreatedAt time.Time
	JobID     string
}

// Store is the sanctioned access path to persisted jobs.
//
// Mutation semantics shared by all implementations:
//   - MarkStarted transitions queued → processing; any other current status
//     yields job.ErrInvalidTransition (job.ErrNotFound if missing).
//   - SetProgress applies only while processing; a decreasing or equal value
//     is dropped silently (the current record is returned unchanged);
//     terminal or queued jobs yield job.ErrInvalidTransition.
//   - CompleteJob and FailJob are terminal transitions from processing; the
//     status flip and the version append (for CompleteJob) are atomic so no
//     reader observes one without the other. Terminal states are absorbing.
//   - RecordCallbackResult only touches dispatcher bookkeeping fields and
//     never changes job status.
type Store interface {
	CreateJob(ctx context.Context, j *job.Job) error
	GetJob(ctx context.Context, jobID string) (*job.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]job.Job, error)
	MarkStarted(ctx context.Context, jobID string) (*job.Job, error)
	SetProgress(ctx context.Context, jobID string, percent int) (*job.Job, error)
	CompleteJob(ctx context.Context, jobID string, payload *job.VersionPayload) (*job.Job, error)
	FailJob(ctx context.Context, jobID string, errorMessage string) (*job.Job, error)
	RecordCallbackResult(ctx context.Context, jobID string, attempts int, lastError string) error
}
