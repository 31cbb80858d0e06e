package jobstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/forgelabs/genjobs/internal/job"
)

// Memory is an in-memory Store with the same compare-and-set semantics as
// the Postgres implementation. It backs package tests and local development.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*job.Job
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]*job.Job),
	}
}

func (s *Memory) CreateJob(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[j.JobID] = cloneJob(j)
	return nil
}

func (s *Memory) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, job.ErrNotFound
	}
	return cloneJob(j), nil
}

func (s *Memory) ListJobs(ctx context.Context, filter JobFilter) ([]job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []job.Job
	for _, j := range s.jobs {
		if filter.UserID != "" && j.UserID != filter.UserID {
			continue
		}
		if filter.Type != "" && j.Type != filter.Type {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.Cursor != nil {
			c := filter.Cursor
			if j.CreatedAt.After(c.CreatedAt) ||
				(j.CreatedAt.Equal(c.CreatedAt) && j.JobID >= c.JobID) {
				continue
			}
		}
		out = append(out, *cloneJob(j))
	}

	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].JobID > out[b].JobID
	})

	if filter.PageSize > 0 && len(out) > filter.PageSize+1 {
		out = out[:filter.PageSize+1]
	}

	return out, nil
}

func (s *Memory) MarkStarted(ctx context.Context, jobID string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, job.ErrNotFound
	}
	if j.Status != job.StatusQueued {
		return nil, job.ErrInvalidTransition
	}

	now := time.Now().UTC()
	j.Status = job.StatusProcessing
	j.StartedAt = &now
	j.UpdatedAt = now

	return cloneJob(j), nil
}

func (s *Memory) SetProgress(ctx context.Context, jobID string, percent int) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, job.ErrNotFound
	}
	if j.Status != job.StatusProcessing {
		return nil, job.ErrInvalidTransition
	}

	// Stale or decreasing updates are dropped to keep progress monotonic.
	if percent > j.Progress {
		j.Progress = percent
		j.UpdatedAt = time.Now().UTC()
	}

	return cloneJob(j), nil
}

func (s *Memory) CompleteJob(ctx context.Context, jobID string, payload *job.VersionPayload) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, job.ErrNotFound
	}
	if j.Status != job.StatusProcessing {
		return nil, job.ErrInvalidTransition
	}

	now := time.Now().UTC()
	j.Status = job.StatusCompleted
	j.Progress = 100
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.Versions = append(j.Versions, job.ResultVersion{
		Version:     len(j.Versions) + 1,
		ArtifactURL: payload.ArtifactURL,
		StorageKey:  payload.StorageKey,
		SizeBytes:   payload.SizeBytes,
		ContentType: payload.ContentType,
		Metadata:    payload.Metadata,
		CreatedAt:   now,
	})

	return cloneJob(j), nil
}

func (s *Memory) FailJob(ctx context.Context, jobID string, errorMessage string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, job.ErrNotFound
	}
	if j.Status != job.StatusProcessing {
		return nil, job.ErrInvalidTransition
	}

	now := time.Now().UTC()
	j.Status = job.StatusFailed
	j.ErrorMessage = errorMessage
	j.CompletedAt = &now
	j.UpdatedAt = now

	return cloneJob(j), nil
}

func (s *Memory) RecordCallbackResult(ctx context.Context, jobID string, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return job.ErrNotFound
	}

	j.CallbackAttempts = attempts
	j.CallbackLastError = lastError
	j.UpdatedAt = time.Now().UTC()

	return nil
}

// DeleteJob removes a job outright. Retention is an external concern; this
// exists so tests can exercise the stream controller's vanished-job path.
func (s *Memory) DeleteJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, jobID)
}

func cloneJob(j *job.Job) *job.Job {
	c := *j
	if j.Versions != nil {
		c.Versions = make([]job.ResultVersion, len(j.Versions))
		copy(c.Versions, j.Versions)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
