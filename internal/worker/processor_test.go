package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/forgelabs/genjobs/internal/generate"
	"github.com/forgelabs/genjobs/internal/job"
	"github.com/forgelabs/genjobs/internal/jobstore"
	"github.com/forgelabs/genjobs/internal/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator scripts the generation outcome for processor tests.
type fakeGenerator struct {
	payload  *job.VersionPayload
	err      error
	progress []int
	called   int
}

func (g *fakeGenerator) Generate(ctx context.Context, j *job.Job, report generate.ProgressFunc) (*job.VersionPayload, error) {
	g.called++
	for _, p := range g.progress {
		report(p)
	}
	return g.payload, g.err
}

func newTestWorker(machine *lifecycle.Machine, generators generate.Registry) *Worker {
	return &Worker{
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		machine:    machine,
		generators: generators,
		jobTimeout: 5 * time.Second,
		workerID:   "worker-test",
	}
}

func queuedJob(t *testing.T, store *jobstore.Memory, jobType string) *job.Job {
	t.Helper()

	now := time.Now().UTC()
	j := &job.Job{
		JobID:     "11111111-2222-3333-4444-555555555555",
		UserID:    "user-1",
		Type:      jobType,
		Status:    job.StatusQueued,
		Config:    json.RawMessage(`{"prompt":"a lighthouse"}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateJob(context.Background(), j))
	return j
}

func TestProcessJob_Success(t *testing.T) {
	store := jobstore.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	machine := lifecycle.New(store, nil, logger)
	ctx := context.Background()

	j := queuedJob(t, store, job.TypeImageGeneration)

	gen := &fakeGenerator{
		payload: &job.VersionPayload{
			ArtifactURL: "https://cdn.example.com/image.png",
			ContentType: "image/png",
			SizeBytes:   2048,
		},
		progress: []int{10, 50, 90},
	}
	w := newTestWorker(machine, generate.Registry{job.TypeImageGeneration: gen})

	err := w.processJob(ctx, &jobTask{jobID: j.JobID})
	require.NoError(t, err)
	assert.Equal(t, 1, gen.called)

	got, err := store.GetJob(ctx, j.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.Len(t, got.Versions, 1)
	assert.Equal(t, "https://cdn.example.com/image.png", got.Versions[0].ArtifactURL)
}

func TestProcessJob_GenerationFailure(t *testing.T) {
	store := jobstore.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	machine := lifecycle.New(store, nil, logger)
	ctx := context.Background()

	j := queuedJob(t, store, job.TypeImageGeneration)

	gen := &fakeGenerator{err: errors.New("provider task failed: out of VRAM")}
	w := newTestWorker(machine, generate.Registry{job.TypeImageGeneration: gen})

	// A failed generation resolves the job, so the message is acked (nil)
	err := w.processJob(ctx, &jobTask{jobID: j.JobID})
	require.NoError(t, err)

	got, err := store.GetJob(ctx, j.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "out of VRAM")
}

func TestProcessJob_UnsupportedType(t *testing.T) {
	store := jobstore.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	machine := lifecycle.New(store, nil, logger)
	ctx := context.Background()

	j := queuedJob(t, store, job.TypeImageGeneration)
	w := newTestWorker(machine, generate.Registry{})

	err := w.processJob(ctx, &jobTask{jobID: j.JobID})
	require.NoError(t, err)

	got, err := store.GetJob(ctx, j.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "unsupported job type")
}

func TestProcessJob_AlreadyResolved(t *testing.T) {
	store := jobstore.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	machine := lifecycle.New(store, nil, logger)
	ctx := context.Background()

	j := queuedJob(t, store, job.TypeImageGeneration)
	_, err := store.MarkStarted(ctx, j.JobID)
	require.NoError(t, err)
	_, err = store.FailJob(ctx, j.JobID, "resolved earlier")
	require.NoError(t, err)

	gen := &fakeGenerator{}
	w := newTestWorker(machine, generate.Registry{job.TypeImageGeneration: gen})

	err = w.processJob(ctx, &jobTask{jobID: j.JobID})
	require.Error(t, err)
	assert.ErrorIs(t, err, job.ErrInvalidTransition)
	// The stale delivery never reaches the generator
	assert.Equal(t, 0, gen.called)
	// And must not be requeued
	assert.False(t, w.shouldRequeueJob(err))
}

func TestProcessJob_UnknownJob(t *testing.T) {
	store := jobstore.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	machine := lifecycle.New(store, nil, logger)

	w := newTestWorker(machine, generate.Registry{})

	err := w.processJob(context.Background(), &jobTask{jobID: "11111111-2222-3333-4444-555555555555"})
	require.Error(t, err)
	assert.ErrorIs(t, err, job.ErrNotFound)
	assert.False(t, w.shouldRequeueJob(err))
}

func TestProcessJob_RedeliveredWhileProcessing(t *testing.T) {
	store := jobstore.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	machine := lifecycle.New(store, nil, logger)
	ctx := context.Background()

	j := queuedJob(t, store, job.TypeImageGeneration)
	_, err := store.MarkStarted(ctx, j.JobID)
	require.NoError(t, err)

	gen := &fakeGenerator{
		payload: &job.VersionPayload{ArtifactURL: "https://cdn.example.com/image.png"},
	}
	w := newTestWorker(machine, generate.Registry{job.TypeImageGeneration: gen})

	// Idempotent start: the redelivery runs the job to completion
	err = w.processJob(ctx, &jobTask{jobID: j.JobID})
	require.NoError(t, err)

	got, err := store.GetJob(ctx, j.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, got.Status)
}

func TestShouldRequeueJob(t *testing.T) {
	w := newTestWorker(nil, nil)

	tests := []struct {
		name    string
		err     error
		requeue bool
	}{
		{
			name:    "retryable store error",
			err:     job.NewRetryableError(errors.New("connection reset")),
			requeue: true,
		},
		{
			name:    "invalid transition",
			err:     job.ErrInvalidTransition,
			requeue: false,
		},
		{
			name:    "not found",
			err:     job.ErrNotFound,
			requeue: false,
		},
		{
			name:    "plain error",
			err:     errors.New("something odd"),
			requeue: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.requeue, w.shouldRequeueJob(tt.err))
		})
	}
}
