package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/forgelabs/genjobs/internal/job"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueuedJob(t *testing.T, s *Memory) *job.Job {
	t.Helper()

	now := time.Now().UTC()
	j := &job.Job{
		JobID:     uuid.New().String(),
		UserID:    "user-1",
		Type:      job.TypeImageGeneration,
		Status:    job.StatusQueued,
		Config:    json.RawMessage(`{"prompt":"a lighthouse"}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateJob(context.Background(), j))
	return j
}

func TestMemory_GetJob(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	j := newQueuedJob(t, s)

	got, err := s.GetJob(ctx, j.JobID)
	require.NoError(t, err)
	assert.Equal(t, j.JobID, got.JobID)
	assert.Equal(t, job.StatusQueued, got.Status)

	_, err = s.GetJob(ctx, uuid.New().String())
	assert.ErrorIs(t, err, job.ErrNotFound)
}

func TestMemory_MarkStarted(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	j := newQueuedJob(t, s)

	started, err := s.MarkStarted(ctx, j.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusProcessing, started.Status)
	require.NotNil(t, started.StartedAt)

	// Second start against the same record is rejected
	_, err = s.MarkStarted(ctx, j.JobID)
	assert.ErrorIs(t, err, job.ErrInvalidTransition)

	_, err = s.MarkStarted(ctx, uuid.New().String())
	assert.ErrorIs(t, err, job.ErrNotFound)
}

func TestMemory_SetProgress_Monotonic(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	j := newQueuedJob(t, s)
	_, err := s.MarkStarted(ctx, j.JobID)
	require.NoError(t, err)

	// Out-of-order reports: only increases stick
	for _, step := range []struct {
		report int
		want   int
	}{
		{5, 5},
		{40, 40},
		{20, 40}, // stale report dropped silently
		{40, 40}, // equal report dropped silently
		{75, 75},
	} {
		got, err := s.SetProgress(ctx, j.JobID, step.report)
		require.NoError(t, err)
		assert.Equal(t, step.want, got.Progress, "after reporting %d", step.report)
	}
}

func TestMemory_SetProgress_Rejections(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	t.Run("queued job", func(t *testing.T) {
		j := newQueuedJob(t, s)
		_, err := s.SetProgress(ctx, j.JobID, 10)
		assert.ErrorIs(t, err, job.ErrInvalidTransition)
	})

	t.Run("terminal job", func(t *testing.T) {
		j := newQueuedJob(t, s)
		_, err := s.MarkStarted(ctx, j.JobID)
		require.NoError(t, err)
		_, err = s.FailJob(ctx, j.JobID, "provider error")
		require.NoError(t, err)

		_, err = s.SetProgress(ctx, j.JobID, 10)
		assert.ErrorIs(t, err, job.ErrInvalidTransition)
	})

	t.Run("missing job", func(t *testing.T) {
		_, err := s.SetProgress(ctx, uuid.New().String(), 10)
		assert.ErrorIs(t, err, job.ErrNotFound)
	})
}

func TestMemory_CompleteJob(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	j := newQueuedJob(t, s)
	_, err := s.MarkStarted(ctx, j.JobID)
	require.NoError(t, err)

	payload := &job.VersionPayload{
		ArtifactURL: "https://cdn.example.com/image.png",
		StorageKey:  "artifacts/user-1/" + j.JobID + "/v1/image.png",
		SizeBytes:   2048,
		ContentType: "image/png",
	}

	done, err := s.CompleteJob(ctx, j.JobID, payload)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.CompletedAt)
	require.Len(t, done.Versions, 1)
	assert.Equal(t, 1, done.Versions[0].Version)
	assert.Equal(t, payload.ArtifactURL, done.Versions[0].ArtifactURL)
	assert.Equal(t, payload.StorageKey, done.Versions[0].StorageKey)

	// Terminal states are absorbing
	_, err = s.CompleteJob(ctx, j.JobID, payload)
	assert.ErrorIs(t, err, job.ErrInvalidTransition)
	_, err = s.FailJob(ctx, j.JobID, "late failure")
	assert.ErrorIs(t, err, job.ErrInvalidTransition)

	// The stored record is unchanged by the rejected mutations
	got, err := s.GetJob(ctx, j.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, got.Status)
	assert.Empty(t, got.ErrorMessage)
	assert.Len(t, got.Versions, 1)
}

func TestMemory_FailJob(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	j := newQueuedJob(t, s)
	_, err := s.MarkStarted(ctx, j.JobID)
	require.NoError(t, err)
	_, err = s.SetProgress(ctx, j.JobID, 60)
	require.NoError(t, err)

	failed, err := s.FailJob(ctx, j.JobID, "upstream timeout")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, failed.Status)
	assert.Equal(t, "upstream timeout", failed.ErrorMessage)
	// Progress keeps its last value on failure
	assert.Equal(t, 60, failed.Progress)

	_, err = s.CompleteJob(ctx, j.JobID, &job.VersionPayload{})
	assert.ErrorIs(t, err, job.ErrInvalidTransition)
}

func TestMemory_CompleteJob_RequiresProcessing(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	j := newQueuedJob(t, s)

	_, err := s.CompleteJob(ctx, j.JobID, &job.VersionPayload{})
	assert.ErrorIs(t, err, job.ErrInvalidTransition)

	_, err = s.FailJob(ctx, j.JobID, "boom")
	assert.ErrorIs(t, err, job.ErrInvalidTransition)
}

func TestMemory_RecordCallbackResult(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	j := newQueuedJob(t, s)
	_, err := s.MarkStarted(ctx, j.JobID)
	require.NoError(t, err)
	_, err = s.FailJob(ctx, j.JobID, "boom")
	require.NoError(t, err)

	require.NoError(t, s.RecordCallbackResult(ctx, j.JobID, 3, "webhook returned status 500"))

	got, err := s.GetJob(ctx, j.JobID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CallbackAttempts)
	assert.Equal(t, "webhook returned status 500", got.CallbackLastError)
	// Bookkeeping never touches status
	assert.Equal(t, job.StatusFailed, got.Status)

	err = s.RecordCallbackResult(ctx, uuid.New().String(), 1, "")
	assert.ErrorIs(t, err, job.ErrNotFound)
}

func TestMemory_ListJobs(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		userID := "user-1"
		jobType := job.TypeImageGeneration
		if i%2 == 1 {
			userID = "user-2"
			jobType = job.TypeTranscription
		}
		j := &job.Job{
			JobID:     fmt.Sprintf("00000000-0000-0000-0000-00000000000%d", i),
			UserID:    userID,
			Type:      jobType,
			Status:    job.StatusQueued,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.CreateJob(ctx, j))
	}

	t.Run("newest first", func(t *testing.T) {
		out, err := s.ListJobs(ctx, JobFilter{})
		require.NoError(t, err)
		require.Len(t, out, 5)
		for i := 1; i < len(out); i++ {
			assert.True(t, !out[i].CreatedAt.After(out[i-1].CreatedAt))
		}
	})

	t.Run("filter by user", func(t *testing.T) {
		out, err := s.ListJobs(ctx, JobFilter{UserID: "user-2"})
		require.NoError(t, err)
		require.Len(t, out, 2)
		for _, j := range out {
			assert.Equal(t, "user-2", j.UserID)
		}
	})

	t.Run("filter by type and status", func(t *testing.T) {
		out, err := s.ListJobs(ctx, JobFilter{Type: job.TypeTranscription, Status: job.StatusQueued})
		require.NoError(t, err)
		require.Len(t, out, 2)
	})

	t.Run("cursor pagination", func(t *testing.T) {
		first, err := s.ListJobs(ctx, JobFilter{PageSize: 2})
		require.NoError(t, err)
		// PageSize+1 rows signal another page
		require.Len(t, first, 3)

		cursor := &Cursor{CreatedAt: first[1].CreatedAt, JobID: first[1].JobID}
		second, err := s.ListJobs(ctx, JobFilter{PageSize: 2, Cursor: cursor})
		require.NoError(t, err)
		require.NotEmpty(t, second)

		// No overlap across pages
		seen := map[string]bool{first[0].JobID: true, first[1].JobID: true}
		for _, j := range second {
			assert.False(t, seen[j.JobID], "job %s duplicated across pages", j.JobID)
		}
	})
}

func TestMemory_CloneIsolation(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	j := newQueuedJob(t, s)

	got, err := s.GetJob(ctx, j.JobID)
	require.NoError(t, err)
	got.Status = job.StatusFailed
	got.Progress = 99

	again, err := s.GetJob(ctx, j.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, again.Status)
	assert.Equal(t, 0, again.Progress)
}
