package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/forgelabs/genjobs/internal/job"
	"github.com/forgelabs/genjobs/internal/jobstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedJob(t *testing.T, store *jobstore.Memory, status string) *job.Job {
	t.Helper()
	ctx := context.Background()

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
	require.NoError(t, store.CreateJob(ctx, j))

	if status == job.StatusQueued {
		return j
	}

	_, err := store.MarkStarted(ctx, j.JobID)
	require.NoError(t, err)

	switch status {
	case job.StatusCompleted:
		j, err = store.CompleteJob(ctx, j.JobID, &job.VersionPayload{
			ArtifactURL: "https://cdn.example.com/image.png",
			ContentType: "image/png",
			SizeBytes:   2048,
		})
		require.NoError(t, err)
	case job.StatusFailed:
		j, err = store.FailJob(ctx, j.JobID, "provider exploded")
		require.NoError(t, err)
	}
	return j
}

func collectEvents(events *[]Event) EmitFunc {
	return func(e Event) error {
		*events = append(*events, e)
		return nil
	}
}

func TestRun_UnknownJob(t *testing.T) {
	store := jobstore.NewMemory()
	c := New(store, 5*time.Millisecond, testLogger())

	var events []Event
	err := c.Run(context.Background(), uuid.New().String(), collectEvents(&events))

	assert.ErrorIs(t, err, job.ErrNotFound)
	// Nothing is emitted when the job does not exist at connect time
	assert.Empty(t, events)
}

func TestRun_AlreadyCompletedAtConnect(t *testing.T) {
	store := jobstore.NewMemory()
	j := seedJob(t, store, job.StatusCompleted)
	c := New(store, time.Hour, testLogger()) // interval never fires

	var events []Event
	err := c.Run(context.Background(), j.JobID, collectEvents(&events))
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, EventConnected, events[0].Name)
	assert.Equal(t, j.JobID, events[0].Data["job_id"])

	final := events[1]
	assert.Equal(t, EventCompleted, final.Name)
	assert.Equal(t, 100, final.Data["progress"])
	assert.Equal(t, 1, final.Data["version"])
	assert.Equal(t, "https://cdn.example.com/image.png", final.Data["artifact_url"])
	assert.Equal(t, "image/png", final.Data["content_type"])
}

func TestRun_AlreadyFailedAtConnect(t *testing.T) {
	store := jobstore.NewMemory()
	j := seedJob(t, store, job.StatusFailed)
	c := New(store, time.Hour, testLogger())

	var events []Event
	err := c.Run(context.Background(), j.JobID, collectEvents(&events))
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, EventConnected, events[0].Name)
	assert.Equal(t, EventFailed, events[1].Name)
	assert.Equal(t, "provider exploded", events[1].Data["error"])
}

func TestRun_TicksUntilTerminal(t *testing.T) {
	store := jobstore.NewMemory()
	j := seedJob(t, store, job.StatusProcessing)
	ctx := context.Background()

	_, err := store.SetProgress(ctx, j.JobID, 30)
	require.NoError(t, err)

	c := New(store, 5*time.Millisecond, testLogger())

	var events []Event
	progressSeen := 0
	err = c.Run(ctx, j.JobID, func(e Event) error {
		events = append(events, e)
		if e.Name == EventProgress {
			progressSeen++
			// Resolve the job after a few heartbeats
			if progressSeen == 3 {
				_, completeErr := store.CompleteJob(ctx, j.JobID, &job.VersionPayload{
					ArtifactURL: "https://cdn.example.com/image.png",
				})
				require.NoError(t, completeErr)
			}
		}
		return nil
	})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(events), 5)
	assert.Equal(t, EventConnected, events[0].Name)
	assert.Equal(t, EventCompleted, events[len(events)-1].Name)

	// Heartbeats repeat the unchanged state
	assert.Equal(t, 30, events[1].Data["progress"])
	assert.Equal(t, 30, events[2].Data["progress"])
	assert.Equal(t, job.StatusProcessing, events[1].Data["status"])
}

func TestRun_ConsumerDisconnect(t *testing.T) {
	store := jobstore.NewMemory()
	j := seedJob(t, store, job.StatusProcessing)

	ctx, cancel := context.WithCancel(context.Background())
	c := New(store, 5*time.Millisecond, testLogger())

	var events []Event
	err := c.Run(ctx, j.JobID, func(e Event) error {
		events = append(events, e)
		if len(events) == 3 {
			cancel()
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, EventConnected, events[0].Name)
}

func TestRun_JobVanishesMidStream(t *testing.T) {
	store := jobstore.NewMemory()
	j := seedJob(t, store, job.StatusProcessing)

	c := New(store, 5*time.Millisecond, testLogger())

	var events []Event
	err := c.Run(context.Background(), j.JobID, func(e Event) error {
		events = append(events, e)
		if len(events) == 2 {
			store.DeleteJob(j.JobID)
		}
		return nil
	})

	assert.ErrorIs(t, err, job.ErrNotFound)
	final := events[len(events)-1]
	assert.Equal(t, EventError, final.Name)
	assert.Equal(t, "job no longer exists", final.Data["error"])
}

func TestRun_EmitFailureStopsLoop(t *testing.T) {
	store := jobstore.NewMemory()
	j := seedJob(t, store, job.StatusProcessing)

	c := New(store, 5*time.Millisecond, testLogger())

	sentinel := errors.New("consumer gone")
	calls := 0
	err := c.Run(context.Background(), j.JobID, func(e Event) error {
		calls++
		if calls == 2 {
			return sentinel
		}
		return nil
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 2, calls)
}
