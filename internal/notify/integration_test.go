package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/forgelabs/genjobs/internal/job"
	"github.com/forgelabs/genjobs/internal/jobstore"
	"github.com/forgelabs/genjobs/internal/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Drives a job through the full machine lifecycle and asserts the terminal
// webhook arrives with the completion payload.
func TestMachineDrivenDelivery(t *testing.T) {
	store := jobstore.NewMemory()
	ctx := context.Background()

	received := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier := New(store, fastConfig(), testLogger())
	machine := lifecycle.New(store, notifier, testLogger())

	created, err := machine.Create(ctx, lifecycle.CreateParams{
		Type:        job.TypeImageGeneration,
		UserID:      "user-1",
		Config:      json.RawMessage(`{"prompt":"a lighthouse at dusk"}`),
		CallbackURL: srv.URL,
	})
	require.NoError(t, err)

	_, err = machine.MarkStarted(ctx, created.JobID)
	require.NoError(t, err)
	_, err = machine.SetProgress(ctx, created.JobID, 50)
	require.NoError(t, err)
	_, err = machine.Complete(ctx, created.JobID, &job.VersionPayload{
		ArtifactURL: "https://cdn.example.com/image.png",
		ContentType: "image/png",
		SizeBytes:   2048,
	})
	require.NoError(t, err)

	select {
	case payload := <-received:
		assert.Equal(t, "job.completed", payload["event"])
		assert.Equal(t, created.JobID, payload["jobId"])
		assert.Equal(t, "user-1", payload["userId"])
		require.Contains(t, payload, "image")
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered")
	}

	// Snapshot after the dust settles: completed, full progress, one version
	require.Eventually(t, func() bool {
		j, err := store.GetJob(ctx, created.JobID)
		return err == nil && j.CallbackAttempts == 1
	}, 2*time.Second, 10*time.Millisecond)

	final, err := store.GetJob(ctx, created.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	require.Len(t, final.Versions, 1)
	assert.Empty(t, final.CallbackLastError)
}
