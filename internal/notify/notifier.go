// Package notify delivers the one-shot terminal webhook for a job.
// Delivery is at-least-once with bounded retries; exhausting the retries
// abandons the delivery and never changes job status.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/forgelabs/genjobs/internal/job"
	"github.com/forgelabs/genjobs/internal/jobstore"
)

const userAgent = "genjobs-notifier/1.0"

// Config holds delivery policy settings.
type Config struct {
	Timeout     time.Duration // per-attempt request timeout
	MaxAttempts uint          // total attempts including the first
	BaseDelay   time.Duration // delay before retry n is BaseDelay * 2^(n-1)
}

// Notifier posts terminal job events to caller-supplied callback URLs.
type Notifier struct {
	store  jobstore.Store
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a Notifier. Zero config fields fall back to the documented
// policy: 10s timeout, 3 attempts, 1s base delay.
func New(store jobstore.Store, cfg Config, logger *slog.Logger) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}

	return &Notifier{
		store:  store,
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}
}

// Dispatch delivers the terminal event for j to its callback URL, retrying
// transient failures with exponential backoff. The outcome is recorded on
// the job for observability; a job whose callback never succeeds is still
// correctly terminal in the store.
func (n *Notifier) Dispatch(ctx context.Context, j *job.Job) {
	if j.CallbackURL == "" {
		return
	}

	payload := buildPayload(j)
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("Failed to marshal webhook payload",
			slog.String("job_id", j.JobID),
			slog.Any("error", err),
		)
		return
	}

	var attempts int
	err = retry.Do(
		func() error {
			attempts++
			return n.send(ctx, j.CallbackURL, body)
		},
		retry.Attempts(n.cfg.MaxAttempts),
		retry.Delay(n.cfg.BaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(attempt uint, err error) {
			n.logger.Warn("Webhook attempt failed, retrying",
				slog.String("job_id", j.JobID),
				slog.Uint64("attempt", uint64(attempt)+1),
				slog.Any("error", err),
			)
		}),
	)

	lastError := ""
	if err != nil {
		lastError = err.Error()
		n.logger.Error("Webhook delivery abandoned",
			slog.String("job_id", j.JobID),
			slog.Int("attempts", attempts),
			slog.String("error", lastError),
		)
	} else {
		n.logger.Info("Webhook delivered",
			slog.String("job_id", j.JobID),
			slog.Int("attempts", attempts),
		)
	}

	if recordErr := n.store.RecordCallbackResult(ctx, j.JobID, attempts, lastError); recordErr != nil {
		n.logger.Error("Failed to record webhook result",
			slog.String("job_id", j.JobID),
			slog.Any("error", recordErr),
		)
	}
}

// send performs one delivery attempt. Any non-2xx response, timeout, or
// connection error counts as a failed attempt.
func (n *Notifier) send(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
