package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/forgelabs/genjobs/internal/job"
)

// processJob drives one job through the state machine. The returned error
// decides the broker ack: nil means resolved (completed or failed in the
// store), a RetryableError means the message should be redelivered.
func (w *Worker) processJob(ctx context.Context, task *jobTask) error {
	w.logger.Info("Processing job",
		slog.String("job_id", task.jobID),
		slog.String("worker_id", w.workerID),
	)

	// Register start. Idempotent when a redelivered message finds the job
	// already processing; a terminal job means this delivery is stale.
	j, err := w.machine.MarkStarted(ctx, task.jobID)
	if err != nil {
		if errors.Is(err, job.ErrInvalidTransition) {
			w.logger.Warn("Job already resolved, dropping delivery",
				slog.String("job_id", task.jobID),
			)
			return fmt.Errorf("job already resolved: %w", err)
		}
		if errors.Is(err, job.ErrNotFound) {
			w.logger.Error("Job message references unknown job",
				slog.String("job_id", task.jobID),
			)
			return err
		}
		// Store errors are assumed transient
		return job.NewRetryableError(fmt.Errorf("failed to mark job started: %w", err))
	}

	gen, ok := w.generators.For(j.Type)
	if !ok {
		w.logger.Error("No generator registered for job type",
			slog.String("job_id", j.JobID),
			slog.String("job_type", j.Type),
		)
		w.failJob(ctx, j.JobID, fmt.Sprintf("unsupported job type: %s", j.Type))
		return nil
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	payload, genErr := gen.Generate(jobCtx, j, func(percent int) {
		// Stale reports are dropped by the store; other errors are only
		// logged since progress is advisory.
		if _, err := w.machine.SetProgress(ctx, j.JobID, percent); err != nil {
			w.logger.Warn("Failed to report job progress",
				slog.String("job_id", j.JobID),
				slog.Int("percent", percent),
				slog.String("error", err.Error()),
			)
		}
	})

	if genErr != nil {
		w.logger.Error("Job generation failed",
			slog.String("job_id", j.JobID),
			slog.String("job_type", j.Type),
			slog.String("error", genErr.Error()),
		)
		w.failJob(ctx, j.JobID, genErr.Error())
		return nil
	}

	if _, err := w.machine.Complete(ctx, j.JobID, payload); err != nil {
		if errors.Is(err, job.ErrInvalidTransition) {
			// A racing duplicate already completed it; the result stands.
			w.logger.Warn("Duplicate completion rejected",
				slog.String("job_id", j.JobID),
			)
			return nil
		}
		return job.NewRetryableError(fmt.Errorf("failed to complete job: %w", err))
	}

	w.logger.Info("Job completed successfully",
		slog.String("job_id", j.JobID),
		slog.String("job_type", j.Type),
	)

	return nil
}

// failJob records an upstream failure on the job. A rejection here means a
// concurrent writer already resolved the job, which is acceptable.
func (w *Worker) failJob(ctx context.Context, jobID, message string) {
	if _, err := w.machine.Fail(ctx, jobID, message); err != nil {
		w.logger.Error("Failed to mark job failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}
