package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/forgelabs/genjobs/internal/job"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case task, ok := <-w.jobsChan:
			if !ok {
				return
			}

			err := w.processJob(ctx, task)

			channel := w.queueClient.GetChannel()
			if channel == nil {
				w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
					slog.String("worker_name", workerName),
					slog.String("job_id", task.jobID),
				)
				continue
			}

			if err != nil {
				requeue := w.shouldRequeueJob(err)

				w.logger.Error("Job processing failed",
					slog.String("worker_name", workerName),
					slog.String("job_id", task.jobID),
					slog.Bool("requeue", requeue),
					slog.String("error", err.Error()),
				)

				if nackErr := channel.Nack(task.deliveryTag, false, requeue); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("worker_name", workerName),
						slog.String("job_id", task.jobID),
						slog.String("error", nackErr.Error()),
					)
				}
			} else {
				if ackErr := channel.Ack(task.deliveryTag, false); ackErr != nil {
					w.logger.Error("Failed to ACK message",
						slog.String("worker_name", workerName),
						slog.String("job_id", task.jobID),
						slog.String("error", ackErr.Error()),
					)
				}
			}
		}
	}
}

// shouldRequeueJob determines if a job message should be requeued based on
// the error type. Only transient infrastructure errors are requeued; a job
// that was driven to failed state is resolved and must not run again.
func (w *Worker) shouldRequeueJob(err error) bool {
	// A terminal or unknown job cannot make progress on a retry
	if errors.Is(err, job.ErrInvalidTransition) || errors.Is(err, job.ErrNotFound) {
		return false
	}

	var retryableErr *job.RetryableError
	return errors.As(err, &retryableErr)
}
