package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/forgelabs/genjobs/internal/generate"
	"github.com/forgelabs/genjobs/internal/lifecycle"
	"github.com/forgelabs/genjobs/shared/queue"
	"github.com/google/uuid"
)

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	QueueClient   *queue.Client
	Machine       *lifecycle.Machine
	Generators    generate.Registry
	Concurrency   int
	JobTimeout    time.Duration
	PrefetchCount int
}

// jobTask pairs a consumed job id with its broker delivery tag for ack/nack.
type jobTask struct {
	jobID       string
	deliveryTag uint64
}

// Worker consumes job hand-off messages and drives each job through the
// state machine: markStarted, progress reports, then complete or fail.
type Worker struct {
	logger        *slog.Logger
	queueClient   *queue.Client
	machine       *lifecycle.Machine
	generators    generate.Registry
	concurrency   int
	jobTimeout    time.Duration
	prefetchCount int
	workerID      string
	jobsChan      chan *jobTask
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:        cfg.Logger,
		queueClient:   cfg.QueueClient,
		machine:       cfg.Machine,
		generators:    cfg.Generators,
		concurrency:   cfg.Concurrency,
		jobTimeout:    cfg.JobTimeout,
		prefetchCount: cfg.PrefetchCount,
		workerID:      "worker-" + uuid.New().String()[:8],
		jobsChan:      make(chan *jobTask),
		stopChan:      make(chan struct{}),
	}
}

// Start begins consuming and processing jobs. Blocks until the context is
// cancelled or the broker delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
