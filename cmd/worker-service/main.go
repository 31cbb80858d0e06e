package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forgelabs/genjobs/internal/config"
	"github.com/forgelabs/genjobs/internal/generate"
	"github.com/forgelabs/genjobs/internal/job"
	"github.com/forgelabs/genjobs/internal/jobstore"
	"github.com/forgelabs/genjobs/internal/lifecycle"
	"github.com/forgelabs/genjobs/internal/notify"
	"github.com/forgelabs/genjobs/internal/worker"
	"github.com/forgelabs/genjobs/shared/logger"
	"github.com/forgelabs/genjobs/shared/objectstore"
	"github.com/forgelabs/genjobs/shared/postgresql"
	"github.com/forgelabs/genjobs/shared/queue"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorker(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	queueClient, err := queue.NewClient(&queue.Config{
		Host:               cfg.RabbitMQ.Host,
		Port:               cfg.RabbitMQ.Port,
		User:               cfg.RabbitMQ.User,
		Password:           cfg.RabbitMQ.Password,
		VHost:              cfg.RabbitMQ.VHost,
		ExchangeName:       cfg.RabbitMQ.Exchange.Name,
		ExchangeType:       cfg.RabbitMQ.Exchange.Type,
		ExchangeDurable:    cfg.RabbitMQ.Exchange.Durable,
		ExchangeAutoDelete: cfg.RabbitMQ.Exchange.AutoDelete,
		QueueName:          cfg.RabbitMQ.Queue.Name,
		QueueDurable:       cfg.RabbitMQ.Queue.Durable,
		QueueAutoDelete:    cfg.RabbitMQ.Queue.AutoDelete,
		QueueExclusive:     cfg.RabbitMQ.Queue.Exclusive,
		RoutingKey:         cfg.RabbitMQ.RoutingKey,
		RetryAttempts:      cfg.RabbitMQ.Connection.RetryAttempts,
		RetryInterval:      cfg.RabbitMQ.Connection.RetryInterval,
		Heartbeat:          cfg.RabbitMQ.Connection.Heartbeat,
		ConnectionTimeout:  cfg.RabbitMQ.Connection.ConnectionTimeout,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize object storage for result artifacts
	storageClient, err := objectstore.NewClient(ctx, &objectstore.Config{
		Region:        cfg.Storage.Region,
		Bucket:        cfg.Storage.Bucket,
		Endpoint:      cfg.Storage.Endpoint,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	// Wire the store, notifier, and state machine
	store := jobstore.NewPostgres(dbClient.GetDB(), appLogger.Logger)
	notifier := notify.New(store, notify.Config{
		Timeout:     cfg.Webhook.Timeout,
		MaxAttempts: cfg.Webhook.MaxAttempts,
		BaseDelay:   cfg.Webhook.BaseDelay,
	}, appLogger.Logger)
	machine := lifecycle.New(store, notifier, appLogger.Logger)

	// Register one generator per job type
	generators := generate.Registry{
		job.TypeTraining: generate.NewTrainingGenerator(
			generate.NewProviderClient(cfg.Providers.TrainingURL, cfg.Providers.RequestTimeout, cfg.Providers.PollInterval, appLogger.Logger),
			storageClient,
		),
		job.TypeImageGeneration: generate.NewImageGenerator(
			generate.NewProviderClient(cfg.Providers.ImageGenerationURL, cfg.Providers.RequestTimeout, cfg.Providers.PollInterval, appLogger.Logger),
			storageClient,
		),
		job.TypeTranscription: generate.NewTranscriptionGenerator(
			generate.NewProviderClient(cfg.Providers.TranscriptionURL, cfg.Providers.RequestTimeout, cfg.Providers.PollInterval, appLogger.Logger),
			storageClient,
		),
	}

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		QueueClient:   queueClient,
		Machine:       machine,
		Generators:    generators,
		Concurrency:   cfg.Worker.Concurrency,
		JobTimeout:    cfg.Worker.JobTimeout,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
	})

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancel context to stop worker
	cancel()

	// Give worker time to shutdown gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	if dbClient != nil {
		dbClient.Close()
	}
	if queueClient != nil {
		queueClient.Close()
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}
