package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aidekit/aide-be/internal/assistant"
	"github.com/aidekit/aide-be/internal/config"
	"github.com/aidekit/aide-be/internal/health"
	"github.com/aidekit/aide-be/internal/llm"
	"github.com/aidekit/aide-be/internal/metrics"
	"github.com/aidekit/aide-be/internal/notify"
	"github.com/aidekit/aide-be/internal/queue"
	"github.com/aidekit/aide-be/internal/worker"
	"github.com/aidekit/aide-be/internal/worker/storage"
	"github.com/aidekit/aide-be/shared/logger"
	"github.com/aidekit/aide-be/shared/postgresql"
	"github.com/aidekit/aide-be/shared/rabbitmq"
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

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	consumerName := queue.ConsumerName()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("consumer", consumerName),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = dbClient.InitSchema(schemaCtx)
	schemaCancel()
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Initialize RabbitMQ client
	busClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Declare job and notification topology before any loop consumes.
	topologyCtx, topologyCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = worker.SetupTopology(topologyCtx, busClient)
	topologyCancel()
	if err != nil {
		return fmt.Errorf("failed to set up queue topology: %w", err)
	}

	// LLM sidecar client, shared by the job handlers and the health
	// monitor's probe.
	llmClient := llm.NewClient(&llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		RequestTimeout: cfg.LLM.RequestTimeout,
	}, appLogger.Logger)

	jobStore := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)
	healthStore := storage.NewHealthStore(dbClient.GetDB(), "llm", appLogger.Logger)

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:       appLogger.Logger,
		Bus:          busClient,
		Store:        jobStore,
		Handlers:     assistant.NewRegistry(llmClient, appLogger.Logger),
		Consumer:     consumerName,
		BatchSize:    cfg.Worker.BatchSize,
		BlockTimeout: cfg.Worker.BlockTimeout,
		ErrorBackoff: cfg.Worker.ErrorBackoff,
		MaxRetries:   cfg.Worker.MaxRetries,
	})

	// Health monitor broadcasting actual status transitions to the
	// notification topic.
	monitor := health.NewMonitor(
		llmClient,
		healthStore,
		statusBroadcast(busClient, cfg.Health.BroadcastUserID),
		&health.MonitorConfig{
			Dependency:   "llm",
			Interval:     cfg.Health.Interval,
			ProbeTimeout: cfg.Health.ProbeTimeout,
			TTL:          cfg.Health.TTL,
		},
		appLogger.Logger,
	)

	// Notification fan-out consumer.
	notifier := notify.NewConsumer(
		busClient,
		notify.DefaultFormatters(),
		notify.NewBusSender(busClient, appLogger.Logger),
		&notify.ConsumerConfig{
			Consumer:     consumerName,
			BatchSize:    cfg.Notify.BatchSize,
			BlockTimeout: cfg.Notify.BlockTimeout,
			ErrorBackoff: cfg.Notify.ErrorBackoff,
			FloodDelay:   cfg.Notify.FloodDelay,
		},
		appLogger.Logger,
	)

	if cfg.Metrics.Addr != "" {
		metrics.StartServer(cfg.Metrics.Addr, appLogger.Logger)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		workerInstance.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		notifier.Run(ctx)
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	appLogger.Info("Received signal, shutting down gracefully",
		slog.String("signal", sig.String()),
	)

	// Cancel context to stop all loops
	cancel()

	// Give loops time to drain in-flight work
	shutdownTimeout := cfg.Worker.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if busClient != nil {
			busClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// statusBroadcast returns the monitor callback that publishes a
// service_status notification on each transition. With no configured
// recipient the callback is nil and transitions are only logged.
func statusBroadcast(bus queue.Bus, userID string) health.ChangeFunc {
	if userID == "" {
		return nil
	}

	return func(ctx context.Context, newStatus, prevStatus health.Status) error {
		content, err := json.Marshal(map[string]string{
			"status":   string(newStatus),
			"previous": string(prevStatus),
		})
		if err != nil {
			return err
		}

		envelope, err := json.Marshal(queue.NotificationEnvelope{
			UserID:      userID,
			MessageType: queue.MessageTypeServiceStatus,
			Content:     content,
		})
		if err != nil {
			return err
		}

		return bus.Publish(ctx, queue.NotificationTopic, envelope)
	}
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		ConnectionTimeout: cfg.Connection.ConnectionTimeout,
		PublishRetries:    cfg.Publish.RetryAttempts,
		PublishRetryDelay: cfg.Publish.RetryInterval,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
