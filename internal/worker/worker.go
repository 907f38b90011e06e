package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aidekit/aide-be/internal/queue"
)

// Config holds worker configuration
type Config struct {
	Logger       *slog.Logger
	Bus          queue.Bus
	Store        JobStore
	Handlers     Registry
	Consumer     string
	BatchSize    int
	BlockTimeout time.Duration
	ErrorBackoff time.Duration
	MaxRetries   int
}

// Worker runs one dispatch loop per job-type topic. Parallelism across
// replicas comes from running more worker processes against the same
// consumer groups, not from fanning out inside one process.
type Worker struct {
	logger      *slog.Logger
	bus         queue.Bus
	dispatchers []*Dispatcher
	wg          sync.WaitGroup
}

// NewWorker creates a worker with one dispatcher (and one retry
// tracker) per known job type.
func NewWorker(cfg *Config) *Worker {
	dispatchers := make([]*Dispatcher, 0, len(queue.JobTypes))
	for _, jobType := range queue.JobTypes {
		dispatchers = append(dispatchers, NewDispatcher(cfg.Bus, cfg.Store, cfg.Handlers, &DispatcherConfig{
			JobType:      jobType,
			Consumer:     cfg.Consumer,
			BatchSize:    cfg.BatchSize,
			BlockTimeout: cfg.BlockTimeout,
			ErrorBackoff: cfg.ErrorBackoff,
			MaxRetries:   cfg.MaxRetries,
		}, cfg.Logger))
	}

	return &Worker{
		logger:      cfg.Logger,
		bus:         cfg.Bus,
		dispatchers: dispatchers,
	}
}

// SetupTopology declares every job topic with the shared worker group
// and the notification topic with the notifier group. Idempotent.
func SetupTopology(ctx context.Context, bus queue.Bus) error {
	for _, jobType := range queue.JobTypes {
		if err := bus.CreateGroup(ctx, queue.TopicForJob(jobType), queue.WorkerGroup); err != nil {
			return fmt.Errorf("failed to create worker group for %s: %w", jobType, err)
		}
	}

	if err := bus.CreateGroup(ctx, queue.NotificationTopic, queue.NotifierGroup); err != nil {
		return fmt.Errorf("failed to create notifier group: %w", err)
	}

	return nil
}

// Start launches the dispatch loops and blocks until the context is
// cancelled and every loop has unwound.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting worker",
		slog.Int("dispatchers", len(w.dispatchers)),
	)

	for _, dispatcher := range w.dispatchers {
		w.wg.Add(1)
		go func(d *Dispatcher) {
			defer w.wg.Done()
			d.Run(ctx)
		}(dispatcher)
	}

	<-ctx.Done()
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
