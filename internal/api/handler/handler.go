package handler

import (
	"log/slog"

	"github.com/aidekit/aide-be/internal/api/storage"
	"github.com/aidekit/aide-be/internal/health"
	"github.com/aidekit/aide-be/internal/queue"
	"github.com/aidekit/aide-be/shared/postgresql"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	DBClient    *postgresql.Client
	Storage     *storage.Storage
	Producer    *queue.Producer
	HealthStore health.StatusStore
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger   *slog.Logger
	storage  *storage.Storage
	producer *queue.Producer
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:   deps.Logger,
		storage:  deps.Storage,
		producer: deps.Producer,
	}
}

// HealthHandler reports API liveness and the monitor's persisted view
// of the LLM sidecar.
type HealthHandler struct {
	logger      *slog.Logger
	dbClient    *postgresql.Client
	healthStore health.StatusStore
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		logger:      deps.Logger,
		dbClient:    deps.DBClient,
		healthStore: deps.HealthStore,
	}
}
