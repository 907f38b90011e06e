package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// JobRecorder persists the job row before its envelope is published.
// Owned by the CRUD layer; the producer only ever creates jobs in the
// queued state.
type JobRecorder interface {
	CreateJob(ctx context.Context, jobID string, jobType JobType, payload json.RawMessage, owner string) error
}

// Producer submits background work: it records the job as queued and
// appends its envelope to the topic selected by job type.
type Producer struct {
	bus    Bus
	jobs   JobRecorder
	logger *slog.Logger
}

// NewProducer creates a Producer.
func NewProducer(bus Bus, jobs JobRecorder, logger *slog.Logger) *Producer {
	return &Producer{
		bus:    bus,
		jobs:   jobs,
		logger: logger,
	}
}

// Enqueue creates a queued job and publishes its envelope. The returned
// job id is the caller's handle for polling job state.
func (p *Producer) Enqueue(ctx context.Context, jobType JobType, payload json.RawMessage, owner string) (string, error) {
	if !jobType.IsValid() {
		return "", fmt.Errorf("unknown job type: %q", jobType)
	}

	jobID := uuid.New().String()

	if err := p.jobs.CreateJob(ctx, jobID, jobType, payload, owner); err != nil {
		return "", fmt.Errorf("failed to record job: %w", err)
	}

	envelope := JobEnvelope{
		JobID:   jobID,
		JobType: jobType,
		Payload: payload,
		Owner:   owner,
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to encode job envelope: %w", err)
	}

	if err := p.bus.Publish(ctx, TopicForJob(jobType), body); err != nil {
		return "", fmt.Errorf("failed to publish job envelope: %w", err)
	}

	p.logger.Info("Job enqueued",
		slog.String("job_id", jobID),
		slog.String("job_type", string(jobType)),
	)

	return jobID, nil
}
