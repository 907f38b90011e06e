package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aidekit/aide-be/internal/metrics"
	"github.com/aidekit/aide-be/internal/queue"
	"github.com/aidekit/aide-be/internal/worker/domain"
)

// JobStore updates job lifecycle state. Jobs are owned by the producing
// service; the dispatch loop only ever transitions status and sets
// result or error message.
type JobStore interface {
	UpdateJob(ctx context.Context, jobID string, status domain.Status, result map[string]any, errorMessage string) error
}

// correlationKeys are payload fields worth carrying into a job_failed
// notification so the delivery surface can reference the originating
// entity.
var correlationKeys = []string{"memory_id", "task_id", "reminder_id", "event_id", "message_id"}

// DispatcherConfig holds per-topic dispatch loop configuration.
type DispatcherConfig struct {
	JobType      queue.JobType
	Consumer     string
	BatchSize    int
	BlockTimeout time.Duration
	ErrorBackoff time.Duration
	MaxRetries   int
}

// Dispatcher drains one job-type topic and resolves every delivered
// envelope into job-state updates, acknowledgements, and outbound
// notifications. One Dispatcher owns one RetryTracker; it is not safe
// to run the same Dispatcher from multiple goroutines.
type Dispatcher struct {
	bus      queue.Bus
	store    JobStore
	handlers Registry
	retries  *RetryTracker
	logger   *slog.Logger

	topic        string
	consumer     string
	batchSize    int
	blockTimeout time.Duration
	errorBackoff time.Duration
}

// NewDispatcher creates a dispatch loop for one job-type topic.
func NewDispatcher(bus queue.Bus, store JobStore, handlers Registry, cfg *DispatcherConfig, logger *slog.Logger) *Dispatcher {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	blockTimeout := cfg.BlockTimeout
	if blockTimeout <= 0 {
		blockTimeout = 5 * time.Second
	}
	errorBackoff := cfg.ErrorBackoff
	if errorBackoff <= 0 {
		errorBackoff = 5 * time.Second
	}

	return &Dispatcher{
		bus:          bus,
		store:        store,
		handlers:     handlers,
		retries:      NewRetryTracker(cfg.MaxRetries),
		logger:       logger.With(slog.String("topic", queue.TopicForJob(cfg.JobType))),
		topic:        queue.TopicForJob(cfg.JobType),
		consumer:     cfg.Consumer,
		batchSize:    batchSize,
		blockTimeout: blockTimeout,
		errorBackoff: errorBackoff,
	}
}

// Run consumes batches until the context is cancelled. Bus errors are
// transient: the loop logs, backs off, and tries again.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Dispatch loop started",
		slog.String("consumer", d.consumer),
		slog.Int("batch_size", d.batchSize),
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Dispatch loop stopped - context canceled")
			return
		default:
		}

		batch, err := d.bus.Consume(ctx, d.topic, queue.WorkerGroup, d.consumer, d.batchSize, d.blockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				d.logger.Info("Dispatch loop stopped - context canceled")
				return
			}
			d.logger.Error("Failed to consume batch, backing off",
				slog.Any("error", err),
				slog.Duration("backoff", d.errorBackoff),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.errorBackoff):
			}
			continue
		}

		for _, msg := range batch {
			d.process(ctx, msg)
		}
	}
}

// process resolves one delivered message. Malformed or unroutable
// envelopes are acknowledged immediately so a poison message can never
// wedge the topic.
func (d *Dispatcher) process(ctx context.Context, msg queue.Message) {
	var envelope queue.JobEnvelope
	if err := json.Unmarshal(msg.Body, &envelope); err != nil {
		d.logger.Error("Dropping malformed envelope",
			slog.Uint64("message_id", msg.ID),
			slog.Any("error", err),
		)
		metrics.JobsProcessed.WithLabelValues("unknown", "skipped").Inc()
		d.ack(msg.ID)
		return
	}

	handler, ok := d.handlers[envelope.JobType]
	if !ok {
		d.logger.Warn("No handler registered for job type, dropping",
			slog.String("job_type", string(envelope.JobType)),
			slog.String("job_id", envelope.JobID),
		)
		metrics.JobsProcessed.WithLabelValues(string(envelope.JobType), "skipped").Inc()
		d.ack(msg.ID)
		return
	}

	start := time.Now()
	result, err := handler.Handle(ctx, envelope.JobID, envelope.Payload, envelope.Owner)
	metrics.JobDuration.WithLabelValues(string(envelope.JobType)).Observe(time.Since(start).Seconds())

	if err != nil {
		d.handleFailure(ctx, msg, &envelope, err)
		return
	}

	d.retries.Clear(envelope.JobID)

	if uerr := d.store.UpdateJob(ctx, envelope.JobID, domain.StatusCompleted, result, ""); uerr != nil {
		d.logger.Error("Failed to mark job completed",
			slog.String("job_id", envelope.JobID),
			slog.Any("error", uerr),
		)
	}

	if result != nil {
		d.publishNotification(ctx, envelope.Owner, result.MessageType(), result)
	}

	d.logger.Info("Job completed",
		slog.String("job_id", envelope.JobID),
		slog.String("job_type", string(envelope.JobType)),
	)
	metrics.JobsProcessed.WithLabelValues(string(envelope.JobType), "completed").Inc()
	d.ack(msg.ID)
}

// handleFailure routes a handler error through the retry/terminal path.
// A retryable failure leaves the job claimable for another attempt; an
// exhausted one drains from the pending set with a job_failed
// notification for the owner.
func (d *Dispatcher) handleFailure(ctx context.Context, msg queue.Message, envelope *queue.JobEnvelope, handlerErr error) {
	d.retries.RecordAttempt(envelope.JobID)

	if d.retries.ShouldRetry(envelope.JobID) {
		d.logger.Warn("Job failed, will retry",
			slog.String("job_id", envelope.JobID),
			slog.String("job_type", string(envelope.JobType)),
			slog.Any("error", handlerErr),
		)

		if uerr := d.store.UpdateJob(ctx, envelope.JobID, domain.StatusProcessing, nil, ""); uerr != nil {
			d.logger.Error("Failed to mark job processing",
				slog.String("job_id", envelope.JobID),
				slog.Any("error", uerr),
			)
		}

		metrics.JobsProcessed.WithLabelValues(string(envelope.JobType), "retried").Inc()

		if nerr := d.bus.Nack(d.topic, queue.WorkerGroup, msg.ID); nerr != nil {
			d.logger.Error("Failed to requeue message",
				slog.Uint64("message_id", msg.ID),
				slog.Any("error", nerr),
			)
		}
		return
	}

	d.logger.Error("Job failed permanently, retries exhausted",
		slog.String("job_id", envelope.JobID),
		slog.String("job_type", string(envelope.JobType)),
		slog.Any("error", handlerErr),
	)

	if uerr := d.store.UpdateJob(ctx, envelope.JobID, domain.StatusFailed, nil, handlerErr.Error()); uerr != nil {
		d.logger.Error("Failed to mark job failed",
			slog.String("job_id", envelope.JobID),
			slog.Any("error", uerr),
		)
	}

	d.publishNotification(ctx, envelope.Owner, queue.MessageTypeJobFailed, failureContent(envelope))

	d.retries.Clear(envelope.JobID)
	metrics.JobsProcessed.WithLabelValues(string(envelope.JobType), "failed").Inc()
	d.ack(msg.ID)
}

// failureContent builds the job_failed notification content: the job
// type plus whatever correlating identifier the payload carried.
func failureContent(envelope *queue.JobEnvelope) Result {
	content := Result{
		"type":     string(queue.MessageTypeJobFailed),
		"job_type": string(envelope.JobType),
	}

	var payload map[string]any
	if len(envelope.Payload) > 0 {
		if err := json.Unmarshal(envelope.Payload, &payload); err == nil {
			for _, key := range correlationKeys {
				if v, ok := payload[key]; ok {
					content[key] = v
				}
			}
		}
	}

	return content
}

func (d *Dispatcher) publishNotification(ctx context.Context, owner string, messageType queue.MessageType, content Result) {
	if owner == "" || messageType == "" {
		return
	}

	raw, err := json.Marshal(content)
	if err != nil {
		d.logger.Error("Failed to encode notification content", slog.Any("error", err))
		return
	}

	body, err := json.Marshal(queue.NotificationEnvelope{
		UserID:      owner,
		MessageType: messageType,
		Content:     raw,
	})
	if err != nil {
		d.logger.Error("Failed to encode notification envelope", slog.Any("error", err))
		return
	}

	if err := d.bus.Publish(ctx, queue.NotificationTopic, body); err != nil {
		d.logger.Error("Failed to publish notification",
			slog.String("message_type", string(messageType)),
			slog.Any("error", err),
		)
	}
}

func (d *Dispatcher) ack(id uint64) {
	if err := d.bus.Ack(d.topic, queue.WorkerGroup, id); err != nil {
		d.logger.Error("Failed to ack message",
			slog.Uint64("message_id", id),
			slog.Any("error", err),
		)
	}
}
