package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aidekit/aide-be/internal/metrics"
	"github.com/aidekit/aide-be/internal/queue"
)

// ConsumerConfig holds notification consumer configuration.
type ConsumerConfig struct {
	Consumer     string
	BatchSize    int
	BlockTimeout time.Duration
	ErrorBackoff time.Duration
	// FloodDelay is slept before sending to a recipient who also
	// received the immediately preceding message, protecting the
	// downstream per-recipient rate limit.
	FloodDelay time.Duration
}

// Consumer drains the fan-in notification topic and dispatches each
// envelope by message type to a formatter, then to the delivery
// surface. It never exits except on cancellation.
type Consumer struct {
	bus        queue.Bus
	formatters Formatters
	sender     Sender
	logger     *slog.Logger

	consumer     string
	batchSize    int
	blockTimeout time.Duration
	errorBackoff time.Duration
	floodDelay   time.Duration

	// Recipient of the previously processed message in this run.
	lastUserID string

	// Overridable in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// NewConsumer creates a notification consumer.
func NewConsumer(bus queue.Bus, formatters Formatters, sender Sender, cfg *ConsumerConfig, logger *slog.Logger) *Consumer {
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
	floodDelay := cfg.FloodDelay
	if floodDelay <= 0 {
		floodDelay = time.Second
	}

	return &Consumer{
		bus:          bus,
		formatters:   formatters,
		sender:       sender,
		logger:       logger,
		consumer:     cfg.Consumer,
		batchSize:    batchSize,
		blockTimeout: blockTimeout,
		errorBackoff: errorBackoff,
		floodDelay:   floodDelay,
		sleep:        sleepCtx,
	}
}

// Run consumes the notification topic until the context is cancelled.
// Top-level failures are logged and followed by a fixed backoff.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("Notification consumer started",
		slog.String("consumer", c.consumer),
		slog.Duration("flood_delay", c.floodDelay),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Notification consumer stopped - context canceled")
			return
		default:
		}

		batch, err := c.bus.Consume(ctx, queue.NotificationTopic, queue.NotifierGroup, c.consumer, c.batchSize, c.blockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Notification consumer stopped - context canceled")
				return
			}
			c.logger.Error("Failed to consume notifications, backing off",
				slog.Any("error", err),
				slog.Duration("backoff", c.errorBackoff),
			)
			c.sleep(ctx, c.errorBackoff)
			continue
		}

		for _, msg := range batch {
			c.process(ctx, msg)
		}
	}
}

// process dispatches one notification. Every path acknowledges: a crash
// mid-send is the only scenario that can re-deliver a message.
func (c *Consumer) process(ctx context.Context, msg queue.Message) {
	defer c.ack(msg.ID)

	var envelope queue.NotificationEnvelope
	if err := json.Unmarshal(msg.Body, &envelope); err != nil {
		c.logger.Error("Dropping malformed notification envelope",
			slog.Uint64("message_id", msg.ID),
			slog.Any("error", err),
		)
		return
	}

	if envelope.UserID != "" && envelope.UserID == c.lastUserID {
		c.sleep(ctx, c.floodDelay)
	}
	c.lastUserID = envelope.UserID

	formatter, ok := c.formatters[envelope.MessageType]
	if !ok {
		c.logger.Warn("No formatter for message type, skipping",
			slog.String("message_type", string(envelope.MessageType)),
			slog.String("user_id", envelope.UserID),
		)
		return
	}

	text, err := formatter(envelope.Content)
	if err != nil {
		c.logger.Error("Failed to format notification",
			slog.String("message_type", string(envelope.MessageType)),
			slog.Any("error", err),
		)
		return
	}

	if err := c.sender.Send(ctx, envelope.UserID, text); err != nil {
		// One bad recipient must not stall the batch.
		c.logger.Error("Failed to send notification",
			slog.String("message_type", string(envelope.MessageType)),
			slog.String("user_id", envelope.UserID),
			slog.Any("error", err),
		)
		return
	}

	metrics.NotificationsSent.WithLabelValues(string(envelope.MessageType)).Inc()
	c.logger.Debug("Notification sent",
		slog.String("message_type", string(envelope.MessageType)),
		slog.String("user_id", envelope.UserID),
	)
}

func (c *Consumer) ack(id uint64) {
	if err := c.bus.Ack(queue.NotificationTopic, queue.NotifierGroup, id); err != nil {
		c.logger.Error("Failed to ack notification",
			slog.Uint64("message_id", id),
			slog.Any("error", err),
		)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
