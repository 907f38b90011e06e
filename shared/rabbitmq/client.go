package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aidekit/aide-be/internal/queue"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds RabbitMQ connection configuration
type Config struct {
	Host              string
	Port              int
	User              string
	Password          string
	VHost             string
	RetryAttempts     int
	RetryInterval     time.Duration
	Heartbeat         time.Duration
	ConnectionTimeout time.Duration
	PublishRetries    int
	PublishRetryDelay time.Duration
}

// Client exposes topic/consumer-group semantics over RabbitMQ. A topic
// is a durable fanout exchange; a consumer group is a durable queue
// bound to it, so every group receives every envelope and the members
// of one group compete for deliveries.
type Client struct {
	config      *Config
	conn        *amqp.Connection
	channel     *amqp.Channel
	logger      *slog.Logger
	closeChan   chan *amqp.Error
	isConnected bool

	pubMu sync.Mutex
	subMu sync.Mutex
	subs  map[string]*subscription
}

// subscription is the per-(topic, group) consuming channel. Delivery
// tags are scoped to this channel, so acks must go through it.
type subscription struct {
	channel    *amqp.Channel
	deliveries <-chan amqp.Delivery
}

// NewClient creates a new RabbitMQ client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config:    config,
		logger:    logger,
		closeChan: make(chan *amqp.Error),
		subs:      make(map[string]*subscription),
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Client) connect() error {
	var err error

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.config.User,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}

	for attempt := 1; attempt <= c.config.RetryAttempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.config.RetryAttempts),
		)

		c.conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			c.logger.Info("Successfully connected to RabbitMQ")
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < c.config.RetryAttempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", c.config.RetryAttempts, err)
	}

	// Dedicated channel for publishing
	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	// Monitor connection
	c.closeChan = make(chan *amqp.Error)
	c.channel.NotifyClose(c.closeChan)
	c.isConnected = true

	c.logger.Info("RabbitMQ client initialized")

	return nil
}

// groupQueue is the broker-side name of a consumer group's queue.
func groupQueue(topic, group string) string {
	return topic + "." + group
}

// CreateGroup declares the topic exchange, the group queue, and the
// binding between them. All declarations are idempotent, so creating a
// group that already exists is a no-op.
func (c *Client) CreateGroup(ctx context.Context, topic, group string) error {
	if !c.isConnected {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	err := c.channel.ExchangeDeclare(
		topic,    // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare topic %q: %w", topic, err)
	}

	queueName := groupQueue(topic, group)
	_, err = c.channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // auto-delete
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare group queue %q: %w", queueName, err)
	}

	if err := c.channel.QueueBind(queueName, "", topic, false, nil); err != nil {
		return fmt.Errorf("failed to bind group %q to topic %q: %w", group, topic, err)
	}

	c.logger.Debug("Consumer group ready",
		slog.String("topic", topic),
		slog.String("group", group),
	)

	return nil
}

// Publish appends an already-serialized envelope to the topic. The
// message is persistent and retried with backoff on transient publish
// failures.
func (c *Client) Publish(ctx context.Context, topic string, body []byte) error {
	if !c.isConnected {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	maxRetries := c.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	baseDelay := c.config.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		c.pubMu.Lock()
		err := c.channel.PublishWithContext(
			ctx,
			topic, // exchange
			"",    // routing key (fanout ignores it)
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
			},
		)
		c.pubMu.Unlock()

		if err == nil {
			c.logger.Debug("Message published",
				slog.String("topic", topic),
				slog.Int("body_size", len(body)),
			)
			return nil
		}

		lastErr = err

		if attempt < maxRetries {
			backoffDelay := time.Duration(float64(baseDelay) * float64(uint(1)<<uint(attempt)))
			c.logger.Warn("Failed to publish message, retrying...",
				slog.String("topic", topic),
				slog.Int("attempt", attempt+1),
				slog.Duration("retry_after", backoffDelay),
				slog.Any("error", err),
			)
			time.Sleep(backoffDelay)
		}
	}

	return fmt.Errorf("failed to publish to %q after %d attempts: %w", topic, maxRetries+1, lastErr)
}

// subscribe opens (or reuses) the consuming channel for a group.
func (c *Client) subscribe(topic, group, consumer string, prefetch int) (*subscription, error) {
	key := groupQueue(topic, group)

	c.subMu.Lock()
	defer c.subMu.Unlock()

	if sub, ok := c.subs[key]; ok {
		return sub, nil
	}

	channel, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}

	// Cap unacknowledged deliveries at the batch size so a stalled
	// consumer never hoards messages other group members could take.
	if err := channel.Qos(prefetch, 0, false); err != nil {
		channel.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := channel.Consume(
		key,      // queue
		consumer, // consumer tag
		false,    // auto-ack
		false,    // exclusive
		false,    // no-local
		false,    // no-wait
		nil,      // args
	)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("failed to start consuming %q: %w", key, err)
	}

	c.logger.Info("Consumer registered",
		slog.String("topic", topic),
		slog.String("group", group),
		slog.String("consumer", consumer),
		slog.Int("prefetch", prefetch),
	)

	sub := &subscription{channel: channel, deliveries: deliveries}
	c.subs[key] = sub
	return sub, nil
}

// Consume returns up to maxCount messages for the named consumer within
// the group, blocking up to blockTimeout for the first one. Returned
// message ids are delivery tags, valid for Ack/Nack on this group only.
func (c *Client) Consume(ctx context.Context, topic, group, consumer string, maxCount int, blockTimeout time.Duration) ([]queue.Message, error) {
	if !c.isConnected {
		return nil, fmt.Errorf("not connected to RabbitMQ")
	}

	sub, err := c.subscribe(topic, group, consumer, maxCount)
	if err != nil {
		return nil, err
	}

	var batch []queue.Message

	timer := time.NewTimer(blockTimeout)
	defer timer.Stop()

	// Block for the first delivery only; the rest of the batch is
	// whatever prefetch already pushed.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case delivery, ok := <-sub.deliveries:
		if !ok {
			return nil, fmt.Errorf("delivery channel closed for %q", groupQueue(topic, group))
		}
		batch = append(batch, queue.Message{ID: delivery.DeliveryTag, Body: delivery.Body})
	}

	for len(batch) < maxCount {
		select {
		case delivery, ok := <-sub.deliveries:
			if !ok {
				return batch, nil
			}
			batch = append(batch, queue.Message{ID: delivery.DeliveryTag, Body: delivery.Body})
		default:
			return batch, nil
		}
	}

	return batch, nil
}

// Ack acknowledges a delivered message. Once acked, the delivery never
// reappears to the group.
func (c *Client) Ack(topic, group string, id uint64) error {
	sub := c.lookup(topic, group)
	if sub == nil {
		return fmt.Errorf("no active consumer for %q", groupQueue(topic, group))
	}

	if err := sub.channel.Ack(id, false); err != nil {
		return fmt.Errorf("failed to ack message %d: %w", id, err)
	}
	return nil
}

// Nack returns an unacknowledged message to the group's queue so a
// later consume pass (by this or another group member) retries it.
func (c *Client) Nack(topic, group string, id uint64) error {
	sub := c.lookup(topic, group)
	if sub == nil {
		return fmt.Errorf("no active consumer for %q", groupQueue(topic, group))
	}

	if err := sub.channel.Nack(id, false, true); err != nil {
		return fmt.Errorf("failed to nack message %d: %w", id, err)
	}
	return nil
}

func (c *Client) lookup(topic, group string) *subscription {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return c.subs[groupQueue(topic, group)]
}

// Close closes all consumer channels and the RabbitMQ connection.
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.isConnected = false

	c.subMu.Lock()
	for key, sub := range c.subs {
		if err := sub.channel.Close(); err != nil {
			c.logger.Error("Failed to close consumer channel",
				slog.String("subscription", key),
				slog.Any("error", err),
			)
		}
		delete(c.subs, key)
	}
	c.subMu.Unlock()

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	return c.isConnected && c.conn != nil && !c.conn.IsClosed()
}
