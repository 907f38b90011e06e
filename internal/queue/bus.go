package queue

import (
	"context"
	"time"
)

// Message is a single entry delivered from a topic to a consumer group.
// ID is assigned by the bus and is only meaningful for Ack/Nack within
// the (topic, group) it was delivered on.
type Message struct {
	ID   uint64
	Body []byte
}

// Bus is the set of primitives the dispatch and notification loops need
// from the message broker. All implementations must guarantee that a
// message is delivered to exactly one consumer of a group until it is
// acknowledged or requeued, and that an acknowledged message id never
// reappears to that group.
type Bus interface {
	// CreateGroup declares the topic and binds the named consumer group
	// to it. Creating a group that already exists is a no-op.
	CreateGroup(ctx context.Context, topic, group string) error

	// Publish serializes nothing itself: body is the already-encoded
	// envelope, appended to the topic as an opaque payload.
	Publish(ctx context.Context, topic string, body []byte) error

	// Consume returns up to maxCount messages not previously delivered
	// to this group, blocking up to blockTimeout for the first one. An
	// empty batch after a full wait is not an error.
	Consume(ctx context.Context, topic, group, consumer string, maxCount int, blockTimeout time.Duration) ([]Message, error)

	// Ack removes the message from the group's unacknowledged set.
	Ack(topic, group string, id uint64) error

	// Nack returns the message to the topic for redelivery to the
	// group. Used for retryable failures.
	Nack(topic, group string, id uint64) error
}
