package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidekit/aide-be/internal/queue"
	"github.com/aidekit/aide-be/shared/logger"
)

type fakeBus struct {
	acked []uint64
}

func (b *fakeBus) CreateGroup(ctx context.Context, topic, group string) error { return nil }

func (b *fakeBus) Publish(ctx context.Context, topic string, body []byte) error { return nil }

func (b *fakeBus) Consume(ctx context.Context, topic, group, consumer string, maxCount int, blockTimeout time.Duration) ([]queue.Message, error) {
	return nil, nil
}

func (b *fakeBus) Ack(topic, group string, id uint64) error {
	b.acked = append(b.acked, id)
	return nil
}

func (b *fakeBus) Nack(topic, group string, id uint64) error { return nil }

type sentMessage struct {
	userID string
	text   string
}

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (s *fakeSender) Send(ctx context.Context, userID, text string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{userID: userID, text: text})
	return nil
}

func notificationMessage(t *testing.T, id uint64, userID string, messageType queue.MessageType, content string) queue.Message {
	t.Helper()
	body, err := json.Marshal(queue.NotificationEnvelope{
		UserID:      userID,
		MessageType: messageType,
		Content:     json.RawMessage(content),
	})
	require.NoError(t, err)
	return queue.Message{ID: id, Body: body}
}

func newTestConsumer(bus *fakeBus, sender *fakeSender) (*Consumer, *int) {
	c := NewConsumer(bus, DefaultFormatters(), sender, &ConsumerConfig{
		Consumer:   "test-consumer",
		FloodDelay: 100 * time.Millisecond,
	}, logger.NewDefault().Logger)

	sleeps := 0
	c.sleep = func(ctx context.Context, d time.Duration) {
		sleeps++
	}
	return c, &sleeps
}

func TestConsumer_SendsFormattedNotification(t *testing.T) {
	bus := &fakeBus{}
	sender := &fakeSender{}
	c, _ := newTestConsumer(bus, sender)

	c.process(context.Background(), notificationMessage(t, 1, "42", queue.MessageTypeIntentResult, `{"intent":"note"}`))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "42", sender.sent[0].userID)
	assert.Contains(t, sender.sent[0].text, "note")
	assert.Equal(t, []uint64{1}, bus.acked)
}

func TestConsumer_FloodDelayBetweenRepeatRecipients(t *testing.T) {
	bus := &fakeBus{}
	sender := &fakeSender{}
	c, sleeps := newTestConsumer(bus, sender)

	// Three in a row for the same user: delay before the second and
	// third only.
	for id := uint64(1); id <= 3; id++ {
		c.process(context.Background(), notificationMessage(t, id, "42", queue.MessageTypeFollowup, `{"text":"hi"}`))
	}

	assert.Equal(t, 2, *sleeps)
	assert.Len(t, sender.sent, 3)
}

func TestConsumer_NoFloodDelayForAlternatingRecipients(t *testing.T) {
	bus := &fakeBus{}
	sender := &fakeSender{}
	c, sleeps := newTestConsumer(bus, sender)

	c.process(context.Background(), notificationMessage(t, 1, "42", queue.MessageTypeFollowup, `{"text":"hi"}`))
	c.process(context.Background(), notificationMessage(t, 2, "43", queue.MessageTypeFollowup, `{"text":"hi"}`))
	c.process(context.Background(), notificationMessage(t, 3, "42", queue.MessageTypeFollowup, `{"text":"hi"}`))

	assert.Equal(t, 0, *sleeps)
	assert.Len(t, sender.sent, 3)
}

func TestConsumer_SkipsUnknownMessageType(t *testing.T) {
	bus := &fakeBus{}
	sender := &fakeSender{}
	c, _ := newTestConsumer(bus, sender)

	c.process(context.Background(), notificationMessage(t, 5, "42", "mystery_type", `{}`))

	assert.Empty(t, sender.sent)
	// Skipped messages are still acknowledged.
	assert.Equal(t, []uint64{5}, bus.acked)
}

func TestConsumer_AcksMalformedEnvelope(t *testing.T) {
	bus := &fakeBus{}
	sender := &fakeSender{}
	c, _ := newTestConsumer(bus, sender)

	c.process(context.Background(), queue.Message{ID: 9, Body: []byte("not json")})

	assert.Empty(t, sender.sent)
	assert.Equal(t, []uint64{9}, bus.acked)
}

func TestConsumer_AcksOnFormatterError(t *testing.T) {
	bus := &fakeBus{}
	sender := &fakeSender{}
	c, _ := newTestConsumer(bus, sender)

	c.process(context.Background(), notificationMessage(t, 4, "42", queue.MessageTypeIntentResult, `"not an object"`))

	assert.Empty(t, sender.sent)
	assert.Equal(t, []uint64{4}, bus.acked)
}

func TestConsumer_AcksOnSendError(t *testing.T) {
	bus := &fakeBus{}
	sender := &fakeSender{err: errors.New("gateway unavailable")}
	c, _ := newTestConsumer(bus, sender)

	c.process(context.Background(), notificationMessage(t, 6, "42", queue.MessageTypeFollowup, `{"text":"hi"}`))

	assert.Equal(t, []uint64{6}, bus.acked)
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	bus := &fakeBus{}
	sender := &fakeSender{}
	c, _ := newTestConsumer(bus, sender)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop on context cancellation")
	}
}
