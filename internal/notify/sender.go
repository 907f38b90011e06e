package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aidekit/aide-be/internal/queue"
)

// Sender is the delivery surface: whatever actually gets a formatted
// message in front of a recipient. Implementations must be safe to call
// with duplicate messages.
type Sender interface {
	Send(ctx context.Context, userID, text string) error
}

// Delivery is the wire unit handed to the external delivery gateway.
type Delivery struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// BusSender hands formatted messages to the delivery gateway through
// the outbound deliveries topic. The gateway (the Telegram bot process)
// runs outside this repository.
type BusSender struct {
	bus    queue.Bus
	logger *slog.Logger
}

// NewBusSender creates a BusSender.
func NewBusSender(bus queue.Bus, logger *slog.Logger) *BusSender {
	return &BusSender{bus: bus, logger: logger}
}

// Send publishes the formatted message to the deliveries topic.
func (s *BusSender) Send(ctx context.Context, userID, text string) error {
	body, err := json.Marshal(Delivery{UserID: userID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode delivery: %w", err)
	}

	if err := s.bus.Publish(ctx, queue.DeliveryTopic, body); err != nil {
		return fmt.Errorf("failed to publish delivery: %w", err)
	}

	s.logger.Debug("Delivery handed off",
		slog.String("user_id", userID),
		slog.Int("text_size", len(text)),
	)
	return nil
}
