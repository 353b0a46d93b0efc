package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"wishwell/internal/funding"
	"wishwell/pkg/domain"
)

// TransitionEvent is the wire form of a campaign transition published to the
// broker for external consumers (notifications, analytics).
type TransitionEvent struct {
	CampaignID string    `json:"campaign_id"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
}

// KafkaFeed publishes transition events to a Kafka topic. It is registered as
// an outbox handler alongside the in-process ones; delivery is at least once,
// keyed by campaign id so per-campaign ordering holds within a partition.
type KafkaFeed struct {
	writer *kafka.Writer
	clock  func() time.Time
}

// NewKafkaFeed builds a feed writing to the given brokers and topic.
func NewKafkaFeed(brokers []string, topic string) *KafkaFeed {
	return &KafkaFeed{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
		},
		clock: time.Now,
	}
}

// HandleTransition publishes the transition as a JSON event.
func (f *KafkaFeed) HandleTransition(ctx context.Context, campaignID domain.CampaignID, kind funding.TransitionKind) error {
	data, err := json.Marshal(TransitionEvent{
		CampaignID: campaignID.String(),
		Kind:       string(kind),
		OccurredAt: f.clock(),
	})
	if err != nil {
		return err
	}
	return f.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(campaignID.String()),
		Value: data,
		Time:  f.clock(),
	})
}

// Close flushes and closes the underlying writer.
func (f *KafkaFeed) Close() error {
	return f.writer.Close()
}

// TransitionConsumer reads transition events back off the topic; used by
// sidecar processes that react to campaign outcomes without a database
// connection.
type TransitionConsumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewTransitionConsumer builds a consumer in the given group.
func NewTransitionConsumer(brokers []string, topic, groupID string, logger *slog.Logger) *TransitionConsumer {
	return &TransitionConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		logger: logger,
	}
}

// Consume reads events until the context is cancelled. Handler errors are
// logged and the event is skipped; the topic is a feed, not a work queue.
func (c *TransitionConsumer) Consume(ctx context.Context, handle func(ctx context.Context, ev TransitionEvent) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "read transition event", "error", err)
			continue
		}
		var ev TransitionEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.logger.WarnContext(ctx, "malformed transition event", "error", err)
			continue
		}
		if err := handle(ctx, ev); err != nil {
			c.logger.ErrorContext(ctx, "handle transition event", "error", err)
		}
	}
}

// Close closes the underlying reader.
func (c *TransitionConsumer) Close() error {
	return c.reader.Close()
}
