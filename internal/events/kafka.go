package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"campusride/internal/metrics"
)

const kafkaWriteTimeout = 2 * time.Second

// messageWriter is the subset of *kafka.Writer the forwarder uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaForwarder copies every bus event onto a Kafka topic. Delivery is best
// effort: failures are logged and counted, never returned to the publisher.
type KafkaForwarder struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafkaForwarder creates a forwarder writing to topic on brokers.
func NewKafkaForwarder(brokers []string, topic string, logger *zap.Logger) *KafkaForwarder {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaForwarder{writer: w, logger: logger}
}

type wireEvent struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	Key        string         `json:"key"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Handle implements Handler.
func (f *KafkaForwarder) Handle(ctx context.Context, e Event) error {
	b, err := json.Marshal(wireEvent{
		ID:         e.ID,
		Type:       e.Type,
		Key:        e.Key,
		Data:       e.Data,
		OccurredAt: e.OccurredAt,
	})
	if err != nil {
		f.logger.Error("encode event", zap.String("event_id", e.ID), zap.Error(err))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), kafkaWriteTimeout)
	defer cancel()

	msg := kafka.Message{Key: []byte(e.Key), Value: b}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		metrics.EventsForwardFailed.WithLabelValues(string(e.Type)).Inc()
		f.logger.Warn("forward event to kafka",
			zap.String("event_id", e.ID),
			zap.String("type", string(e.Type)),
			zap.Error(err),
		)
		return nil
	}
	metrics.EventsForwarded.WithLabelValues(string(e.Type)).Inc()
	return nil
}

// Close flushes and closes the underlying writer.
func (f *KafkaForwarder) Close() error {
	if f.writer == nil {
		return nil
	}
	return f.writer.Close()
}
