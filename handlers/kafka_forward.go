package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/quillpost/outbox"
)

// KafkaForward is an outbox handler that republishes entry payloads to a
// Kafka topic so downstream consumers see the same domain events. Delivery
// is confirmed synchronously per entry, which keeps the at-least-once
// contract: an unconfirmed produce fails the entry and it is retried.
type KafkaForward struct {
	logger   *zap.Logger
	producer *kafka.Producer
	topic    string
}

// KafkaForwardConfig configures the forward handler's producer.
type KafkaForwardConfig struct {
	Topic         string
	ProducerProps kafka.ConfigMap
}

// NewKafkaForward creates a Kafka forward handler.
func NewKafkaForward(logger *zap.Logger, cfg KafkaForwardConfig) (*KafkaForward, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	props := kafka.ConfigMap{
		"acks":               "all",
		"retries":            3,
		"linger.ms":          10,
		"enable.idempotence": true,
		"compression.type":   "snappy",
	}
	for k, v := range cfg.ProducerProps {
		props[k] = v
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "outbox-events"
	}

	producer, err := kafka.NewProducer(&props)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaForward{
		logger:   logger,
		producer: producer,
		topic:    topic,
	}, nil
}

// Handle implements outbox.Handler.
func (h *KafkaForward) Handle(ctx context.Context, entry outbox.Entry) error {
	h.logger.Debug("Forwarding entry to Kafka",
		zap.String("entry_id", entry.ID),
		zap.String("event_type", entry.EventType),
		zap.String("topic", h.topic))

	deliveryChan := make(chan kafka.Event, 1)
	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &h.topic, Partition: kafka.PartitionAny},
		Key:            []byte(entry.ID),
		Value:          entry.Payload,
		Headers: []kafka.Header{
			{Key: "entry_id", Value: []byte(entry.ID)},
			{Key: "event_type", Value: []byte(entry.EventType)},
		},
		Timestamp: time.Now(),
	}

	if err := h.producer.Produce(message, deliveryChan); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-deliveryChan:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event: %v", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery failed: %w", m.TopicPartition.Error)
		}
	}
	return nil
}

// Close flushes the producer and closes the Kafka connection.
func (h *KafkaForward) Close() error {
	h.logger.Info("Closing kafka producer")
	h.producer.Flush(15 * 1000)
	h.producer.Close()
	return nil
}
