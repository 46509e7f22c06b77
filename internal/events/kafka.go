// Package events publishes security audit events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by the publisher
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AuditPublisher forwards audit logs to a Kafka topic. A disabled
// publisher accepts every call and writes nothing.
type AuditPublisher struct {
	writer  MessageWriter
	topic   string
	logger  *slog.Logger
	enabled bool
}

// NewAuditPublisher creates a publisher; empty brokers or enabled=false yields a no-op
func NewAuditPublisher(brokers string, topic string, enabled bool, logger *slog.Logger) *AuditPublisher {
	if !enabled || brokers == "" {
		logger.Info("kafka audit publisher disabled")
		return &AuditPublisher{enabled: false, topic: topic, logger: logger}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	logger.Info("kafka audit publisher initialized", "brokers", brokers, "topic", topic)
	return &AuditPublisher{writer: w, topic: topic, logger: logger, enabled: true}
}

// NewAuditPublisherWithWriter wires a custom writer
func NewAuditPublisherWithWriter(w MessageWriter, topic string, logger *slog.Logger) *AuditPublisher {
	return &AuditPublisher{writer: w, topic: topic, logger: logger, enabled: true}
}

// Enabled reports whether messages are written
func (p *AuditPublisher) Enabled() bool {
	return p.enabled
}

// Publish writes one audit log keyed by event type so events of one kind stay ordered
func (p *AuditPublisher) Publish(ctx context.Context, log *models.AuditLog) error {
	if !p.enabled {
		return nil
	}

	value, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(log.EventType),
		Value: value,
		Time:  log.CreatedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish audit event to %s: %w", p.topic, err)
	}
	return nil
}

// Close shuts down the Kafka writer
func (p *AuditPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
