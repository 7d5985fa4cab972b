// Package kafka implements eventbus.Producer on Apache Kafka.
package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nimburion/entitykit/pkg/eventbus"
	"github.com/nimburion/entitykit/pkg/observability/logger"
)

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes eventbus messages with a single kafka.Writer.
type Producer struct {
	writer messageWriter
	logger logger.Logger
	config Config
	mu     sync.RWMutex
	closed bool
}

// Config holds the configuration for the Kafka producer.
type Config struct {
	// Brokers is the list of Kafka broker addresses (e.g., ["localhost:9092"])
	Brokers []string

	// OperationTimeout bounds each publish call.
	OperationTimeout time.Duration

	// MaxRetries is the maximum number of write attempts.
	MaxRetries int

	// RequiredAcks is -1 to wait for all in-sync replicas (the default) or 1
	// to wait for the leader only.
	RequiredAcks int
}

// NewProducer creates a Kafka producer. No connection is made until the
// first publish.
func NewProducer(cfg Config, log logger.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RequiredAcks == 0 {
		cfg.RequiredAcks = int(kafka.RequireAll)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxRetries,
		WriteTimeout: cfg.OperationTimeout,
		ReadTimeout:  cfg.OperationTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
	}

	log.Info("kafka producer initialized",
		"brokers", cfg.Brokers,
		"operation_timeout", cfg.OperationTimeout,
	)
	return newProducer(writer, cfg, log), nil
}

func newProducer(writer messageWriter, cfg Config, log logger.Logger) *Producer {
	return &Producer{writer: writer, logger: log, config: cfg}
}

func (p *Producer) checkOpen() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("kafka producer is closed")
	}
	return nil
}

// Publish sends a single message to the specified topic.
func (p *Producer) Publish(ctx context.Context, topic string, message *eventbus.Message) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, toKafkaMessage(topic, message)); err != nil {
		p.logger.Error("failed to publish message",
			"topic", topic,
			"message_id", message.ID,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}

	p.logger.Debug("message published",
		"topic", topic,
		"message_id", message.ID,
		"key", message.Key,
	)
	return nil
}

// PublishBatch sends multiple messages to the specified topic in one write.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []*eventbus.Message) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	batch := make([]kafka.Message, len(messages))
	for i, msg := range messages {
		batch[i] = toKafkaMessage(topic, msg)
	}
	if err := p.writer.WriteMessages(ctx, batch...); err != nil {
		p.logger.Error("failed to publish batch",
			"topic", topic,
			"batch_size", len(messages),
			"error", err,
		)
		return fmt.Errorf("failed to publish batch to topic %s: %w", topic, err)
	}

	p.logger.Debug("batch published",
		"topic", topic,
		"batch_size", len(messages),
	)
	return nil
}

// Close flushes pending messages and closes the writer. It is idempotent.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}
	p.logger.Info("kafka producer closed")
	return nil
}

// HealthCheck verifies connectivity to the first broker.
func (p *Producer) HealthCheck(ctx context.Context) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", p.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("failed to fetch broker metadata: %w", err)
	}
	return nil
}

func (p *Producer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || p.config.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.config.OperationTimeout)
}

func toKafkaMessage(topic string, msg *eventbus.Message) kafka.Message {
	headers := convertHeaders(msg.Headers)
	if msg.ContentType != "" {
		headers = append(headers, kafka.Header{Key: "content-type", Value: []byte(msg.ContentType)})
	}
	if msg.ID != "" {
		headers = append(headers, kafka.Header{Key: "message-id", Value: []byte(msg.ID)})
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: headers,
		Time:    msg.Timestamp,
	}
}

// convertHeaders converts eventbus headers to Kafka headers.
func convertHeaders(headers map[string]string) []kafka.Header {
	if headers == nil {
		return nil
	}
	kafkaHeaders := make([]kafka.Header, 0, len(headers))
	for key, value := range headers {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: key, Value: []byte(value)})
	}
	return kafkaHeaders
}
