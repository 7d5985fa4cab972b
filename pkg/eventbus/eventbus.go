// Package eventbus publishes entity change events to a message broker.
package eventbus

import (
	"context"
	"time"
)

// Producer writes messages to broker topics.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
	// PublishBatch writes messages to one topic in a single call and fails
	// if any of them fails.
	PublishBatch(ctx context.Context, topic string, messages []*Message) error
	// Close flushes pending writes.
	Close() error
}

// Message is one change envelope ready for the broker.
type Message struct {
	ID          string
	// Key selects the partition; ChangePublisher uses PartitionKey so all
	// changes of one entity instance stay ordered.
	Key         string
	Value       []byte
	Headers     map[string]string
	ContentType string
	Timestamp   time.Time
}
