package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nimburion/entitykit/pkg/observability/logger"
	"github.com/nimburion/entitykit/pkg/observability/tracing"
	"github.com/nimburion/entitykit/pkg/persistence"
)

// EntityPlaceholder is replaced by the entity name in a topic template.
const EntityPlaceholder = "{entity}"

// ChangeEnvelope is the message body published for one entity change.
type ChangeEnvelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Source     string    `json:"source,omitempty"`
	Entity     string    `json:"entity"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	Fields     []string  `json:"fields,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PartitionKey returns the stable key that keeps changes of one entity
// instance in order.
func PartitionKey(entity, id string) string {
	return fmt.Sprintf("%s:%s", entity, id)
}

// PublishObserver is notified of every publish attempt.
type PublishObserver interface {
	ObservePublish(entity, action string, err error)
}

// PublisherConfig configures a ChangePublisher.
type PublisherConfig struct {
	// Topic is the destination; it may contain EntityPlaceholder.
	Topic string
	// Source identifies the publishing service in the envelope.
	Source string
	// System names the broker for tracing, e.g. "kafka".
	System string
}

// PublisherOption configures a ChangePublisher.
type PublisherOption func(*ChangePublisher)

// WithSerializer replaces the JSON serializer.
func WithSerializer(s Serializer) PublisherOption {
	return func(p *ChangePublisher) { p.serializer = s }
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) PublisherOption {
	return func(p *ChangePublisher) { p.logger = log }
}

// WithObserver sets the publish observer, typically the persistence metrics.
func WithObserver(o PublishObserver) PublisherOption {
	return func(p *ChangePublisher) { p.observer = o }
}

// ChangePublisher is a persistence.ChangeListener that publishes each event
// as one message.
type ChangePublisher struct {
	producer   Producer
	config     PublisherConfig
	serializer Serializer
	logger     logger.Logger
	observer   PublishObserver
	newID      func() string
}

var _ persistence.ChangeListener = (*ChangePublisher)(nil)

// NewChangePublisher creates a publisher writing to producer.
func NewChangePublisher(producer Producer, cfg PublisherConfig, opts ...PublisherOption) (*ChangePublisher, error) {
	if producer == nil {
		return nil, errors.New("producer is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("topic is required")
	}
	p := &ChangePublisher{
		producer:   producer,
		config:     cfg,
		serializer: NewJSONSerializer(),
		logger:     logger.NewNop(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Topic resolves the destination for entity.
func (p *ChangePublisher) Topic(entity string) string {
	return strings.ReplaceAll(p.config.Topic, EntityPlaceholder, entity)
}

// Envelope builds the message body for event.
func (p *ChangePublisher) Envelope(event persistence.EntityChangeEvent) ChangeEnvelope {
	return ChangeEnvelope{
		ID:         p.newID(),
		Type:       event.Entity + "." + string(event.Action),
		Source:     p.config.Source,
		Entity:     event.Entity,
		EntityID:   fmt.Sprint(event.ID),
		Action:     string(event.Action),
		Fields:     event.Fields,
		Actor:      event.Actor,
		OccurredAt: event.Timestamp.UTC(),
	}
}

// OnEntityChange publishes event.
func (p *ChangePublisher) OnEntityChange(ctx context.Context, event persistence.EntityChangeEvent) (err error) {
	envelope := p.Envelope(event)
	topic := p.Topic(event.Entity)

	spanOpts := []tracing.MessagingSpanOption{
		tracing.WithMessagingDestination(topic),
		tracing.WithMessagingMessageID(envelope.ID),
	}
	if p.config.System != "" {
		spanOpts = append(spanOpts, tracing.WithMessagingSystem(p.config.System))
	}
	ctx, span := tracing.StartMessagingSpan(ctx, tracing.SpanOperationMsgPublish, spanOpts...)
	defer func() {
		if err != nil {
			tracing.RecordError(span, err)
		} else {
			tracing.RecordSuccess(span)
		}
		span.End()
		if p.observer != nil {
			p.observer.ObservePublish(event.Entity, envelope.Action, err)
		}
	}()

	value, err := p.serializer.Serialize(envelope)
	if err != nil {
		return fmt.Errorf("failed to serialize %s change: %w", event.Entity, err)
	}
	msg := &Message{
		ID:    envelope.ID,
		Key:   PartitionKey(envelope.Entity, envelope.EntityID),
		Value: value,
		Headers: map[string]string{
			"entity": envelope.Entity,
			"action": envelope.Action,
		},
		ContentType: p.serializer.ContentType(),
		Timestamp:   envelope.OccurredAt,
	}
	if p.config.Source != "" {
		msg.Headers["source"] = p.config.Source
	}

	if err := p.producer.Publish(ctx, topic, msg); err != nil {
		p.logger.Error("failed to publish entity change",
			"entity", envelope.Entity,
			"entity_id", envelope.EntityID,
			"action", envelope.Action,
			"topic", topic,
			"error", err,
		)
		return err
	}
	p.logger.Debug("entity change published",
		"entity", envelope.Entity,
		"entity_id", envelope.EntityID,
		"action", envelope.Action,
		"topic", topic,
		"message_id", envelope.ID,
	)
	return nil
}
