// Package tracing provides OpenTelemetry tracing for storage and messaging calls.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanOperation represents a traced operation type.
type SpanOperation string

// Span operation constants
const (
	SpanOperationDBQuery  SpanOperation = "db.query"
	SpanOperationDBInsert SpanOperation = "db.insert"
	SpanOperationDBUpdate SpanOperation = "db.update"
	SpanOperationDBDelete SpanOperation = "db.delete"
	SpanOperationDBTx     SpanOperation = "db.transaction"

	SpanOperationMsgPublish SpanOperation = "messaging.publish"
)

// Instrumentation scope names.
const (
	databaseScope  = "github.com/nimburion/entitykit/database"
	messagingScope = "github.com/nimburion/entitykit/messaging"
)

type spanOptions struct {
	target     string
	attributes []attribute.KeyValue
}

// StartDatabaseSpan starts a client span for a storage operation. The span
// is named "DB <operation> [table]".
func StartDatabaseSpan(ctx context.Context, operation SpanOperation, opts ...DatabaseSpanOption) (context.Context, trace.Span) {
	o := &spanOptions{attributes: []attribute.KeyValue{attribute.String("db.operation", string(operation))}}
	for _, opt := range opts {
		opt(o)
	}

	name := fmt.Sprintf("DB %s", operation)
	if o.target != "" {
		name = fmt.Sprintf("DB %s %s", operation, o.target)
	}
	ctx, span := otel.Tracer(databaseScope).Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(o.attributes...)
	return ctx, span
}

// DatabaseSpanOption configures a database span.
type DatabaseSpanOption func(*spanOptions)

// WithDBTable sets the table (or entity) the operation targets.
func WithDBTable(table string) DatabaseSpanOption {
	return func(o *spanOptions) {
		o.target = table
		o.attributes = append(o.attributes, attribute.String("db.table", table))
	}
}

// WithDBSystem sets the database system ("postgresql", "mysql", "mongodb", "memory").
func WithDBSystem(system string) DatabaseSpanOption {
	return func(o *spanOptions) {
		o.attributes = append(o.attributes, attribute.String("db.system", system))
	}
}

// WithDBStatement sets the statement text. Bound values are never included.
func WithDBStatement(statement string) DatabaseSpanOption {
	return func(o *spanOptions) {
		o.attributes = append(o.attributes, attribute.String("db.statement", statement))
	}
}

// StartMessagingSpan starts a producer span for publishing to destination.
func StartMessagingSpan(ctx context.Context, operation SpanOperation, opts ...MessagingSpanOption) (context.Context, trace.Span) {
	o := &spanOptions{attributes: []attribute.KeyValue{attribute.String("messaging.operation", string(operation))}}
	for _, opt := range opts {
		opt(o)
	}

	name := fmt.Sprintf("MSG %s", operation)
	if o.target != "" {
		name = fmt.Sprintf("MSG %s %s", operation, o.target)
	}
	ctx, span := otel.Tracer(messagingScope).Start(ctx, name, trace.WithSpanKind(trace.SpanKindProducer))
	span.SetAttributes(o.attributes...)
	return ctx, span
}

// MessagingSpanOption configures a messaging span.
type MessagingSpanOption func(*spanOptions)

// WithMessagingSystem sets the messaging system, e.g. "kafka".
func WithMessagingSystem(system string) MessagingSpanOption {
	return func(o *spanOptions) {
		o.attributes = append(o.attributes, attribute.String("messaging.system", system))
	}
}

// WithMessagingDestination sets the topic.
func WithMessagingDestination(destination string) MessagingSpanOption {
	return func(o *spanOptions) {
		o.target = destination
		o.attributes = append(o.attributes, attribute.String("messaging.destination", destination))
	}
}

// WithMessagingMessageID sets the message id.
func WithMessagingMessageID(messageID string) MessagingSpanOption {
	return func(o *spanOptions) {
		o.attributes = append(o.attributes, attribute.String("messaging.message_id", messageID))
	}
}

// RecordError records err on the span and marks it failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess marks the span OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
