package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func attrs(kvs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestStartDatabaseSpan(t *testing.T) {
	tests := []struct {
		name      string
		operation SpanOperation
		opts      []DatabaseSpanOption
		wantName  string
		wantAttrs map[string]string
	}{
		{
			name:      "no options",
			operation: SpanOperationDBQuery,
			wantName:  "DB db.query",
			wantAttrs: map[string]string{"db.operation": "db.query"},
		},
		{
			name:      "table system and statement",
			operation: SpanOperationDBInsert,
			opts:      []DatabaseSpanOption{WithDBTable("widgets"), WithDBSystem("postgresql"), WithDBStatement("INSERT INTO widgets")},
			wantName:  "DB db.insert widgets",
			wantAttrs: map[string]string{
				"db.operation": "db.insert",
				"db.table":     "widgets",
				"db.system":    "postgresql",
				"db.statement": "INSERT INTO widgets",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := setupTestTracer(t)
			_, span := StartDatabaseSpan(context.Background(), tt.operation, tt.opts...)
			span.End()

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("got %d spans", len(spans))
			}
			s := spans[0]
			if s.Name() != tt.wantName || s.SpanKind() != trace.SpanKindClient {
				t.Errorf("span = %q (%v)", s.Name(), s.SpanKind())
			}
			got := attrs(s.Attributes())
			for k, v := range tt.wantAttrs {
				if got[k] != v {
					t.Errorf("attribute %s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestStartMessagingSpan(t *testing.T) {
	recorder := setupTestTracer(t)
	_, span := StartMessagingSpan(context.Background(), SpanOperationMsgPublish,
		WithMessagingSystem("kafka"), WithMessagingDestination("entity-changes"), WithMessagingMessageID("m-1"))
	RecordSuccess(span)
	span.End()

	s := recorder.Ended()[0]
	if s.Name() != "MSG messaging.publish entity-changes" || s.SpanKind() != trace.SpanKindProducer {
		t.Errorf("span = %q (%v)", s.Name(), s.SpanKind())
	}
	if got := attrs(s.Attributes()); got["messaging.message_id"] != "m-1" || got["messaging.system"] != "kafka" {
		t.Errorf("attributes = %v", got)
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v", s.Status())
	}
}

func TestRecordError(t *testing.T) {
	recorder := setupTestTracer(t)
	_, span := StartDatabaseSpan(context.Background(), SpanOperationDBDelete)
	RecordError(span, errors.New("constraint violation"))
	RecordError(span, nil)
	span.End()

	s := recorder.Ended()[0]
	if s.Status().Code != codes.Error || s.Status().Description != "constraint violation" {
		t.Errorf("status = %+v", s.Status())
	}
	if len(s.Events()) != 1 {
		t.Errorf("events = %d, want 1", len(s.Events()))
	}
}

func TestTracerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TracerConfig
		wantErr bool
	}{
		{name: "disabled", cfg: TracerConfig{}},
		{name: "valid", cfg: TracerConfig{Enabled: true, ServiceName: "svc", Endpoint: "localhost:4317", SampleRate: 0.5}},
		{name: "no service", cfg: TracerConfig{Enabled: true, Endpoint: "localhost:4317"}, wantErr: true},
		{name: "no endpoint", cfg: TracerConfig{Enabled: true, ServiceName: "svc"}, wantErr: true},
		{name: "bad rate", cfg: TracerConfig{Enabled: true, ServiceName: "svc", Endpoint: "x", SampleRate: 2}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), TracerConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if tp.Tracer("test") == nil {
		t.Error("nil tracer")
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewProvider_InstallsGlobally(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	exporter := tracetest.NewInMemoryExporter()
	tp, err := newProvider(context.Background(), TracerConfig{
		Enabled:     true,
		ServiceName: "entityctl",
		Environment: "test",
		SampleRate:  1,
	}, sdktrace.WithSyncer(exporter))
	if err != nil {
		t.Fatal(err)
	}

	_, span := StartDatabaseSpan(context.Background(), SpanOperationDBQuery, WithDBTable("part"))
	span.End()

	// the in-memory exporter drops its spans on shutdown
	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "DB db.query part" {
		t.Fatalf("spans = %v", spans)
	}
	if got := attrs(spans[0].Resource.Attributes())["service.name"]; got != "entityctl" {
		t.Errorf("service.name = %q", got)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}
