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

func newRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func attrValue(span sdktrace.ReadOnlySpan, key string) (string, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value.Emit(), true
		}
	}
	return "", false
}

func TestStartDBSpan(t *testing.T) {
	tests := []struct {
		name      string
		system    string
		table     string
		operation DBOperation
		wantName  string
	}{
		{"postgres upsert", "postgresql", "swipe_states", DBOperationUpsert, "upsert swipe_states"},
		{"sqlite insert", "sqlite", "swipe_events", DBOperationInsert, "insert swipe_events"},
		{"query without table", "postgresql", "", DBOperationQuery, "query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := newRecorder(t)

			_, endSpan := StartDBSpan(context.Background(), tt.system, tt.table, tt.operation)
			endSpan(nil)

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			span := spans[0]
			if span.Name() != tt.wantName {
				t.Errorf("span name = %q, want %q", span.Name(), tt.wantName)
			}
			if span.SpanKind() != trace.SpanKindClient {
				t.Errorf("span kind = %v, want client", span.SpanKind())
			}
			if v, _ := attrValue(span, "db.system"); v != tt.system {
				t.Errorf("db.system = %q, want %q", v, tt.system)
			}
			_, hasTable := attrValue(span, "db.sql.table")
			if hasTable != (tt.table != "") {
				t.Errorf("db.sql.table present = %v", hasTable)
			}
		})
	}
}

func TestStartSpan_WithError(t *testing.T) {
	recorder := newRecorder(t)

	ctx, endSpan := StartSpan(context.Background(), "matching.rank", attribute.String("exporter_id", "EXP1"))
	SetAttributes(ctx, attribute.Int("pairs", 3))
	AddEvent(ctx, "snapshot_loaded")
	endSpan(errors.New("boom"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status().Code != codes.Error {
		t.Errorf("status = %v, want error", span.Status().Code)
	}
	if v, _ := attrValue(span, "exporter_id"); v != "EXP1" {
		t.Errorf("exporter_id = %q", v)
	}
	if v, _ := attrValue(span, "pairs"); v != "3" {
		t.Errorf("pairs = %q", v)
	}
	if len(span.Events()) < 2 {
		// AddEvent plus the recorded error event
		t.Errorf("expected at least 2 events, got %d", len(span.Events()))
	}
	if span.InstrumentationScope().Name != TracerName {
		t.Errorf("scope = %q, want %q", span.InstrumentationScope().Name, TracerName)
	}
}
