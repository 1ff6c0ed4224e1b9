package messaging

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func spanContext(t *testing.T) context.Context {
	t.Helper()
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestHeaderCarrier_Propagation(t *testing.T) {
	prop := propagation.TraceContext{}
	ctx := spanContext(t)

	msg := kafka.Message{Headers: []kafka.Header{{Key: eventIDHeader, Value: []byte("e1")}}}
	prop.Inject(ctx, NewHeaderCarrier(&msg))

	if len(msg.Headers) != 2 {
		t.Fatalf("expected event id and traceparent headers, got %d", len(msg.Headers))
	}

	got := trace.SpanContextFromContext(prop.Extract(context.Background(), NewHeaderCarrier(&msg)))
	if got.TraceID() != trace.SpanContextFromContext(ctx).TraceID() {
		t.Errorf("trace id not propagated: %s", got.TraceID())
	}

	NewHeaderCarrier(&msg).Set(eventIDHeader, "e2")
	if len(msg.Headers) != 2 || NewHeaderCarrier(&msg).Get(eventIDHeader) != "e2" {
		t.Errorf("expected event id overwritten in place, got %v", msg.Headers)
	}
}

func TestTableCarrier_Propagation(t *testing.T) {
	prop := propagation.TraceContext{}
	ctx := spanContext(t)

	headers := amqp.Table{eventIDHeader: "e1", "retries": int32(2)}
	prop.Inject(ctx, TableCarrier(headers))

	if _, ok := headers["traceparent"].(string); !ok {
		t.Fatalf("expected traceparent header, got %v", headers)
	}
	if TableCarrier(headers).Get("retries") != "" {
		t.Error("non-string header should read as empty")
	}

	got := trace.SpanContextFromContext(prop.Extract(context.Background(), TableCarrier(headers)))
	if got.SpanID() != trace.SpanContextFromContext(ctx).SpanID() {
		t.Errorf("span id not propagated: %s", got.SpanID())
	}
}
