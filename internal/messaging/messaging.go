package messaging

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes one event payload. A returned error stops the consumer without acknowledging the message,
// unless it was wrapped with Skip.
type Handler func(ctx context.Context, payload []byte) error

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
	Close() error
}

type Subscriber interface {
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

const eventIDHeader = "event-id"

var tracer = otel.Tracer("guestdesk/messaging")

type skipError struct {
	err error
}

func (e *skipError) Error() string { return "skipped: " + e.err.Error() }
func (e *skipError) Unwrap() error { return e.err }

// Skip marks err as permanent for this message: the consumer acknowledges and drops it instead of stopping.
// Use it for payloads that will never succeed, such as ones that do not decode.
func Skip(err error) error {
	if err == nil {
		return nil
	}
	return &skipError{err: err}
}

func IsSkipped(err error) bool {
	var s *skipError
	return errors.As(err, &s)
}

// settle decides what happens to a delivered message after the handler ran.
// ack reports whether the message is acknowledged; a non-nil stop ends the consume loop.
func settle(err error) (ack bool, stop error) {
	switch {
	case err == nil, IsSkipped(err):
		return true, nil
	default:
		return false, err
	}
}

// envelope is an encoded event ready for either transport.
type envelope struct {
	id   string
	body []byte
}

func encode(event any) (envelope, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return envelope{}, err
	}
	return envelope{id: uuid.NewString(), body: body}, nil
}

func startPublish(ctx context.Context, topic string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		semconv.MessagingOperationName("send"),
		semconv.MessagingOperationTypePublish,
	)
	return tracer.Start(ctx, "send "+topic, trace.WithSpanKind(trace.SpanKindProducer), trace.WithAttributes(attrs...))
}

func startProcess(ctx context.Context, topic, eventID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		semconv.MessagingOperationName("process"),
		semconv.MessagingOperationTypeDeliver,
		semconv.MessagingMessageID(eventID),
	)
	return tracer.Start(ctx, "process "+topic, trace.WithSpanKind(trace.SpanKindConsumer), trace.WithAttributes(attrs...))
}

// finish records err on span. Skipped messages are marked but do not fail the span.
func finish(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	span.RecordError(err)
	if IsSkipped(err) {
		span.SetAttributes(attribute.Bool("messaging.skipped", true))
		return
	}
	span.SetStatus(codes.Error, err.Error())
}
