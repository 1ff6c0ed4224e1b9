package messaging

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSkip(t *testing.T) {
	base := errors.New("unexpected end of JSON input")

	t.Run("nil stays nil", func(t *testing.T) {
		if Skip(nil) != nil {
			t.Error("expected nil")
		}
	})

	t.Run("survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("handle order.created: %w", Skip(base))
		if !IsSkipped(err) {
			t.Error("expected wrapped skip to be detected")
		}
		if !errors.Is(err, base) {
			t.Error("expected cause to stay reachable")
		}
	})

	t.Run("plain errors are not skipped", func(t *testing.T) {
		if IsSkipped(base) {
			t.Error("expected plain error not to be skipped")
		}
	})
}

func TestSettle(t *testing.T) {
	failure := errors.New("connection refused")

	tests := []struct {
		name     string
		err      error
		wantAck  bool
		wantStop error
	}{
		{name: "success", err: nil, wantAck: true},
		{name: "skipped", err: Skip(failure), wantAck: true},
		{name: "failure", err: failure, wantStop: failure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack, stop := settle(tt.err)
			if ack != tt.wantAck {
				t.Errorf("ack = %v, want %v", ack, tt.wantAck)
			}
			if !errors.Is(stop, tt.wantStop) || (stop == nil) != (tt.wantStop == nil) {
				t.Errorf("stop = %v, want %v", stop, tt.wantStop)
			}
		})
	}
}

func TestFinish(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	tr := provider.Tracer("test")

	_, ok := tr.Start(context.Background(), "ok")
	finish(ok, nil)
	_, skipped := tr.Start(context.Background(), "skipped")
	finish(skipped, Skip(errors.New("bad payload")))
	_, failed := tr.Start(context.Background(), "failed")
	finish(failed, errors.New("db down"))

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("expected 3 ended spans, got %d", len(spans))
	}

	want := map[string]codes.Code{"ok": codes.Unset, "skipped": codes.Unset, "failed": codes.Error}
	for _, s := range spans {
		if got := s.Status().Code; got != want[s.Name()] {
			t.Errorf("%s: status = %v, want %v", s.Name(), got, want[s.Name()])
		}
	}

	for _, s := range spans {
		if s.Name() != "skipped" {
			continue
		}
		var marked bool
		for _, a := range s.Attributes() {
			if a.Key == "messaging.skipped" && a.Value.AsBool() {
				marked = true
			}
		}
		if !marked {
			t.Error("expected skipped span to carry messaging.skipped")
		}
	}
}

func TestEncode(t *testing.T) {
	a, err := encode(map[string]string{"order_id": "o-1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, _ := encode(map[string]string{"order_id": "o-1"})

	if string(a.body) != `{"order_id":"o-1"}` {
		t.Errorf("unexpected body %s", a.body)
	}
	if a.id == "" || a.id == b.id {
		t.Errorf("expected distinct event ids, got %q and %q", a.id, b.id)
	}

	if _, err := encode(make(chan int)); err == nil {
		t.Error("expected error for unencodable event")
	}
}
