package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/joao-fontenele/guestdesk/internal/domain"
	"github.com/joao-fontenele/guestdesk/internal/messaging"
	"github.com/joao-fontenele/guestdesk/internal/notify"
)

type fakeNotifier struct {
	recipients []notify.Recipient
	messages   []notify.Message
}

func (f *fakeNotifier) Notify(_ context.Context, recipients []notify.Recipient, msg notify.Message) []notify.DeliveryResult {
	f.recipients = append(f.recipients, recipients...)
	f.messages = append(f.messages, msg)
	return nil
}

func newTestHandler(staffEmail string) (*EventHandler, *fakeNotifier) {
	n := &fakeNotifier{}
	h := NewEventHandler(n, notify.Directory{StaffEmail: staffEmail}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h, n
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestEventHandler_OrderCreated(t *testing.T) {
	h, n := newTestHandler("staff@example.com")

	payload := mustJSON(t, domain.OrderCreatedEvent{
		OrderID: "1001", GuestName: "Ana", Room: "204", Total: 3000,
		Items:     []domain.OrderItem{{Name: "Tea", Price: 1500, Quantity: 2}},
		Timestamp: time.Now(),
	})

	if err := h.For(domain.TopicOrderCreated)(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(n.messages) != 1 {
		t.Fatalf("expected one email, got %d", len(n.messages))
	}
	if n.recipients[0].Channel != notify.ChannelEmail || n.recipients[0].Address != "staff@example.com" {
		t.Errorf("unexpected recipient: %+v", n.recipients[0])
	}
	if !strings.Contains(n.messages[0].Text, "Tea x2: 3000") {
		t.Errorf("unexpected body: %q", n.messages[0].Text)
	}
}

func TestEventHandler_StatusChanged(t *testing.T) {
	h, n := newTestHandler("staff@example.com")
	handle := h.For(domain.TopicOrderStatusChanged)

	ready := mustJSON(t, domain.OrderStatusChangedEvent{OrderID: "1", From: domain.OrderStatusPreparing, To: domain.OrderStatusReady})
	if err := handle(context.Background(), ready); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.messages) != 0 {
		t.Error("expected no email for a regular status change")
	}

	cancelled := mustJSON(t, domain.OrderStatusChangedEvent{OrderID: "1", From: domain.OrderStatusReady, To: domain.OrderStatusCancelled})
	if err := handle(context.Background(), cancelled); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.messages) != 1 {
		t.Errorf("expected one cancellation email, got %d", len(n.messages))
	}
}

func TestEventHandler_ReviewSubmitted(t *testing.T) {
	h, n := newTestHandler("staff@example.com")

	payload := mustJSON(t, domain.ReviewSubmittedEvent{ReviewID: 5, GuestName: "Ana", ScannedRoom: "205", Average: 8.5})
	if err := h.For(domain.TopicReviewSubmitted)(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(n.messages) != 1 || !strings.Contains(n.messages[0].Text, "room 205") || n.messages[0].Subject != "New review #5: 8.5/10" {
		t.Errorf("unexpected message: %+v", n.messages)
	}
}

func TestEventHandler_NoStaffEmail(t *testing.T) {
	h, n := newTestHandler("")

	payload := mustJSON(t, domain.OrderCreatedEvent{OrderID: "1"})
	if err := h.HandleOrderCreated(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.messages) != 0 {
		t.Error("expected nothing sent without STAFF_EMAIL")
	}
}

func TestEventHandler_BadPayload(t *testing.T) {
	h, _ := newTestHandler("staff@example.com")

	for _, topic := range []string{
		domain.TopicOrderCreated, domain.TopicOrderStatusChanged,
		domain.TopicReviewSubmitted, domain.TopicReviewModerated,
	} {
		err := h.For(topic)(context.Background(), []byte("{"))
		if err == nil {
			t.Errorf("%s: expected error for malformed payload", topic)
			continue
		}
		if !messaging.IsSkipped(err) {
			t.Errorf("%s: expected malformed payload to be skipped, got %v", topic, err)
		}
	}

	if h.For("unknown.topic") != nil {
		t.Error("expected nil handler for unknown topic")
	}
}
