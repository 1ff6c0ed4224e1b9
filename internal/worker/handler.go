package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joao-fontenele/guestdesk/internal/domain"
	"github.com/joao-fontenele/guestdesk/internal/messaging"
	"github.com/joao-fontenele/guestdesk/internal/notify"
)

type Notifier interface {
	Notify(ctx context.Context, recipients []notify.Recipient, msg notify.Message) []notify.DeliveryResult
}

// EventHandler turns domain events into staff email digests.
type EventHandler struct {
	notifier  Notifier
	directory notify.Directory
	logger    *slog.Logger
}

func NewEventHandler(notifier Notifier, directory notify.Directory, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		notifier:  notifier,
		directory: directory,
		logger:    logger,
	}
}

// For returns the handler for one topic, or nil if the topic is unknown.
func (h *EventHandler) For(topic string) messaging.Handler {
	switch topic {
	case domain.TopicOrderCreated:
		return h.HandleOrderCreated
	case domain.TopicOrderStatusChanged:
		return h.HandleOrderStatusChanged
	case domain.TopicReviewSubmitted:
		return h.HandleReviewSubmitted
	case domain.TopicReviewModerated:
		return h.HandleReviewModerated
	}
	return nil
}

func (h *EventHandler) email(ctx context.Context, subject, body string) {
	recipients := h.directory.Staff()
	if len(recipients) == 0 {
		return
	}
	h.notifier.Notify(ctx, recipients, notify.Message{Subject: subject, Text: body})
}

func (h *EventHandler) HandleOrderCreated(ctx context.Context, payload []byte) error {
	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return messaging.Skip(fmt.Errorf("unmarshal order created event: %w", err))
	}

	h.logger.Info("processing order created event", "order_id", event.OrderID, "room", event.Room)

	var b strings.Builder
	fmt.Fprintf(&b, "Order #%s from %s, room %s\n\n", event.OrderID, event.GuestName, event.Room)
	for _, item := range event.Items {
		fmt.Fprintf(&b, "%s x%d: %d\n", item.Name, item.Quantity, item.Subtotal())
	}
	fmt.Fprintf(&b, "\nTotal: %d", event.Total)

	h.email(ctx, "New order #"+event.OrderID, b.String())
	return nil
}

func (h *EventHandler) HandleOrderStatusChanged(ctx context.Context, payload []byte) error {
	var event domain.OrderStatusChangedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return messaging.Skip(fmt.Errorf("unmarshal order status event: %w", err))
	}

	h.logger.Info("processing order status event", "order_id", event.OrderID, "from", event.From, "to", event.To)

	if event.To == domain.OrderStatusCancelled {
		h.email(ctx, "Order cancelled #"+event.OrderID,
			fmt.Sprintf("Order #%s was cancelled from %s by %d.", event.OrderID, event.From, event.ActorID))
	}
	return nil
}

func (h *EventHandler) HandleReviewSubmitted(ctx context.Context, payload []byte) error {
	var event domain.ReviewSubmittedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return messaging.Skip(fmt.Errorf("unmarshal review submitted event: %w", err))
	}

	h.logger.Info("processing review submitted event", "review_id", event.ReviewID, "average", event.Average)

	room := event.Room
	if room == "" {
		room = event.ScannedRoom
	}
	h.email(ctx, fmt.Sprintf("New review #%d: %.1f/10", event.ReviewID, event.Average),
		fmt.Sprintf("%s (room %s) rated their stay %.1f/10. It is waiting for moderation.", event.GuestName, room, event.Average))
	return nil
}

func (h *EventHandler) HandleReviewModerated(_ context.Context, payload []byte) error {
	var event domain.ReviewModeratedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return messaging.Skip(fmt.Errorf("unmarshal review moderated event: %w", err))
	}

	h.logger.Info("review moderated", "review_id", event.ReviewID, "action", event.Action,
		"status", event.Status, "published", event.Published, "actor_id", event.ActorID)
	return nil
}
