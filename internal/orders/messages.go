package orders

import (
	"fmt"
	"strings"

	"github.com/joao-fontenele/guestdesk/internal/domain"
	"github.com/joao-fontenele/guestdesk/internal/notify"
)

const currency = "₸"

var statusLabels = map[domain.OrderStatus]string{
	domain.OrderStatusReceived:  "Received",
	domain.OrderStatusPreparing: "Preparing",
	domain.OrderStatusReady:     "Ready",
	domain.OrderStatusDelivered: "Delivered",
	domain.OrderStatusCancelled: "Cancelled",
}

func StatusLabel(s domain.OrderStatus) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// CallbackData is the inline button payload that moves order id to status.
func CallbackData(id string, status domain.OrderStatus) string {
	return "order_" + string(status) + "_" + id
}

// ParseCallbackData is the inverse of CallbackData.
func ParseCallbackData(data string) (string, domain.OrderStatus, bool) {
	rest, ok := strings.CutPrefix(data, "order_")
	if !ok {
		return "", "", false
	}
	status, id, ok := strings.Cut(rest, "_")
	if !ok || id == "" {
		return "", "", false
	}
	return id, domain.OrderStatus(status), true
}

// StatusActions returns one button per status reachable from the order's current status.
func StatusActions(order *domain.Order) [][]notify.Action {
	next := order.Status.NextStatuses()
	if len(next) == 0 {
		return nil
	}
	row := make([]notify.Action, 0, len(next))
	for _, s := range next {
		row = append(row, notify.Action{Label: StatusLabel(s), Data: CallbackData(order.ID, s)})
	}
	return [][]notify.Action{row}
}

func itemLines(items []domain.OrderItem) string {
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "• %s x%d: %d %s\n", item.Name, item.Quantity, item.Subtotal(), currency)
	}
	return b.String()
}

func itemsSummary(items []domain.OrderItem) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprintf("%s x%d", item.Name, item.Quantity)
	}
	return strings.Join(parts, "; ")
}

func adminOrderMessage(order *domain.Order) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "New order #%s\n\n", order.ID)
	fmt.Fprintf(&b, "Guest: %s\n", order.GuestName)
	fmt.Fprintf(&b, "Room: %s", order.Room)
	if order.ScannedRoom != "" && order.ScannedRoom != order.Room {
		fmt.Fprintf(&b, " (scanned QR in room %s)", order.ScannedRoom)
	}
	b.WriteString("\n")
	if order.RequesterHandle != "" {
		fmt.Fprintf(&b, "Telegram: @%s\n", order.RequesterHandle)
	}
	b.WriteString("\n")
	b.WriteString(itemLines(order.Items))
	fmt.Fprintf(&b, "\nTotal: %d %s\n", order.Total, currency)
	fmt.Fprintf(&b, "Time: %s", order.SubmittedAt)

	return notify.Message{
		Subject: "New order #" + order.ID,
		Text:    b.String(),
		Actions: StatusActions(order),
	}
}

func guestAckMessage(order *domain.Order) notify.Message {
	text := fmt.Sprintf(
		"Thank you, %s! Your order #%s has been received.\n\n%sTotal: %d %s\nPayment on pickup.\n\nCheck its status with /status %s",
		order.GuestName, order.ID, itemLines(order.Items), order.Total, currency, order.ID,
	)
	return notify.Message{Text: text}
}

var guestStatusTexts = map[domain.OrderStatus]string{
	domain.OrderStatusPreparing: "Your order #%s is being prepared.",
	domain.OrderStatusReady:     "Your order #%s is ready for pickup at the bar.",
	domain.OrderStatusDelivered: "Your order #%s has been delivered. Enjoy!",
	domain.OrderStatusCancelled: "Your order #%s has been cancelled. Please contact the front desk with any questions.",
}

func guestStatusMessage(order *domain.Order) notify.Message {
	format, ok := guestStatusTexts[order.Status]
	if !ok {
		format = "Your order #%s status: " + StatusLabel(order.Status)
	}
	return notify.Message{Text: fmt.Sprintf(format, order.ID)}
}

// Describe renders an order for the /status and /orders replies.
func Describe(order *domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order #%s: %s\n", order.ID, StatusLabel(order.Status))
	fmt.Fprintf(&b, "%s, room %s\n", order.GuestName, order.Room)
	b.WriteString(itemLines(order.Items))
	fmt.Fprintf(&b, "Total: %d %s", order.Total, currency)
	return b.String()
}
