package domain

import "time"

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
	TopicReviewSubmitted    = "review.submitted"
	TopicReviewModerated    = "review.moderated"
)

type OrderCreatedEvent struct {
	OrderID     string      `json:"order_id"`
	GuestName   string      `json:"name"`
	Room        string      `json:"room"`
	ScannedRoom string      `json:"scanned_room,omitempty"`
	Items       []OrderItem `json:"items"`
	Total       int64       `json:"total"`
	Timestamp   time.Time   `json:"timestamp"`
}

type OrderStatusChangedEvent struct {
	OrderID   string      `json:"order_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	ActorID   int64       `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
}

type ReviewSubmittedEvent struct {
	ReviewID    int64     `json:"review_id"`
	GuestName   string    `json:"name"`
	Room        string    `json:"room,omitempty"`
	ScannedRoom string    `json:"scanned_room,omitempty"`
	Average     float64   `json:"average"`
	Timestamp   time.Time `json:"timestamp"`
}

type ReviewModeratedEvent struct {
	ReviewID  int64        `json:"review_id"`
	Action    string       `json:"action"`
	Status    ReviewStatus `json:"status"`
	Published bool         `json:"published"`
	ActorID   int64        `json:"actor_id"`
	Timestamp time.Time    `json:"timestamp"`
}
