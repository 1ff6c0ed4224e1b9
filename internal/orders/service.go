package orders

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/guestdesk/internal/access"
	"github.com/joao-fontenele/guestdesk/internal/domain"
	"github.com/joao-fontenele/guestdesk/internal/notify"
)

const (
	maxOrderIDLength = 64
	topClientsLimit  = 10
	maxItemPrice     = 100_000_000
	maxItemQuantity  = 1000
	generatedIDTries = 3
)

type Store interface {
	Create(ctx context.Context, order *domain.Order) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, actorID int64) (bool, error)
	SetReceipt(ctx context.Context, id, ref string) error
	List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	PeriodStats(ctx context.Context, since time.Time) (*PeriodStats, error)
	TopClients(ctx context.Context, limit int) ([]ClientStats, error)
	StatusStats(ctx context.Context) ([]StatusStats, error)
	AverageCheck(ctx context.Context, now time.Time) (*AverageCheck, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type RoomLookup interface {
	Lookup(requesterID int64) (string, bool)
}

type Notifier interface {
	Notify(ctx context.Context, recipients []notify.Recipient, msg notify.Message) []notify.DeliveryResult
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// ReceiptRenderer turns an order into a stored document and returns its reference.
type ReceiptRenderer interface {
	RenderReceipt(ctx context.Context, order *domain.Order) (string, error)
}

// Draft is an order submission as received from the bar page.
type Draft struct {
	OrderID         string
	GuestName       string
	Room            string
	RequesterID     *int64
	RequesterHandle string
	Items           []domain.OrderItem
	Total           int64
	SubmittedAt     string
}

type SubmitResult struct {
	OrderID   string
	Duplicate bool
}

type Service struct {
	store      Store
	notifier   Notifier
	policy     access.Checker
	directory  notify.Directory
	rooms      RoomLookup
	created    Publisher
	changed    Publisher
	receipts   ReceiptRenderer
	logger     *slog.Logger
	now        func() time.Time
	newID      func(now time.Time) string
	submitted  metric.Int64Counter
	transition metric.Int64Counter
}

type ServiceOption func(*Service)

func WithRoomLookup(rooms RoomLookup) ServiceOption {
	return func(s *Service) {
		s.rooms = rooms
	}
}

func WithPublishers(created, changed Publisher) ServiceOption {
	return func(s *Service) {
		s.created = created
		s.changed = changed
	}
}

func WithReceipts(r ReceiptRenderer) ServiceOption {
	return func(s *Service) {
		s.receipts = r
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, notifier Notifier, policy access.Checker, directory notify.Directory, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		notifier:  notifier,
		policy:    policy,
		directory: directory,
		logger:    logger,
		now:       time.Now,
		newID:     generateOrderID,
	}

	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter("guestdesk/orders")
	s.submitted, _ = meter.Int64Counter("guestdesk.orders.submitted")
	s.transition, _ = meter.Int64Counter("guestdesk.orders.transitions")

	return s
}

// Submit validates and stores a new order, then notifies admins and the guest.
// Resubmitting a client-supplied id is a no-op that returns the stored id.
func (s *Service) Submit(ctx context.Context, draft Draft) (*SubmitResult, error) {
	now := s.now().UTC()

	order := &domain.Order{
		ID:              strings.TrimSpace(draft.OrderID),
		GuestName:       strings.TrimSpace(draft.GuestName),
		Room:            strings.TrimSpace(draft.Room),
		RequesterID:     draft.RequesterID,
		RequesterHandle: strings.TrimPrefix(strings.TrimSpace(draft.RequesterHandle), "@"),
		Items:           draft.Items,
		Total:           draft.Total,
		SubmittedAt:     strings.TrimSpace(draft.SubmittedAt),
		Status:          domain.OrderStatusReceived,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	generated := order.ID == ""
	if generated {
		order.ID = s.newID(now)
	}
	if order.SubmittedAt == "" {
		order.SubmittedAt = now.Format("02.01.2006 15:04")
	}

	if s.rooms != nil && order.RequesterID != nil {
		if room, ok := s.rooms.Lookup(*order.RequesterID); ok {
			order.ScannedRoom = room
			if order.Room == "" {
				order.Room = room
			}
		}
	}

	if err := validate(order); err != nil {
		return nil, err
	}

	created, err := s.store.Create(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// A generated id that is already taken belongs to someone else's order, so draw a new one.
	for try := 1; generated && !created && try < generatedIDTries; try++ {
		s.logger.Warn("generated order id already taken", "order_id", order.ID)
		order.ID = s.newID(now)
		if created, err = s.store.Create(ctx, order); err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
	}
	if generated && !created {
		return nil, fmt.Errorf("create order: no free id after %d tries", generatedIDTries)
	}

	if !created {
		s.logger.Info("duplicate order submission ignored", "order_id", order.ID)
		return &SubmitResult{OrderID: order.ID, Duplicate: true}, nil
	}

	if s.submitted != nil {
		s.submitted.Add(ctx, 1)
	}

	if s.receipts != nil {
		ref, err := s.receipts.RenderReceipt(ctx, order)
		if err != nil {
			s.logger.Error("failed to render receipt", "error", err, "order_id", order.ID)
		} else if err := s.store.SetReceipt(ctx, order.ID, ref); err != nil {
			s.logger.Error("failed to store receipt reference", "error", err, "order_id", order.ID)
		} else {
			order.ReceiptRef = ref
		}
	}

	s.notifier.Notify(ctx, s.directory.Admins(), adminOrderMessage(order))
	s.notifier.Notify(ctx, notify.Guest(order.RequesterID, order.RequesterHandle), guestAckMessage(order))

	if s.created != nil {
		event := domain.OrderCreatedEvent{
			OrderID:     order.ID,
			GuestName:   order.GuestName,
			Room:        order.Room,
			ScannedRoom: order.ScannedRoom,
			Items:       order.Items,
			Total:       order.Total,
			Timestamp:   order.CreatedAt,
		}
		if err := s.created.Publish(ctx, order.ID, event); err != nil {
			s.logger.Error("failed to publish order created event", "error", err, "order_id", order.ID)
		}
	}

	s.logger.Info("order created", "order_id", order.ID, "room", order.Room, "total", order.Total)
	return &SubmitResult{OrderID: order.ID}, nil
}

func validate(order *domain.Order) error {
	switch {
	case len(order.ID) > maxOrderIDLength:
		return &domain.ValidationError{Field: "orderId", Reason: "too long"}
	case order.GuestName == "":
		return &domain.ValidationError{Field: "name", Reason: "required"}
	case order.Room == "":
		return &domain.ValidationError{Field: "room", Reason: "required"}
	case len(order.Items) == 0:
		return &domain.ValidationError{Field: "items", Reason: "at least one item is required"}
	}

	for i, item := range order.Items {
		field := fmt.Sprintf("items[%d]", i)
		switch {
		case strings.TrimSpace(item.Name) == "":
			return &domain.ValidationError{Field: field, Reason: "name is required"}
		case item.Price <= 0:
			return &domain.ValidationError{Field: field, Reason: "price must be positive"}
		case item.Quantity <= 0:
			return &domain.ValidationError{Field: field, Reason: "quantity must be positive"}
		case item.Price > maxItemPrice:
			return &domain.ValidationError{Field: field, Reason: fmt.Sprintf("price must not exceed %d", maxItemPrice)}
		case item.Quantity > maxItemQuantity:
			return &domain.ValidationError{Field: field, Reason: fmt.Sprintf("quantity must not exceed %d", maxItemQuantity)}
		}
	}

	if order.Total <= 0 {
		return &domain.ValidationError{Field: "total", Reason: "required"}
	}
	if sum := order.ItemsTotal(); sum != order.Total {
		return &domain.ValidationError{Field: "total", Reason: fmt.Sprintf("submitted %d but items add up to %d", order.Total, sum)}
	}

	return nil
}

// generateOrderID keeps the unix-seconds prefix guests are used to and adds a random suffix
// so two orders in the same second get distinct ids.
func generateOrderID(now time.Time) string {
	return strconv.FormatInt(now.Unix(), 10) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Transition applies one edge of the fulfillment graph on behalf of actorID.
func (s *Service) Transition(ctx context.Context, id string, target domain.OrderStatus, actorID int64) (*domain.Order, error) {
	if err := access.Require(s.policy, actorID, access.CapOrderChangeStatus); err != nil {
		return nil, err
	}

	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, &domain.NotFoundError{Entity: "order", ID: id}
	}

	from := order.Status
	if !from.CanTransition(target) {
		return nil, &domain.InvalidTransitionError{Entity: "order", ID: id, From: string(from), To: string(target)}
	}

	ok, err := s.store.UpdateStatus(ctx, id, from, target, actorID)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if !ok {
		return nil, &domain.InvalidTransitionError{Entity: "order", ID: id, From: string(from), To: string(target)}
	}

	order.Status = target
	order.UpdatedAt = s.now().UTC()

	if s.transition != nil {
		s.transition.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(target))))
	}

	s.notifier.Notify(ctx, notify.Guest(order.RequesterID, order.RequesterHandle), guestStatusMessage(order))

	if s.changed != nil {
		event := domain.OrderStatusChangedEvent{
			OrderID:   id,
			From:      from,
			To:        target,
			ActorID:   actorID,
			Timestamp: order.UpdatedAt,
		}
		if err := s.changed.Publish(ctx, id, event); err != nil {
			s.logger.Error("failed to publish order status event", "error", err, "order_id", id)
		}
	}

	s.logger.Info("order status updated", "order_id", id, "from", from, "to", target, "actor_id", actorID)
	return order, nil
}

// Get returns the public view of an order for the HTTP lookup.
func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, &domain.NotFoundError{Entity: "order", ID: id}
	}
	return order, nil
}

// GuestStatus returns the order only to its requester or to someone who knows its room.
func (s *Service) GuestStatus(ctx context.Context, id string, requesterID int64, room string) (*domain.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if order.RequesterID != nil && *order.RequesterID == requesterID {
		return order, nil
	}

	room = strings.TrimSpace(room)
	if room == "" && s.rooms != nil {
		room, _ = s.rooms.Lookup(requesterID)
	}
	if room != "" && strings.EqualFold(room, order.Room) {
		return order, nil
	}

	return nil, &domain.NotFoundError{Entity: "order", ID: id}
}

type ListScope string

const (
	ScopeAll    ListScope = "all"
	ScopeActive ListScope = "active"
	ScopeToday  ListScope = "today"
)

// Filter builds the repository filter for a named admin list scope.
func (s *Service) Filter(scope ListScope) (domain.OrderFilter, error) {
	switch scope {
	case "", ScopeAll:
		return domain.OrderFilter{Limit: defaultListLimit}, nil
	case ScopeActive:
		return domain.OrderFilter{Statuses: []domain.OrderStatus{
			domain.OrderStatusReceived, domain.OrderStatusPreparing, domain.OrderStatusReady,
		}}, nil
	case ScopeToday:
		now := s.now()
		return domain.OrderFilter{Since: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())}, nil
	}

	status := domain.OrderStatus(scope)
	if status.Valid() {
		return domain.OrderFilter{Statuses: []domain.OrderStatus{status}}, nil
	}
	return domain.OrderFilter{}, &domain.ValidationError{Field: "filter", Reason: "unknown filter " + string(scope)}
}

func (s *Service) List(ctx context.Context, actorID int64, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := access.Require(s.policy, actorID, access.CapOrderView); err != nil {
		return nil, err
	}
	return s.store.List(ctx, filter)
}

type StatsReport struct {
	Days     int           `json:"days"`
	Period   *PeriodStats  `json:"period"`
	Average  *AverageCheck `json:"average"`
	Statuses []StatusStats `json:"statuses"`
	Top      []ClientStats `json:"top_clients"`
}

func (s *Service) Stats(ctx context.Context, actorID int64, days int) (*StatsReport, error) {
	if err := access.Require(s.policy, actorID, access.CapOrderStats); err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, &domain.ValidationError{Field: "days", Reason: "must be positive"}
	}

	now := s.now()
	report := &StatsReport{Days: days}

	var err error
	if report.Period, err = s.store.PeriodStats(ctx, now.AddDate(0, 0, -days)); err != nil {
		return nil, fmt.Errorf("period stats: %w", err)
	}
	if report.Average, err = s.store.AverageCheck(ctx, now); err != nil {
		return nil, fmt.Errorf("average check: %w", err)
	}
	if report.Statuses, err = s.store.StatusStats(ctx); err != nil {
		return nil, fmt.Errorf("status stats: %w", err)
	}
	if report.Top, err = s.store.TopClients(ctx, topClientsLimit); err != nil {
		return nil, fmt.Errorf("top clients: %w", err)
	}

	return report, nil
}

// ExportCSV writes the filtered orders as CSV, one row per order.
func (s *Service) ExportCSV(ctx context.Context, actorID int64, filter domain.OrderFilter, w io.Writer) (int, error) {
	if err := access.Require(s.policy, actorID, access.CapOrderStats); err != nil {
		return 0, err
	}

	orders, err := s.store.List(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("list orders: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"order_id", "name", "room", "items", "total", "status", "timestamp", "created_at"}); err != nil {
		return 0, err
	}
	for _, o := range orders {
		record := []string{
			o.ID, o.GuestName, o.Room, itemsSummary(o.Items), strconv.FormatInt(o.Total, 10),
			string(o.Status), o.SubmittedAt, o.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return 0, err
		}
	}
	cw.Flush()

	return len(orders), cw.Error()
}

// Cleanup deletes orders older than the retention window.
func (s *Service) Cleanup(ctx context.Context, actorID int64, olderThan time.Duration) (int64, error) {
	if err := access.Require(s.policy, actorID, access.CapOrderCleanup); err != nil {
		return 0, err
	}
	if olderThan <= 0 {
		return 0, &domain.ValidationError{Field: "older_than", Reason: "must be positive"}
	}

	deleted, err := s.store.DeleteOlderThan(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("delete old orders: %w", err)
	}

	s.logger.Info("old orders deleted", "count", deleted, "actor_id", actorID)
	return deleted, nil
}
