package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/guestdesk/internal/domain"
)

type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelEmail    Channel = "email"
)

type Recipient struct {
	Channel Channel
	Address string
}

func (r Recipient) String() string {
	return string(r.Channel) + ":" + r.Address
}

// Action is a button attached to a message. Data is routed back as a callback.
type Action struct {
	Label string
	Data  string
}

type Attachment struct {
	Name string
	Data []byte
}

type Message struct {
	Subject     string
	Text        string
	HTML        string
	Actions     [][]Action
	Attachments []Attachment
}

type Sender interface {
	Send(ctx context.Context, to Recipient, msg Message) error
}

type DeliveryResult struct {
	Recipient Recipient
	Err       error
}

func (r DeliveryResult) Delivered() bool {
	return r.Err == nil
}

// ErrPermanent marks a delivery failure that retrying cannot fix, such as a blocked chat.
var ErrPermanent = errors.New("permanent delivery failure")

type Dispatcher struct {
	senders    map[Channel]Sender
	retry      RetryPolicy
	logger     *slog.Logger
	deliveries metric.Int64Counter
}

type Option func(*Dispatcher)

func WithSender(channel Channel, sender Sender) Option {
	return func(d *Dispatcher) {
		d.senders[channel] = sender
	}
}

func WithRetry(policy RetryPolicy) Option {
	return func(d *Dispatcher) {
		d.retry = policy
	}
}

func NewDispatcher(logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		senders: make(map[Channel]Sender),
		retry:   NoRetry{},
		logger:  logger,
	}

	for _, opt := range opts {
		opt(d)
	}

	counter, err := otel.Meter("guestdesk/notify").Int64Counter("guestdesk.notifications.deliveries",
		metric.WithDescription("Notification delivery attempts by channel and outcome"),
	)
	if err != nil {
		logger.Error("failed to create deliveries counter", "error", err)
	}
	d.deliveries = counter

	return d
}

// Notify delivers msg to every recipient independently. Failures are logged and
// reported in the results; they are never returned as an error.
func (d *Dispatcher) Notify(ctx context.Context, recipients []Recipient, msg Message) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(recipients))

	for _, to := range recipients {
		err := d.deliver(ctx, to, msg)
		if err != nil {
			d.logger.Error("failed to deliver notification", "error", err, "channel", to.Channel, "recipient", to.Address)
		}
		d.record(ctx, to.Channel, err)
		results = append(results, DeliveryResult{Recipient: to, Err: err})
	}

	return results
}

func (d *Dispatcher) deliver(ctx context.Context, to Recipient, msg Message) error {
	sender, ok := d.senders[to.Channel]
	if !ok {
		return &domain.DeliveryError{
			Channel:   string(to.Channel),
			Recipient: to.Address,
			Err:       fmt.Errorf("no sender for channel: %w", ErrPermanent),
		}
	}

	err := d.retry.Do(ctx, func() error {
		return sender.Send(ctx, to, msg)
	})
	if err != nil {
		return &domain.DeliveryError{Channel: string(to.Channel), Recipient: to.Address, Err: err}
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, channel Channel, err error) {
	if d.deliveries == nil {
		return
	}
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	d.deliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", string(channel)),
		attribute.String("outcome", outcome),
	))
}

// Failed filters the results that were not delivered.
func Failed(results []DeliveryResult) []DeliveryResult {
	var failed []DeliveryResult
	for _, r := range results {
		if !r.Delivered() {
			failed = append(failed, r)
		}
	}
	return failed
}
