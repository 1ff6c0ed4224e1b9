package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// EventsExchange is the durable topic exchange every event is routed through. The routing key is the topic.
const EventsExchange = "guestdesk.events"

var ErrNacked = errors.New("publish nacked by broker")

func declareExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil)
}

// AMQPPublisher publishes JSON events for one topic and waits for the broker confirm.
type AMQPPublisher struct {
	mu    sync.Mutex
	ch    *amqp.Channel
	acks  <-chan amqp.Confirmation
	topic string
}

func NewAMQPPublisher(conn *amqp.Connection, topic string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if err := declareExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	return &AMQPPublisher{
		ch:    ch,
		acks:  ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		topic: topic,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, key string, event any) error {
	env, err := encode(event)
	if err != nil {
		return err
	}

	ctx, span := startPublish(ctx, p.topic,
		semconv.MessagingSystemRabbitmq,
		semconv.MessagingDestinationName(EventsExchange),
		semconv.MessagingRabbitmqDestinationRoutingKey(p.topic),
		semconv.MessagingMessageID(env.id),
	)

	headers := amqp.Table{eventIDHeader: env.id}
	otel.GetTextMapPropagator().Inject(ctx, TableCarrier(headers))

	err = p.publish(ctx, amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		CorrelationId: key,
		Timestamp:     time.Now(),
		Headers:       headers,
		Body:          env.body,
	})
	finish(span, err)
	return err
}

// publish sends one message and waits for its confirm. Confirms arrive in publish order, so sends are serialized.
func (p *AMQPPublisher) publish(ctx context.Context, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, EventsExchange, p.topic, false, false, msg); err != nil {
		return err
	}

	select {
	case conf := <-p.acks:
		if !conf.Ack {
			return ErrNacked
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}

// AMQPConsumer reads one topic through a durable queue bound to the events exchange.
type AMQPConsumer struct {
	ch       *amqp.Channel
	queue    string
	topic    string
	prefetch int
}

func NewAMQPConsumer(conn *amqp.Connection, topic, group string, prefetch int) (*AMQPConsumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	queue := group + "." + topic
	if err := declareExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue, topic, EventsExchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &AMQPConsumer{ch: ch, queue: queue, topic: topic, prefetch: prefetch}, nil
}

// Consume acks each delivery once the handler succeeded. Skipped deliveries are dropped without requeue.
// Any other failure requeues the delivery and stops consuming.
func (c *AMQPConsumer) Consume(ctx context.Context, handler Handler) error {
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			err := c.process(ctx, d, handler)
			ack, stop := settle(err)
			switch {
			case stop != nil:
				_ = d.Nack(false, true)
				return stop
			case ack && err != nil:
				if err := d.Nack(false, false); err != nil {
					return err
				}
			default:
				if err := d.Ack(false); err != nil {
					return err
				}
			}
		}
	}
}

func (c *AMQPConsumer) process(ctx context.Context, d amqp.Delivery, handler Handler) error {
	carrier := TableCarrier(d.Headers)
	if carrier == nil {
		carrier = TableCarrier{}
	}
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	ctx, span := startProcess(ctx, c.topic, carrier.Get(eventIDHeader),
		semconv.MessagingSystemRabbitmq,
		semconv.MessagingDestinationName(c.queue),
		semconv.MessagingRabbitmqDestinationRoutingKey(d.RoutingKey),
	)

	err := handler(ctx, d.Body)
	finish(span, err)
	return err
}

func (c *AMQPConsumer) Close() error {
	return c.ch.Close()
}
