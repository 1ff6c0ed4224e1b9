package messaging

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	TransportKafka    = "kafka"
	TransportRabbitMQ = "rabbitmq"
)

const defaultPrefetch = 10

// Broker hands out publishers and subscribers on the configured event transport.
// A Kafka broker without addresses is disabled: Publisher returns nil and events are not emitted.
type Broker struct {
	transport string
	brokers   []string
	conn      *amqp.Connection
}

func NewBroker(transport string, kafkaBrokers []string, rabbitURL string) (*Broker, error) {
	b := &Broker{transport: transport, brokers: kafkaBrokers}

	switch transport {
	case TransportKafka:
	case TransportRabbitMQ:
		if rabbitURL == "" {
			return nil, errors.New("RABBITMQ_URL is required for the rabbitmq transport")
		}
		conn, err := amqp.Dial(rabbitURL)
		if err != nil {
			return nil, fmt.Errorf("dial rabbitmq: %w", err)
		}
		b.conn = conn
	default:
		return nil, fmt.Errorf("unknown event transport %q", transport)
	}

	return b, nil
}

func (b *Broker) Enabled() bool {
	return b.conn != nil || len(b.brokers) > 0
}

func (b *Broker) Publisher(topic string) (Publisher, error) {
	switch {
	case b.conn != nil:
		p, err := NewAMQPPublisher(b.conn, topic)
		if err != nil {
			return nil, fmt.Errorf("open publisher for %s: %w", topic, err)
		}
		return p, nil
	case len(b.brokers) > 0:
		return NewProducer(b.brokers, topic), nil
	}
	return nil, nil
}

func (b *Broker) Subscriber(topic, group string) (Subscriber, error) {
	switch {
	case b.conn != nil:
		c, err := NewAMQPConsumer(b.conn, topic, group, defaultPrefetch)
		if err != nil {
			return nil, fmt.Errorf("open subscriber for %s: %w", topic, err)
		}
		return c, nil
	case len(b.brokers) > 0:
		return NewConsumer(b.brokers, topic, group), nil
	}
	return nil, errors.New("event transport is not configured")
}

func (b *Broker) Close() error {
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
