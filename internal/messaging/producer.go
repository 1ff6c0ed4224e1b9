package messaging

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Producer publishes JSON events to one Kafka topic, keyed by entity id so events of one order stay ordered.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           100 * time.Millisecond,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	env, err := encode(event)
	if err != nil {
		return err
	}

	ctx, span := startPublish(ctx, p.topic,
		semconv.MessagingSystemKafka,
		semconv.MessagingDestinationName(p.topic),
		semconv.MessagingKafkaMessageKey(key),
		semconv.MessagingMessageID(env.id),
	)

	msg := kafka.Message{
		Key:     []byte(key),
		Value:   env.body,
		Headers: []kafka.Header{{Key: eventIDHeader, Value: []byte(env.id)}},
	}
	otel.GetTextMapPropagator().Inject(ctx, NewHeaderCarrier(&msg))

	err = p.writer.WriteMessages(ctx, msg)
	finish(span, err)
	return err
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
