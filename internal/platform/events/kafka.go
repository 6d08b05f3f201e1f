package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/artisan-market/api/internal/services"
)

// Producer is the subset of the instrumented Kafka writer used by the publisher.
type Producer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// WriterConfig describes the Kafka cluster and topic receiving order events.
type WriterConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	BatchTimeout time.Duration
}

// NewProducer builds a kafka-go writer wrapped with trace propagation. Messages are keyed by
// order id and hashed to partitions so every event of an order stays in sequence.
func NewProducer(cfg WriterConfig) (Producer, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, broker := range cfg.Brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("events: at least one kafka broker is required")
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		return nil, errors.New("events: kafka topic is required")
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	base := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           batchTimeout,
		AllowAutoTopicCreation: false,
	}

	writer, err := otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(otel.GetTracerProvider()),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes([]attribute.KeyValue{
			semconv.MessagingDestinationNameKey.String(topic),
			attribute.String("messaging.kafka.client_id", cfg.ClientID),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: instrument kafka writer: %w", err)
	}
	return writer, nil
}

// KafkaPublisher emits order lifecycle events as JSON records.
type KafkaPublisher struct {
	producer Producer
	marshal  func(any) ([]byte, error)
}

var _ services.OrderEventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher wraps a producer.
func NewKafkaPublisher(producer Producer) (*KafkaPublisher, error) {
	if producer == nil {
		return nil, errors.New("events: producer is required")
	}
	return &KafkaPublisher{producer: producer, marshal: json.Marshal}, nil
}

// PublishOrderEvent implements services.OrderEventPublisher.
func (p *KafkaPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if strings.TrimSpace(event.OrderID) == "" {
		return errors.New("events: order id is required")
	}
	payload, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", event.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: payload,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "event-id", Value: []byte(event.ID)},
		},
	}
	if err := p.producer.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("events: write %s for order %s: %w", event.Type, event.OrderID, err)
	}
	return nil
}

// Close flushes and closes the underlying producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
