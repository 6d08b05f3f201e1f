package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/artisan-market/api/internal/services"
)

type fakeProducer struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeProducer) WriteMessage(_ context.Context, msg kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherWritesKeyedRecord(t *testing.T) {
	producer := &fakeProducer{}
	publisher, err := NewKafkaPublisher(producer)
	require.NoError(t, err)

	occurred := time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)
	event := services.OrderEvent{
		ID:            "evt-1",
		Type:          services.EventOrderProcessed,
		OrderID:       "ord-1",
		CustomerEmail: "asha@example.com",
		ProductID:     "lamp",
		Quantity:      2,
		ItemTotal:     250000,
		Month:         "2025-01",
		OccurredAt:    occurred,
	}
	require.NoError(t, publisher.PublishOrderEvent(context.Background(), event))

	require.Len(t, producer.messages, 1)
	msg := producer.messages[0]
	require.Equal(t, "ord-1", string(msg.Key))
	require.Equal(t, occurred, msg.Time)
	require.Equal(t, []kafka.Header{
		{Key: "event-type", Value: []byte("order.processed")},
		{Key: "event-id", Value: []byte("evt-1")},
	}, msg.Headers)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, "order.processed", decoded["type"])
	require.Equal(t, "2025-01", decoded["month"])
	require.EqualValues(t, 250000, decoded["itemTotal"])

	require.NoError(t, publisher.Close())
	require.True(t, producer.closed)
}

func TestKafkaPublisherSurfacesWriteError(t *testing.T) {
	publisher, err := NewKafkaPublisher(&fakeProducer{err: errors.New("leader not available")})
	require.NoError(t, err)

	err = publisher.PublishOrderEvent(context.Background(), services.OrderEvent{Type: services.EventOrderPlaced, OrderID: "ord-2"})
	require.ErrorContains(t, err, "leader not available")

	err = publisher.PublishOrderEvent(context.Background(), services.OrderEvent{Type: services.EventOrderPlaced})
	require.Error(t, err)
}

func TestNewProducerValidatesConfig(t *testing.T) {
	_, err := NewProducer(WriterConfig{Topic: "orders"})
	require.Error(t, err)

	_, err = NewProducer(WriterConfig{Brokers: []string{" "}, Topic: "orders"})
	require.Error(t, err)

	_, err = NewProducer(WriterConfig{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)
}
