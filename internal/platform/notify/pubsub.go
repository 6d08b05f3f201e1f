package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/artisan-market/api/internal/services"
)

// mailPayload is the message body consumed by the mailer worker subscribed to the topic.
type mailPayload struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	OrderID string `json:"orderId,omitempty"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// PubSubSink hands rendered notifications to a mailer topic.
type PubSubSink struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.NotificationSink = (*PubSubSink)(nil)

// NewPubSubSink constructs a Pub/Sub backed notification sink.
func NewPubSubSink(topic *pubsub.Topic) (*PubSubSink, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification sink: topic is required")
	}
	return &PubSubSink{topic: topic, marshal: json.Marshal}, nil
}

// Send publishes the message and waits for the server acknowledgement.
func (s *PubSubSink) Send(ctx context.Context, message services.NotificationMessage) (string, error) {
	if s == nil || s.topic == nil {
		return "", errors.New("pubsub notification sink: not initialised")
	}
	if strings.TrimSpace(message.To) == "" {
		return "", errors.New("notify: recipient is required")
	}

	data, err := s.marshal(mailPayload{
		ID:      message.ID,
		Kind:    string(message.Kind),
		OrderID: message.OrderID,
		To:      message.To,
		Subject: message.Subject,
		Text:    message.Text,
		HTML:    message.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "notificationId", message.ID)
	setAttr(attrs, "kind", string(message.Kind))
	setAttr(attrs, "orderId", message.OrderID)

	result := s.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish notification: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
