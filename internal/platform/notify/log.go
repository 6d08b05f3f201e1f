package notify

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/artisan-market/api/internal/services"
)

// LogSink writes notifications to the structured log instead of delivering them.
// It is the default backend for local development.
type LogSink struct {
	logger *zap.Logger
}

var _ services.NotificationSink = (*LogSink)(nil)

// NewLogSink constructs a LogSink. A nil logger discards output.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Send implements services.NotificationSink.
func (s *LogSink) Send(_ context.Context, message services.NotificationMessage) (string, error) {
	if strings.TrimSpace(message.To) == "" {
		return "", errors.New("notify: recipient is required")
	}
	s.logger.Info("notification",
		zap.String("notification_id", message.ID),
		zap.String("kind", string(message.Kind)),
		zap.String("order_id", message.OrderID),
		zap.String("to", message.To),
		zap.String("subject", message.Subject),
		zap.String("body", message.Text),
	)
	return "log:" + message.ID, nil
}
