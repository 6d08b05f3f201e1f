package auth

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const metricNamespace = "github.com/artisan-market/api/internal/platform/auth"

// MetricsRecorder records verification outcomes for observability.
type MetricsRecorder interface {
	RecordVerification(ctx context.Context, provider string, success bool, reason string, duration time.Duration)
}

// MetricsRecorderFunc adapts a function to MetricsRecorder.
type MetricsRecorderFunc func(context.Context, string, bool, string, time.Duration)

// RecordVerification implements MetricsRecorder.
func (f MetricsRecorderFunc) RecordVerification(ctx context.Context, provider string, success bool, reason string, duration time.Duration) {
	if f != nil {
		f(ctx, provider, success, reason, duration)
	}
}

type meterRecorder struct {
	verifications metric.Int64Counter
	latency       metric.Float64Histogram
}

// NewMeterRecorder registers the verification counter and latency histogram on meter.
// A nil meter falls back to the global meter provider.
func NewMeterRecorder(meter metric.Meter) (MetricsRecorder, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	verifications, err := meter.Int64Counter(
		"auth.verifications",
		metric.WithDescription("Count of bearer token verifications by provider and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: register verification counter: %w", err)
	}
	latency, err := meter.Float64Histogram(
		"auth.verification.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds of bearer token verification"),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: register verification latency: %w", err)
	}

	return &meterRecorder{verifications: verifications, latency: latency}, nil
}

func (m *meterRecorder) RecordVerification(ctx context.Context, provider string, success bool, reason string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	)
	m.verifications.Add(ctx, 1, attrs)
	m.latency.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
}
