package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
	defaultTxName     = "transaction"

	tracerName = "github.com/artisan-market/api/internal/platform/firestore"
)

// TxFunc is the body of a transaction. It may run more than once when Firestore reports contention.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption tunes RunTransaction.
type TxOption func(*txConfig)

type txConfig struct {
	name     string
	attempts int
	timeout  time.Duration
}

// WithTxAttempts caps how many times the body is retried on contention.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout bounds the whole transaction, retries included.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithTxName labels the span and wrapped errors, e.g. "products.tryReserve".
func WithTxName(name string) TxOption {
	return func(cfg *txConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// RunTransaction runs fn in a Firestore transaction under a tracing span that records how many
// attempts the body needed.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	cfg := txConfig{name: defaultTxName, attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if client == nil {
		return WrapError(cfg.name, errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError(cfg.name, errors.New("firestore: transaction function is nil"))
	}

	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > cfg.timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "firestore."+cfg.name)
	defer span.End()

	attempts := 0
	err := client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		attempts++
		return fn(ctx, tx)
	}, firestore.MaxAttempts(cfg.attempts))

	span.SetAttributes(attribute.Int("firestore.tx.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "transaction failed")
	}
	return WrapError(cfg.name, err)
}
