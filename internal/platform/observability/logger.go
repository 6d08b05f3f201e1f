package observability

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/artisan-market/api/internal/platform/requestctx"
)

// NewLogger builds the JSON logger for Cloud Run. Keys follow the Cloud Logging structured
// payload so severity and timestamps are picked up without a log agent. LOG_LEVEL selects the
// minimum level and defaults to info.
func NewLogger() (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(raw))); err != nil {
			return nil, fmt.Errorf("observability: LOG_LEVEL %q: %w", raw, err)
		}
	}

	encoder := zap.NewProductionEncoderConfig()
	encoder.MessageKey = "message"
	encoder.TimeKey = "timestamp"
	encoder.LevelKey = "severity"
	encoder.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	encoder.EncodeLevel = cloudSeverity
	encoder.EncodeDuration = zapcore.StringDurationEncoder

	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.EncoderConfig = encoder
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// cloudSeverity maps zap levels onto Cloud Logging's LogSeverity names.
func cloudSeverity(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DebugLevel:
		enc.AppendString("DEBUG")
	case zapcore.InfoLevel:
		enc.AppendString("INFO")
	case zapcore.WarnLevel:
		enc.AppendString("WARNING")
	case zapcore.ErrorLevel:
		enc.AppendString("ERROR")
	case zapcore.DPanicLevel, zapcore.PanicLevel:
		enc.AppendString("CRITICAL")
	default:
		enc.AppendString("ALERT")
	}
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// WithRequestFields is logger.With tolerating a nil logger.
func WithRequestFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.With(fields...)
}

// EventLogger adapts zap to the func(ctx, event, fields) hook the services accept.
// The request-scoped logger is preferred so request_id and trace_id travel with the event.
// A "severity" field of "error" or "warning" selects the level and is not emitted.
func EventLogger(fallback *zap.Logger) func(context.Context, string, map[string]any) {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() {
			logger = fallback
		}

		level := zapcore.InfoLevel
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		zapFields := make([]zap.Field, 0, len(fields)+1)
		zapFields = append(zapFields, zap.String("event", event))
		for _, key := range keys {
			if key == "severity" {
				switch fields[key] {
				case "error":
					level = zapcore.ErrorLevel
				case "warning":
					level = zapcore.WarnLevel
				}
				continue
			}
			zapFields = append(zapFields, zap.Any(key, fields[key]))
		}

		if ce := logger.Check(level, event); ce != nil {
			ce.Write(zapFields...)
		}
	}
}
