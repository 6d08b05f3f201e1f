// Package requestctx carries per-request values between the HTTP middleware chain and the
// handlers and services it calls.
package requestctx

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type (
	loggerKey    struct{}
	traceKey     struct{}
	principalKey struct{}
)

var noopLogger = zap.NewNop()

// TraceInfo identifies the server span of the current request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the request logger, or a no-op logger outside a request.
func Logger(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
			return logger
		}
	}
	return noopLogger
}

// NoopLogger is the logger Logger falls back to, so callers can detect the fallback.
func NoopLogger() *zap.Logger { return noopLogger }

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(ctx, traceKey{}, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	return info, ok
}

func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// principal is written by the authenticator deep in the chain and read by the request logger
// once the handler returns, so it is shared by pointer.
type principal struct {
	mu sync.Mutex
	id string
}

// WithPrincipalSlot gives downstream middleware somewhere to record the authenticated caller.
func WithPrincipalSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, principalKey{}, &principal{})
}

// SetPrincipal is a no-op without a slot.
func SetPrincipal(ctx context.Context, id string) {
	if slot, ok := ctx.Value(principalKey{}).(*principal); ok {
		slot.mu.Lock()
		slot.id = id
		slot.mu.Unlock()
	}
}

func Principal(ctx context.Context) string {
	slot, ok := ctx.Value(principalKey{}).(*principal)
	if !ok {
		return ""
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.id
}
