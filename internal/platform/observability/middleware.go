package observability

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/artisan-market/api/internal/platform/httpx"
	"github.com/artisan-market/api/internal/platform/requestctx"
)

// InjectLoggerMiddleware makes logger the request-scoped logger for everything downstream.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// RequestLoggerMiddleware writes one "request started" and one "request completed" entry per
// request. The completion entry carries the matched route, the authenticated caller and, on
// order routes, the order id. Server errors and panics log at error level, client errors at warn.
func RequestLoggerMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := WithRequestFields(requestctx.Logger(ctx), requestFields(r, projectID)...)

			ctx = requestctx.WithPrincipalSlot(requestctx.WithLogger(ctx, logger))
			r = r.WithContext(ctx)
			recorder := newResponseRecorder(w)
			start := time.Now()
			logger.Info("request started")

			completed := false
			defer func() {
				status := recorder.Status()
				if !completed && status < http.StatusInternalServerError {
					// A panic is propagating to RecoveryMiddleware.
					status = http.StatusInternalServerError
				}
				fields := []zap.Field{
					zap.String("route", SanitizeRoute(routePattern(r))),
					zap.String("user_id", sanitizedUserID(ctx)),
					zap.Int("status", status),
					zap.Duration("latency", time.Since(start)),
					zap.Int64("bytes", recorder.BytesWritten()),
				}
				if orderID := routeParam(r, "orderId"); orderID != "" {
					fields = append(fields, zap.String("order_id", sanitizeString(orderID, 64)))
				}
				if entry := logger.Check(completionLevel(status), "request completed"); entry != nil {
					entry.Write(fields...)
				}
			}()

			next.ServeHTTP(recorder, r)
			completed = true
		})
	}
}

func requestFields(r *http.Request, projectID string) []zap.Field {
	info, _ := requestctx.Trace(r.Context())
	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("method", SanitizeMethod(r.Method)),
		zap.String("path", SanitizeRoute(r.URL.Path)),
		zap.String("trace_id", info.TraceID),
	}
	if info.ProjectID == "" {
		info.ProjectID = projectID
	}
	if info.ProjectID != "" && info.TraceID != "" {
		fields = append(fields,
			zap.String("logging.googleapis.com/trace", fmt.Sprintf("projects/%s/traces/%s", info.ProjectID, info.TraceID)),
			zap.String("logging.googleapis.com/spanId", info.SpanID),
			zap.Bool("logging.googleapis.com/trace_sampled", info.Sampled),
		)
	}
	if ip := remoteIP(r); ip != "" {
		fields = append(fields, zap.String("remote_ip", ip))
	}
	return fields
}

func completionLevel(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// RecoveryMiddleware turns a panic into a 500 error envelope and logs the stack.
func RecoveryMiddleware(fallback *zap.Logger) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = requestctx.NoopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				ctx := r.Context()
				logger := requestctx.Logger(ctx)
				if logger == requestctx.NoopLogger() {
					logger = fallback
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func sanitizedUserID(ctx context.Context) string {
	principal := requestctx.Principal(ctx)
	if strings.Contains(principal, "@") {
		return SanitizeEmail(principal)
	}
	return SanitizeUserID(principal)
}

func routeParam(r *http.Request, key string) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.URLParam(key)
	}
	return ""
}

// routePattern prefers the chi pattern so ids do not explode log and span cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func remoteIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return sanitizeString(addr, 64)
}

// responseRecorder captures the status and size written by downstream handlers.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w}
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) BytesWritten() int64 {
	return r.bytes
}
