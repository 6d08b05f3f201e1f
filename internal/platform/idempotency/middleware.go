package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/artisan-market/api/internal/platform/auth"
	"github.com/artisan-market/api/internal/platform/httpx"
	"github.com/artisan-market/api/internal/platform/requestctx"
)

const (
	// HeaderName carries the client-chosen submission key.
	HeaderName = "Idempotency-Key"
	// ReplayHeader marks responses served from the store.
	ReplayHeader = "Idempotent-Replayed"

	maxKeyLength = 255
	maxBodyBytes = 1 << 20
)

type middlewareConfig struct {
	ttl   time.Duration
	clock func() time.Time
}

// Option customises Middleware.
type Option func(*middlewareConfig)

// WithTTL sets how long completed responses are replayed.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware deduplicates POST submissions carrying an Idempotency-Key header. Keys are scoped to
// the authenticated customer, so it must run after authentication. Requests without the header
// pass through untouched. Once the handler returns its response is replayed for the key's TTL,
// whatever the status.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	cfg := middlewareConfig{ttl: DefaultTTL, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderName))
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(key) > maxKeyLength {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_idempotency_key", "idempotency key is too long", http.StatusBadRequest))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			scoped := requester(r) + "|" + key
			fingerprint := sha256Hex([]byte(r.Method + "|" + r.URL.Path + "|" + sha256Hex(body)))
			logger := requestctx.Logger(ctx).With(zap.String("idempotencyKey", key))

			state, entry, err := store.Claim(ctx, scoped, fingerprint, cfg.clock(), cfg.ttl)
			switch {
			case errors.Is(err, ErrFingerprintMismatch):
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_reused", "idempotency key was already used for a different request", http.StatusUnprocessableEntity))
				return
			case err != nil:
				logger.Error("idempotency claim failed", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to process idempotency key", http.StatusServiceUnavailable))
				return
			}

			switch state {
			case StateCompleted:
				replay(w, entry)
				return
			case StateInFlight:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this idempotency key is still being processed", http.StatusConflict))
				return
			}

			rec := &bufferedResponse{header: make(http.Header)}
			completed := false
			defer func() {
				if completed {
					return
				}
				// A panicking handler leaves no response to replay.
				if err := store.Forget(context.WithoutCancel(ctx), scoped); err != nil {
					logger.Warn("idempotency release failed", zap.Error(err))
				}
			}()
			next.ServeHTTP(rec, r)
			completed = true

			// Server errors are stored too; a 500 notification_failed has already committed orders.
			entry.Status = rec.statusCode()
			entry.Headers = replayableHeaders(rec.header)
			entry.Body = rec.body.Bytes()
			if err := store.Complete(ctx, scoped, entry); err != nil {
				logger.Warn("idempotency response not stored", zap.Error(err))
			}
			rec.flush(w)
		})
	}
}

func requester(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil {
		if identity.Email != "" {
			return strings.ToLower(identity.Email)
		}
		if identity.UID != "" {
			return identity.UID
		}
	}
	return "anonymous"
}

func replay(w http.ResponseWriter, entry Entry) {
	for name, values := range entry.Headers {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.Header().Set(ReplayHeader, "true")
	status := entry.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(entry.Body)
}

type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) statusCode() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *bufferedResponse) flush(w http.ResponseWriter) {
	for name, values := range b.header {
		w.Header()[name] = values
	}
	w.WriteHeader(b.statusCode())
	_, _ = w.Write(b.body.Bytes())
}
