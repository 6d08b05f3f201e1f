package observability

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/artisan-market/api/internal/platform/requestctx"
)

// cloudTraceHeader carries "TRACE_ID/SPAN_ID;o=FLAG" where SPAN_ID is an unsigned decimal.
const cloudTraceHeader = "X-Cloud-Trace-Context"

var tracer = otel.Tracer("github.com/artisan-market/api/internal/platform/observability")

// cloudTrace is the parsed form of the Cloud Trace header.
type cloudTrace struct {
	TraceID trace.TraceID
	SpanID  trace.SpanID
	Sampled bool
}

// TraceMiddleware opens a server span per request and records its identifiers on the context
// for the request logger and error envelopes. A Cloud Trace header takes precedence over W3C
// traceparent when both are sent. The span is renamed to the matched chi route on completion.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if parent, ok := parseCloudTrace(r.Header.Get(cloudTraceHeader)); ok {
				ctx = trace.ContextWithRemoteSpanContext(ctx, parent.spanContext())
			} else {
				ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))
			}

			ctx, span := tracer.Start(ctx, SanitizeMethod(r.Method)+" "+SanitizeRoute(r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestAttributes(r)...),
			)
			defer span.End()

			info := requestctx.TraceInfo{ProjectID: projectID}
			if sc := span.SpanContext(); sc.IsValid() {
				info.TraceID = sc.TraceID().String()
				info.SpanID = sc.SpanID().String()
				info.Sampled = sc.IsSampled()
				w.Header().Set(cloudTraceHeader, cloudTrace{
					TraceID: sc.TraceID(),
					SpanID:  sc.SpanID(),
					Sampled: sc.IsSampled(),
				}.String())
			}

			r = r.WithContext(requestctx.WithTrace(ctx, info))
			recorder := newResponseRecorder(w)
			next.ServeHTTP(recorder, r)

			status := recorder.Status()
			span.SetAttributes(semconv.HTTPResponseStatusCode(status))
			if route := routePattern(r); route != "" {
				route = SanitizeRoute(route)
				span.SetName(SanitizeMethod(r.Method) + " " + route)
				span.SetAttributes(semconv.HTTPRoute(route))
			}
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
		})
	}
}

func parseCloudTrace(header string) (cloudTrace, bool) {
	ids, options, _ := strings.Cut(strings.TrimSpace(header), ";")
	traceHex, spanText, ok := strings.Cut(ids, "/")
	if !ok {
		return cloudTrace{}, false
	}
	traceID, err := trace.TraceIDFromHex(strings.ToLower(strings.TrimSpace(traceHex)))
	if err != nil {
		return cloudTrace{}, false
	}
	spanID, ok := parseCloudSpanID(strings.TrimSpace(spanText))
	if !ok {
		return cloudTrace{}, false
	}

	parsed := cloudTrace{TraceID: traceID, SpanID: spanID}
	for _, option := range strings.Split(options, ";") {
		if strings.TrimSpace(option) == "o=1" {
			parsed.Sampled = true
		}
	}
	return parsed, true
}

// parseCloudSpanID accepts the documented decimal form and, for proxies that forward the
// W3C representation, a 16 digit hex span id.
func parseCloudSpanID(value string) (trace.SpanID, bool) {
	var id trace.SpanID
	if n, err := strconv.ParseUint(value, 10, 64); err == nil {
		binary.BigEndian.PutUint64(id[:], n)
	} else if parsed, err := trace.SpanIDFromHex(strings.ToLower(value)); err == nil {
		id = parsed
	}
	return id, id.IsValid()
}

func (c cloudTrace) spanContext() trace.SpanContext {
	var flags trace.TraceFlags
	if c.Sampled {
		flags = trace.FlagsSampled
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    c.TraceID,
		SpanID:     c.SpanID,
		TraceFlags: flags,
		Remote:     true,
	})
}

func (c cloudTrace) String() string {
	sampled := 0
	if c.Sampled {
		sampled = 1
	}
	return fmt.Sprintf("%s/%d;o=%d", c.TraceID, binary.BigEndian.Uint64(c.SpanID[:]), sampled)
}

func requestAttributes(r *http.Request) []attribute.KeyValue {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	attrs := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(SanitizeMethod(r.Method)),
		semconv.URLScheme(scheme),
		semconv.URLPath(SanitizeRoute(r.URL.Path)),
	}
	if r.Host != "" {
		attrs = append(attrs, semconv.ServerAddress(sanitizeString(r.Host, 128)))
	}
	if ua := r.UserAgent(); ua != "" {
		attrs = append(attrs, semconv.UserAgentOriginal(sanitizeString(ua, defaultStringLimit)))
	}
	if r.Header.Get("Idempotency-Key") != "" {
		attrs = append(attrs, attribute.Bool("artisan.idempotent", true))
	}
	return attrs
}
