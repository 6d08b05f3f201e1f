package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/services"
)

const namespace = "fulfilment"

// Registry owns the Prometheus collectors for the order workflows.
type Registry struct {
	reg *prometheus.Registry

	reservations      *prometheus.CounterVec
	intakes           *prometheus.CounterVec
	processed         *prometheus.CounterVec
	processingLatency prometheus.Histogram
	notifications     *prometheus.CounterVec
	archives          *prometheus.CounterVec
	consistencyErrors *prometheus.CounterVec
}

var _ services.FulfilmentMetrics = (*Registry)(nil)

// NewRegistry registers the workflow collectors together with the Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Stock reservation attempts by outcome.",
		}, []string{"outcome"}),
		intakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_intakes_total",
			Help:      "Checkout requests by outcome.",
		}, []string{"outcome"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_processed_total",
			Help:      "Order processing attempts by outcome.",
		}, []string{"outcome"}),
		processingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_processing_seconds",
			Help:      "Wall time of order processing including notification and archival.",
			Buckets:   prometheus.DefBuckets,
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification dispatches by kind and outcome.",
		}, []string{"kind", "outcome"}),
		archives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_appends_total",
			Help:      "Archive appends by outcome.",
		}, []string{"outcome"}),
		consistencyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consistency_errors_total",
			Help:      "Operations that left stores disagreeing and need operator attention.",
		}, []string{"stage"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.reservations,
		r.intakes,
		r.processed,
		r.processingLatency,
		r.notifications,
		r.archives,
		r.consistencyErrors,
	)
	return r
}

// Handler serves the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Registry) ObserveReservation(outcome string) {
	r.reservations.WithLabelValues(outcome).Inc()
}

func (r *Registry) ObserveIntake(outcome string) {
	r.intakes.WithLabelValues(outcome).Inc()
}

func (r *Registry) ObserveProcessing(outcome string, elapsed time.Duration) {
	r.processed.WithLabelValues(outcome).Inc()
	r.processingLatency.Observe(elapsed.Seconds())
}

func (r *Registry) ObserveNotification(kind domain.NotificationKind, outcome string) {
	r.notifications.WithLabelValues(string(kind), outcome).Inc()
}

func (r *Registry) ObserveArchive(outcome string) {
	r.archives.WithLabelValues(outcome).Inc()
}

func (r *Registry) ObserveConsistencyError(stage string) {
	r.consistencyErrors.WithLabelValues(stage).Inc()
}
