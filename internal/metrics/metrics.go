// Package metrics exposes Prometheus instruments for the service on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/handoff/internal/application"
)

const namespace = "handoff"

var _ application.Metrics = (*Registry)(nil)

// Registry owns the collectors. Its zero value is not usable; call New.
type Registry struct {
	reg *prometheus.Registry

	transitions  *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	outboxDepth  *prometheus.GaugeVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates a Registry with the Go runtime and process collectors attached.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Listing and credential operations by outcome.",
		}, []string{"operation", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_deliveries_total",
			Help:      "Notification delivery attempts by template and outcome.",
		}, []string{"template", "outcome"}),
		outboxDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_messages",
			Help:      "Outbox messages by status.",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.transitions,
		r.deliveries,
		r.outboxDepth,
		r.httpRequests,
		r.httpDuration,
	)
	return r
}

// ObserveTransition counts one service operation. An empty kind counts as "ok".
func (r *Registry) ObserveTransition(operation string, kind application.Kind) {
	outcome := string(kind)
	if outcome == "" {
		outcome = "ok"
	}
	r.transitions.WithLabelValues(operation, outcome).Inc()
}

// ObserveDelivery counts one delivery attempt.
func (r *Registry) ObserveDelivery(template, outcome string) {
	r.deliveries.WithLabelValues(template, outcome).Inc()
}

// SetOutboxDepth records the number of messages in status.
func (r *Registry) SetOutboxDepth(status string, n int) {
	r.outboxDepth.WithLabelValues(status).Set(float64(n))
}

// ObserveHTTP records one served request. route is the matched mux pattern, never
// the raw path, to keep label cardinality bounded.
func (r *Registry) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
