// Package prometheus exposes experiment service metrics for scraping.
package prometheus

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emiliopalmerini/mexp/internal/ports"
)

// Exporter records operations into a private registry served by Handler.
type Exporter struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	timePoints *prometheus.CounterVec
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewExporter creates an exporter with its own registry, including the
// standard Go and process collectors.
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()

	e := &Exporter{
		registry: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mexp_operations_total",
			Help: "Experiment service operations by outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mexp_operation_duration_seconds",
			Help:    "Experiment service operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		timePoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mexp_time_points_written_total",
			Help: "Time points written by successful operations.",
		}, []string{"operation"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mexp_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mexp_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		e.operations,
		e.duration,
		e.timePoints,
		e.requests,
		e.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

// RecordOperation records one service call.
func (e *Exporter) RecordOperation(_ context.Context, m ports.OperationMetrics) {
	e.operations.WithLabelValues(m.Operation, m.Outcome).Inc()
	e.duration.WithLabelValues(m.Operation).Observe(m.Duration.Seconds())

	if m.Outcome == ports.OutcomeOK && m.TimePoints > 0 {
		switch m.Operation {
		case "add", "update", "replace", "append_time_points":
			e.timePoints.WithLabelValues(m.Operation).Add(float64(m.TimePoints))
		}
	}
}

// ObserveRequest records one HTTP request. route is the matched mux
// pattern, or "unmatched".
func (e *Exporter) ObserveRequest(method, route string, status int, d time.Duration) {
	e.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	e.latency.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// Registry returns the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

func (e *Exporter) Close(context.Context) error {
	return nil
}
