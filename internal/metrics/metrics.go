// Package metrics provides Prometheus metrics for the EventLog service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventlog/api/internal/normalize"
	"eventlog/api/internal/reconcile"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	NormalizeInputsTotal   *prometheus.CounterVec
	NormalizeWarningsTotal *prometheus.CounterVec
	ReconcileDecisions     *prometheus.CounterVec

	SyncTotal    *prometheus.CounterVec
	SyncDuration *prometheus.HistogramVec
}

// New registers every metric on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventlog_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventlog_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		NormalizeInputsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventlog_normalize_inputs_total",
				Help: "Normalized inputs by detected shape",
			},
			[]string{"shape"},
		),
		NormalizeWarningsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventlog_normalize_warnings_total",
				Help: "Normalization warnings by code",
			},
			[]string{"code"},
		),
		ReconcileDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventlog_reconcile_decisions_total",
				Help: "Reconciliation decisions by kind; insert and delete pairs mark lost provenance",
			},
			[]string{"kind"},
		),
		SyncTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventlog_sync_total",
				Help: "Sync operations by direction and status",
			},
			[]string{"direction", "status"},
		),
		SyncDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventlog_sync_duration_seconds",
				Help:    "Duration of sync operations in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"direction"},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveInput(shape normalize.Shape) {
	m.NormalizeInputsTotal.WithLabelValues(string(shape)).Inc()
}

func (m *Metrics) ObserveWarning(code normalize.WarningCode) {
	m.NormalizeWarningsTotal.WithLabelValues(string(code)).Inc()
}

func (m *Metrics) ObserveDecisions(summary reconcile.Summary) {
	for kind, n := range summary.Counts() {
		if n > 0 {
			m.ReconcileDecisions.WithLabelValues(string(kind)).Add(float64(n))
		}
	}
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Metrics) RecordSync(direction string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SyncTotal.WithLabelValues(direction, status).Inc()
	m.SyncDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

var _ normalize.Recorder = (*Metrics)(nil)
