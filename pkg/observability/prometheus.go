package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics exposes reconciliation metrics for scraping
type PrometheusMetrics struct {
	registry *prometheus.Registry

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ConflictsTotal    *prometheus.CounterVec
	PreviewsTotal     *prometheus.CounterVec
	SessionsActive    prometheus.Gauge

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a collector set on its own registry
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,

		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drafts_operations_total",
				Help: "Total number of draft operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "drafts_operation_duration_seconds",
				Help:    "Draft operation duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		ConflictsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drafts_conflicts_total",
				Help: "Conflicts raised by incoming proposals",
			},
			[]string{"kind"},
		),
		PreviewsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drafts_previews_total",
				Help: "Sandbox preview runs by result",
			},
			[]string{"result"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "drafts_sessions_active",
				Help: "Number of open draft sessions",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drafts_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "drafts_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
	}
}

// RecordOperation implements ports.MetricsRecorder
func (p *PrometheusMetrics) RecordOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	p.OperationsTotal.WithLabelValues(operation, status).Inc()
	p.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordConflicts implements ports.MetricsRecorder
func (p *PrometheusMetrics) RecordConflicts(ctx context.Context, kind string, count int) {
	if count > 0 {
		p.ConflictsTotal.WithLabelValues(kind).Add(float64(count))
	}
}

// RecordPreview implements ports.MetricsRecorder
func (p *PrometheusMetrics) RecordPreview(ctx context.Context, ok, stale bool) {
	switch {
	case stale:
		p.PreviewsTotal.WithLabelValues("stale").Inc()
	case ok:
		p.PreviewsTotal.WithLabelValues("passed").Inc()
	default:
		p.PreviewsTotal.WithLabelValues("failed").Inc()
	}
}

// RecordActiveSessions sets the open session gauge
func (p *PrometheusMetrics) RecordActiveSessions(ctx context.Context, count int) {
	p.SessionsActive.Set(float64(count))
}

// ObserveRequest records one served HTTP request
func (p *PrometheusMetrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	p.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Registry returns the underlying registry
func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format
func (p *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
