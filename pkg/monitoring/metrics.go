package monitoring

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector handles Prometheus metrics collection
type MetricsCollector struct {
	serviceName string
	gatherer    prometheus.Gatherer
	tracing     *TracingManager

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	dbQueryDuration     *prometheus.HistogramVec
	auditRunsTotal      *prometheus.CounterVec
	auditRunDuration    prometheus.Histogram
	auditDivergencias   *prometheus.GaugeVec
	auditRegistros      *prometheus.GaugeVec
	statusUpdatesTotal  *prometheus.CounterVec
	ingestRecordsTotal  *prometheus.CounterVec
	systemErrors        *prometheus.CounterVec
}

// NewMetricsCollector registers the service metrics on reg. Handler serves
// everything registered there.
func NewMetricsCollector(serviceName string, reg *prometheus.Registry) *MetricsCollector {
	m := &MetricsCollector{
		serviceName: serviceName,
		gatherer:    reg,
		tracing:     NoopTracing(),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code", "service"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "service"},
		),
		dbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"query_type", "service"},
		),
		auditRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_runs_total",
				Help: "Total number of audit runs by outcome",
			},
			[]string{"status", "service"},
		),
		auditRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "audit_run_duration_seconds",
				Help:        "Duration of completed audit runs in seconds",
				Buckets:     []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 300.0},
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		auditDivergencias: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "audit_divergencias",
				Help: "Divergences found by the last successful run, by type",
			},
			[]string{"tipo", "service"},
		),
		auditRegistros: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "audit_registros",
				Help: "Records considered by the last successful run, by collection",
			},
			[]string{"collection", "service"},
		),
		statusUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "divergencia_status_updates_total",
				Help: "Total number of divergence status changes",
			},
			[]string{"status", "success", "service"},
		),
		ingestRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_records_total",
				Help: "Total number of ingested records by collection and outcome",
			},
			[]string{"collection", "outcome", "service"},
		),
		systemErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "system_errors_total",
				Help: "Total number of system errors",
			},
			[]string{"error_type", "service", "component"},
		),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.dbQueryDuration,
		m.auditRunsTotal,
		m.auditRunDuration,
		m.auditDivergencias,
		m.auditRegistros,
		m.statusUpdatesTotal,
		m.ingestRecordsTotal,
		m.systemErrors,
	)

	return m
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordDBQuery records database operation metrics
func (m *MetricsCollector) RecordDBQuery(queryType string, duration time.Duration) {
	m.dbQueryDuration.WithLabelValues(queryType, m.serviceName).Observe(duration.Seconds())
}

// SetTracing routes ObserveDB spans to tm
func (m *MetricsCollector) SetTracing(tm *TracingManager) {
	if tm != nil {
		m.tracing = tm
	}
}

// Tracing returns the manager spans are started on
func (m *MetricsCollector) Tracing() *TracingManager {
	return m.tracing
}

// ObserveDB times fn as a database operation inside its own span
func (m *MetricsCollector) ObserveDB(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := m.tracing.StartDatabaseSpan(ctx, operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	m.RecordDBQuery(operation, time.Since(start))
	if err != nil {
		m.tracing.RecordError(span, err)
		m.RecordSystemError("database_error", "database")
	}
	return err
}

// RecordAuditRun records the outcome of a run. Gauges are only replaced by
// successful runs.
func (m *MetricsCollector) RecordAuditRun(success bool, duration time.Duration, porTipo map[string]int, fichas, execucoes int) {
	status := "success"
	if !success {
		status = "failed"
	}
	m.auditRunsTotal.WithLabelValues(status, m.serviceName).Inc()

	if !success {
		return
	}

	m.auditRunDuration.Observe(duration.Seconds())
	for tipo, count := range porTipo {
		m.auditDivergencias.WithLabelValues(tipo, m.serviceName).Set(float64(count))
	}
	m.auditRegistros.WithLabelValues("fichas", m.serviceName).Set(float64(fichas))
	m.auditRegistros.WithLabelValues("execucoes", m.serviceName).Set(float64(execucoes))
}

// RecordAuditRejected counts a run refused because another was in flight
func (m *MetricsCollector) RecordAuditRejected() {
	m.auditRunsTotal.WithLabelValues("rejected", m.serviceName).Inc()
}

// RecordStatusUpdate records an operator status change
func (m *MetricsCollector) RecordStatusUpdate(status string, success bool) {
	m.statusUpdatesTotal.WithLabelValues(status, strconv.FormatBool(success), m.serviceName).Inc()
}

// RecordIngest records ingestion outcomes for one request
func (m *MetricsCollector) RecordIngest(collection string, importados, ignorados int) {
	m.ingestRecordsTotal.WithLabelValues(collection, "importado", m.serviceName).Add(float64(importados))
	m.ingestRecordsTotal.WithLabelValues(collection, "ignorado", m.serviceName).Add(float64(ignorados))
}

// RecordSystemError records system error metrics
func (m *MetricsCollector) RecordSystemError(errorType, component string) {
	m.systemErrors.WithLabelValues(errorType, m.serviceName, component).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
