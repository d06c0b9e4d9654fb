// Package observability holds the ingestion metrics and tracer.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "catalog_ingest"

// Outcome labels a finished run.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Run is what one ingestion contributes to the metrics.
type Run struct {
	Supplier     string
	Mode         string
	Outcome      string
	Pages        int
	PagesFailed  int
	RowsParsed   int
	RowsUpserted int
	RowsDeleted  int64
	Duration     time.Duration
}

// Metrics owns a private registry so a one-shot job can push exactly its own series.
type Metrics struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	pages        *prometheus.CounterVec
	pageErrors   *prometheus.CounterVec
	rowsParsed   *prometheus.CounterVec
	rowsUpserted *prometheus.CounterVec
	rowsDeleted  *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	lastSuccess  *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Ingestion runs by supplier and outcome",
		}, []string{"supplier", "outcome"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Pages processed",
		}, []string{"supplier"}),
		pageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_errors_total",
			Help:      "Pages skipped because of an extraction error",
		}, []string{"supplier"}),
		rowsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_parsed_total",
			Help:      "Rows extracted by mode",
		}, []string{"supplier", "mode"}),
		rowsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_upserted_total",
			Help:      "Rows written to the catalog",
		}, []string{"supplier"}),
		rowsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_deleted_total",
			Help:      "Rows removed by replace runs",
		}, []string{"supplier"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of an ingestion run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"supplier"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}, []string{"supplier"}),
	}

	m.registry.MustRegister(m.runs, m.pages, m.pageErrors, m.rowsParsed, m.rowsUpserted, m.rowsDeleted, m.duration, m.lastSuccess)
	return m
}

// ObserveRun records a finished run. A nil receiver is a no-op.
func (m *Metrics) ObserveRun(r Run) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(r.Supplier, r.Outcome).Inc()
	m.pages.WithLabelValues(r.Supplier).Add(float64(r.Pages))
	m.pageErrors.WithLabelValues(r.Supplier).Add(float64(r.PagesFailed))
	if r.Mode != "" {
		m.rowsParsed.WithLabelValues(r.Supplier, r.Mode).Add(float64(r.RowsParsed))
	}
	m.rowsUpserted.WithLabelValues(r.Supplier).Add(float64(r.RowsUpserted))
	m.rowsDeleted.WithLabelValues(r.Supplier).Add(float64(r.RowsDeleted))
	m.duration.WithLabelValues(r.Supplier).Observe(r.Duration.Seconds())
	if r.Outcome == OutcomeSuccess {
		m.lastSuccess.WithLabelValues(r.Supplier).SetToCurrentTime()
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push sends every series to a Pushgateway under job. An empty url is a no-op.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
