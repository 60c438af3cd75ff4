/*
metrics.go - Prometheus collectors for the back office

PURPOSE:
  One registry per process holding HTTP, sales, stock, aggregation and
  report metrics. Served at /metrics by Handler.

NIL SAFETY:
  Every Record* method accepts a nil receiver, so packages can hold a
  *Metrics field without checking whether metrics are enabled.

SEE ALSO:
  - api/server.go: request middleware, /metrics route
  - report/report.go: report outcomes
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = "backoffice"

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SalesTotal       *prometheus.CounterVec
	UnitsSold        prometheus.Counter
	StockAdjustments *prometheus.CounterVec

	AggregationsTotal   *prometheus.CounterVec
	AggregationDuration prometheus.Histogram

	ReportsTotal   *prometheus.CounterVec
	ReportDuration prometheus.Histogram
}

// New creates a Metrics with its own registry, including Go and process collectors.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	m.SalesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_total",
			Help:      "Checkout attempts by outcome",
		},
		[]string{"outcome"},
	)
	m.UnitsSold = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_sold_total",
			Help:      "Units debited by successful sales",
		},
	)
	m.StockAdjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_adjustments_total",
			Help:      "Manual stock adjustments by direction and outcome",
		},
		[]string{"direction", "outcome"},
	)

	m.AggregationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregations_total",
			Help:      "Monthly sales aggregations by outcome",
		},
		[]string{"outcome"},
	)
	m.AggregationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Monthly sales aggregation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	m.ReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Narrative report requests by outcome",
		},
		[]string{"outcome"},
	)
	m.ReportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_duration_seconds",
			Help:      "Narrative report generation duration in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SalesTotal,
		m.UnitsSold,
		m.StockAdjustments,
		m.AggregationsTotal,
		m.AggregationDuration,
		m.ReportsTotal,
		m.ReportDuration,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Outcome labels a result by its error: "ok" or the error kind.
type Outcome string

const OutcomeOK Outcome = "ok"

func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) RecordSale(outcome Outcome, units int64) {
	if m == nil {
		return
	}
	m.SalesTotal.WithLabelValues(string(outcome)).Inc()
	if outcome == OutcomeOK && units > 0 {
		m.UnitsSold.Add(float64(units))
	}
}

func (m *Metrics) RecordStockAdjustment(delta int64, outcome Outcome) {
	if m == nil {
		return
	}
	direction := "in"
	if delta < 0 {
		direction = "out"
	}
	m.StockAdjustments.WithLabelValues(direction, string(outcome)).Inc()
}

func (m *Metrics) RecordAggregation(outcome Outcome, duration time.Duration) {
	if m == nil {
		return
	}
	m.AggregationsTotal.WithLabelValues(string(outcome)).Inc()
	m.AggregationDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordReport(outcome Outcome, duration time.Duration) {
	if m == nil {
		return
	}
	m.ReportsTotal.WithLabelValues(string(outcome)).Inc()
	m.ReportDuration.Observe(duration.Seconds())
}
