// Package metrics exposes Prometheus instrumentation and dependency health
// for the dashboard server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dashboard"

// Metrics holds every collector, registered on its own registry so tests can
// build independent instances.
type Metrics struct {
	Registry *prometheus.Registry

	// Indicator computation
	IndicatorComputeDur *prometheus.HistogramVec // labels: family
	DashboardsTotal     *prometheus.CounterVec   // labels: source=cache|computed
	SignalsTotal        *prometheus.CounterVec   // labels: direction

	// Cache
	CacheErrors              prometheus.Counter
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Ingestion
	BarsIngested   prometheus.Counter
	IngestFailures prometheus.Counter
	IngestDur      prometheus.Histogram

	// Backtests
	BacktestsTotal prometheus.Counter
	BacktestDur    prometheus.Histogram

	// Transport
	WSClients      prometheus.Gauge
	HTTPRequests   *prometheus.CounterVec   // labels: method, route, code
	HTTPRequestDur *prometheus.HistogramVec // labels: route
}

// NewMetrics registers and returns all collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,

		IndicatorComputeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "indicator_compute_duration_seconds",
			Help:      "Indicator family compute latency per dashboard",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"family"}),
		DashboardsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboards_total",
			Help:      "Dashboards served, by source",
		}, []string{"source"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Crossover alerts raised on the latest bar",
		}, []string{"direction"}),

		CacheErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Redis cache calls that failed or were rejected by the breaker",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "redis_circuit_breaker_state",
			Help:      "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_circuit_breaker_trips_total",
			Help:      "Times the Redis circuit breaker tripped open",
		}),

		BarsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bars_ingested_total",
			Help:      "Daily bars written to the store",
		}),
		IngestFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_failures_total",
			Help:      "Symbol refreshes that failed",
		}),
		IngestDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Fetch-validate-write latency per symbol",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		BacktestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backtests_total",
			Help:      "Backtests run",
		}),
		BacktestDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backtest_duration_seconds",
			Help:      "Backtest simulation latency",
			Buckets:   prometheus.DefBuckets,
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected websocket clients",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "code"}),
		HTTPRequestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP handler latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.IndicatorComputeDur,
		m.DashboardsTotal,
		m.SignalsTotal,
		m.CacheErrors,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.BarsIngested,
		m.IngestFailures,
		m.IngestDur,
		m.BacktestsTotal,
		m.BacktestDur,
		m.WSClients,
		m.HTTPRequests,
		m.HTTPRequestDur,
	)
	return m
}

// ObserveIndicator records one family's compute time.
func (m *Metrics) ObserveIndicator(family string, d time.Duration) {
	m.IndicatorComputeDur.WithLabelValues(family).Observe(d.Seconds())
}

// SetBreakerState mirrors the cache breaker; state follows its numbering.
func (m *Metrics) SetBreakerState(state int) {
	m.RedisCircuitBreakerState.Set(float64(state))
	if state == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
