// Package metrics exposes Prometheus collectors for the data pipeline and
// the simulation loop. All methods are safe on a nil receiver so components
// can run without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every simtrader collector.
type Metrics struct {
	CacheHits     *prometheus.CounterVec   // labels: provider
	CacheMisses   *prometheus.CounterVec   // labels: provider
	FetchFailures *prometheus.CounterVec   // labels: provider, stage=fetch|validate|extract
	FetchDuration *prometheus.HistogramVec // labels: provider

	BarsProcessed prometheus.Counter
	OrdersFilled  prometheus.Counter
	RunsCompleted prometheus.Counter
	NAV           prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simtrader_document_cache_hits_total",
			Help: "Provider documents served from the durable cache",
		}, []string{"provider"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simtrader_document_cache_misses_total",
			Help: "Provider documents not found in the durable cache",
		}, []string{"provider"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simtrader_fetch_failures_total",
			Help: "Provider loads that failed, by pipeline stage",
		}, []string{"provider", "stage"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "simtrader_fetch_duration_seconds",
			Help:    "Latency of provider fetches",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"provider"}),
		BarsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simtrader_bars_processed_total",
			Help: "Simulated dates stepped through",
		}),
		OrdersFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simtrader_orders_filled_total",
			Help: "Simulated orders filled",
		}),
		RunsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simtrader_runs_completed_total",
			Help: "Simulation runs that reached the done state",
		}),
		NAV: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simtrader_nav",
			Help: "Net asset value of the most recent simulated bar",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.CacheHits, m.CacheMisses, m.FetchFailures, m.FetchDuration,
			m.BarsProcessed, m.OrdersFilled, m.RunsCompleted, m.NAV,
		)
	}
	return m
}

func (m *Metrics) CacheHit(provider string) {
	if m != nil {
		m.CacheHits.WithLabelValues(provider).Inc()
	}
}

func (m *Metrics) CacheMiss(provider string) {
	if m != nil {
		m.CacheMisses.WithLabelValues(provider).Inc()
	}
}

func (m *Metrics) FetchFailed(provider, stage string) {
	if m != nil {
		m.FetchFailures.WithLabelValues(provider, stage).Inc()
	}
}

func (m *Metrics) ObserveFetch(provider string, d time.Duration) {
	if m != nil {
		m.FetchDuration.WithLabelValues(provider).Observe(d.Seconds())
	}
}

func (m *Metrics) BarProcessed(nav float64) {
	if m != nil {
		m.BarsProcessed.Inc()
		m.NAV.Set(nav)
	}
}

func (m *Metrics) OrderFilled() {
	if m != nil {
		m.OrdersFilled.Inc()
	}
}

func (m *Metrics) RunCompleted() {
	if m != nil {
		m.RunsCompleted.Inc()
	}
}

// Handler serves the collectors registered with g in the Prometheus text
// format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
