// Package telemetry holds the Prometheus instrumentation for the edge.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the registry of all oddsedge metrics. A nil *Metrics is a
// valid no-op receiver so components stay testable without a registry.
type Metrics struct {
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	RequestDuration *prometheus.HistogramVec

	UpstreamFailures *prometheus.CounterVec

	TicksRun     prometheus.Counter
	TicksSkipped prometheus.Counter

	WorkerActive prometheus.Gauge
	WorkerQueued prometheus.Gauge

	HotKeys prometheus.Gauge
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsedge_cache_hits_total",
				Help: "Cache hits by dataset",
			},
			[]string{"dataset"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsedge_cache_misses_total",
				Help: "Cache misses by dataset",
			},
			[]string{"dataset"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oddsedge_request_duration_seconds",
				Help:    "Edge request duration",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"route", "status"},
		),
		UpstreamFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsedge_upstream_failures_total",
				Help: "Failed upstream calls by tier or endpoint",
			},
			[]string{"call"},
		),
		TicksRun: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "oddsedge_scheduler_ticks_total",
				Help: "Odds tier ticks that enqueued work",
			},
		),
		TicksSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "oddsedge_scheduler_ticks_skipped_total",
				Help: "Odds tier ticks dropped because the previous tick had not drained",
			},
		),
		WorkerActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oddsedge_worker_active",
				Help: "Workers currently fetching odds",
			},
		),
		WorkerQueued: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oddsedge_worker_queued",
				Help: "Jobs waiting in the odds fetch queue",
			},
		),
		HotKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oddsedge_hot_keys",
				Help: "Game ids currently in the hot set",
			},
		),
	}

	reg.MustRegister(
		m.CacheHits, m.CacheMisses,
		m.RequestDuration,
		m.UpstreamFailures,
		m.TicksRun, m.TicksSkipped,
		m.WorkerActive, m.WorkerQueued,
		m.HotKeys,
	)
	return m
}

func (m *Metrics) IncCacheHit(dataset string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(dataset).Inc()
}

func (m *Metrics) IncCacheMiss(dataset string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(dataset).Inc()
}

func (m *Metrics) ObserveRequest(route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, status).Observe(seconds)
}

func (m *Metrics) IncUpstreamFailure(call string) {
	if m == nil {
		return
	}
	m.UpstreamFailures.WithLabelValues(call).Inc()
}

func (m *Metrics) IncTickRun() {
	if m == nil {
		return
	}
	m.TicksRun.Inc()
}

func (m *Metrics) IncTickSkipped() {
	if m == nil {
		return
	}
	m.TicksSkipped.Inc()
}

func (m *Metrics) SetWorkerStats(active, queued int) {
	if m == nil {
		return
	}
	m.WorkerActive.Set(float64(active))
	m.WorkerQueued.Set(float64(queued))
}

func (m *Metrics) SetHotKeys(n int) {
	if m == nil {
		return
	}
	m.HotKeys.Set(float64(n))
}
