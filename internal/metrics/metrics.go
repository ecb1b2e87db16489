// Package metrics exposes pipeline counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "himawari"

// Recorder holds every collector the pipeline updates. A nil *Recorder is a no-op.
type Recorder struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	tiles         *prometheus.CounterVec
	sweepFailures prometheus.Counter
	expiredDays   prometheus.Counter
	lastSnapshot  prometheus.Gauge
	rateLimits    *prometheus.CounterVec
}

// New builds a Recorder on its own registry, including Go and process collectors
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Recorder{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline iterations by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Wall time of one pipeline iteration.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		tiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_fetches_total",
			Help:      "Tile fetch attempts by outcome.",
		}, []string{"outcome"}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scratch_sweep_failures_total",
			Help:      "Scratch tiles that existed but could not be removed.",
		}),
		expiredDays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_days_expired_total",
			Help:      "Archive day directories removed by retention.",
		}),
		lastSnapshot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_snapshot_timestamp_seconds",
			Help:      "Unix time of the most recently composed snapshot.",
		}),
		rateLimits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_events_total",
			Help:      "Provider rate limit transitions by event.",
		}, []string{"event"}),
	}

	reg.MustRegister(r.runs, r.runDuration, r.tiles, r.sweepFailures, r.expiredDays, r.lastSnapshot, r.rateLimits)
	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RateLimitChanged records a provider entering or leaving the throttled state
func (r *Recorder) RateLimitChanged(limited bool) {
	if r == nil {
		return
	}
	event := "cleared"
	if limited {
		event = "limited"
	}
	r.rateLimits.WithLabelValues(event).Inc()
}

// RunFinished records one pipeline iteration
func (r *Recorder) RunFinished(success bool, seconds float64) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(outcome(success)).Inc()
	r.runDuration.Observe(seconds)
}

// TileFetched records one tile fetch attempt
func (r *Recorder) TileFetched(success bool) {
	if r == nil {
		return
	}
	r.tiles.WithLabelValues(outcome(success)).Inc()
}

// SweepFailed records scratch files that could not be removed
func (r *Recorder) SweepFailed(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.sweepFailures.Add(float64(n))
}

// DaysExpired records removed archive day directories
func (r *Recorder) DaysExpired(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.expiredDays.Add(float64(n))
}

// SnapshotComposed records the capture time of a composed snapshot
func (r *Recorder) SnapshotComposed(unix int64) {
	if r == nil {
		return
	}
	r.lastSnapshot.Set(float64(unix))
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
