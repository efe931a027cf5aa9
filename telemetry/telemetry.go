// Package telemetry exports Prometheus metrics for the daemon: tick
// timing, the latest batch's headline numbers, forensics capture outcomes,
// and a couple of scrape-time gauges.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hluisi/roguehunter/model"
)

// Metrics holds every instrument the daemon updates once per tick or once
// per forensics capture.
type Metrics struct {
	registry *prometheus.Registry

	up            prometheus.Gauge
	tickDuration  prometheus.Histogram
	batchMaxScore prometheus.Gauge
	processCount  prometheus.Gauge
	forensics     *prometheus.CounterVec
}

// New constructs a Metrics registry. trackedFn and clientsFn are polled by
// GaugeFunc collectors at scrape time, so the daemon never needs to push
// updates for them directly. trackedFn should be tracker.Tracker.Tracked
// and clientsFn should be stream.Server.ClientCount.
func New(trackedFn func() int, clientsFn func() int) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roguehunter_up",
			Help: "Always 1 while the daemon process is running.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roguehunter_tick_duration_seconds",
			Help:    "Wall time spent in one collect-enrich-track-broadcast tick.",
			Buckets: prometheus.DefBuckets,
		}),
		batchMaxScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roguehunter_batch_max_score",
			Help: "Highest process score observed in the most recent sample batch.",
		}),
		processCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roguehunter_process_count",
			Help: "Number of processes successfully read in the most recent tick.",
		}),
		forensics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roguehunter_forensics_captures_total",
			Help: "Forensics capture pipeline runs, labeled by sub-step outcome.",
		}, []string{"tailspin_status", "logs_status"}),
	}

	reg.MustRegister(
		m.up,
		m.tickDuration,
		m.batchMaxScore,
		m.processCount,
		m.forensics,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "roguehunter_tracked_events",
			Help: "Number of PIDs currently tracked as an open event.",
		}, func() float64 { return float64(trackedFn()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "roguehunter_stream_clients",
			Help: "Number of viewer clients currently connected to the streaming socket.",
		}, func() float64 { return float64(clientsFn()) }),
	)
	m.up.Set(1)

	return m
}

// ObserveTick records one tick's duration and the resulting batch's
// headline numbers.
func (m *Metrics) ObserveTick(d time.Duration, batch model.SampleBatch) {
	m.tickDuration.Observe(d.Seconds())
	m.batchMaxScore.Set(float64(batch.MaxScore))
	m.processCount.Set(float64(batch.ProcessCount))
}

// ObserveForensicsCapture increments the captures counter with the
// sub-step statuses recorded on the forensic_captures row.
func (m *Metrics) ObserveForensicsCapture(tailspinStatus, logsStatus model.CaptureStatus) {
	m.forensics.WithLabelValues(string(tailspinStatus), string(logsStatus)).Inc()
}

// Handler exposes the registry over HTTP, for an operator-facing /metrics
// endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
