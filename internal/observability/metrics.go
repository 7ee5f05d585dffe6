// Package observability holds the Prometheus metrics of processing runs and the
// optional HTTP endpoint that exposes them.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marisma"

// Metrics groups the counters and histograms updated while processing scenes.
type Metrics struct {
	ScenesProcessed  *prometheus.CounterVec   // labels: status={ok,error}
	SceneDuration    *prometheus.HistogramVec // labels: stage={load,normalize,flood,write,total}
	BandsNormalized  *prometheus.CounterVec   // labels: band, outcome={normalized,not_normalized}
	AcceptedAttempt  *prometheus.HistogramVec // labels: band
	FloodedHectares  prometheus.Histogram
	PipelineRunning  prometheus.Gauge
	ScenesInProgress prometheus.Gauge
}

// NewMetrics registers the metrics with reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ScenesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenes_processed_total",
			Help:      "Scenes processed by final status.",
		}, []string{"status"}),
		SceneDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scene_stage_duration_seconds",
			Help:      "Duration of each processing stage of a scene.",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		}, []string{"stage"}),
		BandsNormalized: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bands_total",
			Help:      "Bands by normalization outcome.",
		}, []string{"band", "outcome"}),
		AcceptedAttempt: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "accepted_attempt",
			Help:      "1-based escalation step at which a band was accepted.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6},
		}, []string{"band"}),
		FloodedHectares: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flooded_hectares",
			Help:      "Flooded area per scene in hectares.",
			Buckets:   []float64{0, 100, 500, 1000, 5000, 10000, 20000, 30000, 50000},
		}),
		PipelineRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a batch run is active.",
		}),
		ScenesInProgress: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scenes_in_progress",
			Help:      "Scenes currently being processed.",
		}),
	}
}

// NewMetricsForTesting registers on a fresh registry so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
