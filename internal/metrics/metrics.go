// Package metrics collects pipeline counters in a private Prometheus
// registry. A run can dump them in the node_exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	registry *prometheus.Registry

	FramesRendered prometheus.Counter
	FrameDuration  prometheus.Histogram
	StageDuration  *prometheus.HistogramVec
	RunsTotal      *prometheus.CounterVec
	OutputSeconds  prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		FramesRendered: f.NewCounter(prometheus.CounterOpts{
			Name: "vconcat_frames_rendered_total",
			Help: "Total number of frames written by the render pool",
		}),
		FrameDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vconcat_frame_duration_seconds",
			Help:    "Time to compose and write one frame",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vconcat_stage_duration_seconds",
			Help:    "Wall time of each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vconcat_runs_total",
			Help: "Pipeline runs by outcome",
		}, []string{"status"}),
		OutputSeconds: f.NewGauge(prometheus.GaugeOpts{
			Name: "vconcat_output_duration_seconds",
			Help: "Duration of the last planned output",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// FrameRendered satisfies renderer.Observer.
func (m *Metrics) FrameRendered(elapsed time.Duration) {
	m.FramesRendered.Inc()
	m.FrameDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Metrics) RunFinished(err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}

// WriteTextfile atomically writes all metrics to path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
