// Package metrics exposes Prometheus collectors for the inference pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "affect"

// Metrics holds the pipeline collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	inferences *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	fallbacks  *prometheus.CounterVec
	emotions   *prometheus.CounterVec
	sessions   prometheus.Gauge
	throttled  prometheus.Counter
}

// New creates collectors registered on a fresh registry, together with Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,

		// inferences counts detect calls by terminal outcome.
		inferences: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inferences_total",
				Help:      "Total number of inference calls by outcome",
			},
			[]string{"outcome"}, // stabilized, no_face, decode_error, closed, abandoned
		),

		// duration is a histogram of end-to-end inference latency.
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "inference_duration_seconds",
				Help:      "Histogram of inference duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"outcome"},
		),

		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifier_fallbacks_total",
				Help:      "Total number of classifier strategy failures that triggered a fallback",
			},
			[]string{"strategy"},
		),

		emotions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stabilized_emotions_total",
				Help:      "Total number of stabilized readings by emotion",
			},
			[]string{"emotion"},
		),

		sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of sessions held in the registry",
			},
		),

		throttled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_frames_throttled_total",
				Help:      "Total number of streamed frames dropped by the rate limiter",
			},
		),
	}

	reg.MustRegister(m.inferences, m.duration, m.fallbacks, m.emotions, m.sessions, m.throttled)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveInference records one finished inference call.
func (m *Metrics) ObserveInference(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.inferences.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveEmotion records a stabilized label.
func (m *Metrics) ObserveEmotion(label string) {
	if m == nil {
		return
	}
	m.emotions.WithLabelValues(label).Inc()
}

// Fallback records a classifier strategy failure.
func (m *Metrics) Fallback(strategy string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(strategy).Inc()
}

// SetSessions records the registry size.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

// Throttled records a dropped streamed frame.
func (m *Metrics) Throttled() {
	if m == nil {
		return
	}
	m.throttled.Inc()
}
