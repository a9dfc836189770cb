package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the call gateway.
type Metrics struct {
	registry *prometheus.Registry

	CallsActive  prometheus.Gauge
	CallsTotal   *prometheus.CounterVec
	CallDuration prometheus.Histogram

	AudioFramesTotal *prometheus.CounterVec
	BargeInsTotal    prometheus.Counter

	ExtractionsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with all metrics registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "orderline"
	}

	registry := prometheus.NewRegistry()

	callsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Number of active calls",
		},
	)

	callsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of calls",
		},
		[]string{"status"},
	)

	callDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Call duration in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	audioFramesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_total",
			Help:      "Total audio frames relayed",
		},
		[]string{"direction"},
	)

	bargeInsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_ins_total",
			Help:      "Total caller interruptions that truncated a response",
		},
	)

	extractionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_extractions_total",
			Help:      "Total post-call order extraction attempts",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(
		callsActive,
		callsTotal,
		callDuration,
		audioFramesTotal,
		bargeInsTotal,
		extractionsTotal,
	)

	return &Metrics{
		registry:         registry,
		CallsActive:      callsActive,
		CallsTotal:       callsTotal,
		CallDuration:     callDuration,
		AudioFramesTotal: audioFramesTotal,
		BargeInsTotal:    bargeInsTotal,
		ExtractionsTotal: extractionsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCallStart records a new call starting.
func (m *Metrics) RecordCallStart() {
	if m == nil {
		return
	}
	m.CallsActive.Inc()
}

// RecordCallEnd records a call ending.
func (m *Metrics) RecordCallEnd(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CallsActive.Dec()
	m.CallsTotal.WithLabelValues(status).Inc()
	m.CallDuration.Observe(duration.Seconds())
}

// RecordAudioFrame records one relayed audio frame.
func (m *Metrics) RecordAudioFrame(direction string) {
	if m == nil {
		return
	}
	m.AudioFramesTotal.WithLabelValues(direction).Inc()
}

// RecordBargeIns records caller interruptions that truncated playback.
func (m *Metrics) RecordBargeIns(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BargeInsTotal.Add(float64(n))
}

// RecordExtraction records an order extraction attempt by outcome.
func (m *Metrics) RecordExtraction(outcome string) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(outcome).Inc()
}
