package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors on a private registry so
// tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	decisions      *prometheus.CounterVec
	skipped        prometheus.Counter
	steeringAngle  prometheus.Gauge
	strength       prometheus.Gauge
	stopEvents     prometheus.Counter
	stageDuration  *prometheus.HistogramVec
	detectorErrors prometheus.Counter
	sinkErrors     *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewMetrics registers the pipeline collectors plus the Go runtime and
// process collectors on a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lanepilot_decisions_total",
				Help: "Decisions emitted, by action and steering direction.",
			},
			[]string{"action", "direction"},
		),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanepilot_skipped_frames_total",
			Help: "Frames that re-used the previous decision without running detectors.",
		}),
		steeringAngle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lanepilot_steering_angle_degrees",
			Help: "Most recent steering angle.",
		}),
		strength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lanepilot_steering_strength_percent",
			Help: "Most recent steering strength.",
		}),
		stopEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanepilot_stop_events_total",
			Help: "Mandatory stops started.",
		}),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lanepilot_stage_duration_seconds",
				Help:    "Per-frame processing time by pipeline stage.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
			[]string{"stage"},
		),
		detectorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanepilot_detector_errors_total",
			Help: "Detector failures replaced by empty observations.",
		}),
		sinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lanepilot_sink_errors_total",
				Help: "Record delivery failures by sink.",
			},
			[]string{"sink"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lanepilot_http_request_duration_seconds",
				Help:    "API request latency by method and status code.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "code"},
		),
	}
	m.registry.MustRegister(
		m.decisions, m.skipped, m.steeringAngle, m.strength, m.stopEvents,
		m.stageDuration, m.detectorErrors, m.sinkErrors, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveDecision records one emitted decision.
func (m *Metrics) ObserveDecision(action, direction string, angle float64, strength int, skipped bool) {
	if skipped {
		m.skipped.Inc()
		return
	}
	m.decisions.WithLabelValues(action, direction).Inc()
	m.steeringAngle.Set(angle)
	m.strength.Set(float64(strength))
}

// ObserveStop counts a started stop wait.
func (m *Metrics) ObserveStop() { m.stopEvents.Inc() }

// ObserveStage records how long one pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// DetectorError counts a failed detection.
func (m *Metrics) DetectorError() { m.detectorErrors.Inc() }

// SinkError counts a failed record delivery.
func (m *Metrics) SinkError(sink string) { m.sinkErrors.WithLabelValues(sink).Inc() }

// InstrumentHTTP times every request served by next.
func (m *Metrics) InstrumentHTTP(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(m.httpDuration, next)
}
