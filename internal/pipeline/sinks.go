package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/monitoring"
)

// NamedSink labels a sink for logs and metrics.
type NamedSink struct {
	Name string
	Sink Sink
}

// MultiSink delivers each record to every sink in order. A failing sink is
// logged and does not prevent delivery to the rest.
type MultiSink struct {
	sinks   []NamedSink
	metrics *monitoring.Metrics
}

// NewMultiSink returns a fan-out over sinks. Nil sinks are skipped.
func NewMultiSink(metrics *monitoring.Metrics, sinks ...NamedSink) *MultiSink {
	m := &MultiSink{metrics: metrics}
	for _, s := range sinks {
		if s.Sink != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Record implements Sink. The returned error joins every sink failure.
func (m *MultiSink) Record(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sink.Record(ctx, r); err != nil {
			opsf("sink %s failed on frame %d: %v", s.Name, r.Seq, err)
			if m.metrics != nil {
				m.metrics.SinkError(s.Name)
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// MetricsSink feeds records into the Prometheus collectors.
type MetricsSink struct {
	Metrics *monitoring.Metrics
}

// Record implements Sink.
func (s MetricsSink) Record(_ context.Context, r Record) error {
	if s.Metrics == nil {
		return nil
	}
	s.Metrics.ObserveDecision(string(r.Decision.Action), string(r.Decision.Direction),
		r.Decision.SteeringAngle, r.Decision.Strength, r.Skipped)
	if r.Skipped {
		return nil
	}
	if r.Transition == decision.StopStarted {
		s.Metrics.ObserveStop()
	}
	s.Metrics.ObserveStage("lane", r.Timings.Lane)
	s.Metrics.ObserveStage("stop_sign", r.Timings.StopSign)
	s.Metrics.ObserveStage("light", r.Timings.Light)
	s.Metrics.ObserveStage("decide", r.Timings.Decide)
	return nil
}
