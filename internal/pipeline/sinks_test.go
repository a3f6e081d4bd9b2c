package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/steering"
)

func TestMultiSink_DeliversDespiteFailures(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	first, last := &collectSink{}, &collectSink{}
	boom := errors.New("disk full")
	m := NewMultiSink(monitoring.NewMetrics(),
		NamedSink{Name: "first", Sink: first},
		NamedSink{Name: "journal", Sink: SinkFunc(func(context.Context, Record) error { return boom })},
		NamedSink{Name: "nil", Sink: nil},
		NamedSink{Name: "last", Sink: last},
	)

	err := m.Record(context.Background(), Record{Seq: 7})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "journal")
	assert.Len(t, first.all(), 1)
	assert.Len(t, last.all(), 1)
	assert.Contains(t, ops.String(), "sink journal failed on frame 7")
}

func TestMultiSink_NoSinks(t *testing.T) {
	t.Parallel()
	assert.NoError(t, NewMultiSink(nil).Record(context.Background(), Record{}))
}

func TestMetricsSink(t *testing.T) {
	t.Parallel()

	metrics := monitoring.NewMetrics()
	s := MetricsSink{Metrics: metrics}
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Record{
		Decision:   decision.Decision{Action: decision.Stop, Direction: steering.Straight},
		Transition: decision.StopStarted,
	}))
	require.NoError(t, s.Record(ctx, Record{Skipped: true}))
	require.NoError(t, MetricsSink{}.Record(ctx, Record{}))

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			if c := m.GetCounter(); c != nil {
				got[f.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, got["lanepilot_stop_events_total"])
	assert.Equal(t, 1.0, got["lanepilot_skipped_frames_total"])
	assert.Equal(t, 1.0, got["lanepilot_decisions_total"])
}

func TestSetLogWriters_TraceStream(t *testing.T) {
	var trace bytes.Buffer
	SetLogWriters(io.Discard, io.Discard, &trace)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	p, _ := newPipeline(t, nil)
	p.Tick(obs(false, ""))

	out := trace.String()
	assert.Contains(t, out, "[pipeline] ")
	assert.Contains(t, out, "[perception] seq=0")
	assert.Contains(t, out, "[profile] seq=0")
	assert.Contains(t, out, "[decision] seq=0 forward")
}
