package replay

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/lane"
	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/pipeline"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

const fixture = `# two frames
{"lines":[[100,480,250,288],[540,480,390,288]],"width":640,"height":480}

{"lines":[],"width":640,"height":480,"stop_close":true,"light":"red"}
`

func TestDecoder(t *testing.T) {
	t.Parallel()

	dec := NewDecoder(strings.NewReader(fixture))

	first, err := dec.Next()
	require.NoError(t, err)
	obs := first.Observation()
	want := []lane.Segment{
		{X1: 100, Y1: 480, X2: 250, Y2: 288},
		{X1: 540, Y1: 480, X2: 390, Y2: 288},
	}
	if diff := cmp.Diff(want, obs.Lines); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, obs.Analysed())

	second, err := dec.Next()
	require.NoError(t, err)
	obs = second.Observation()
	assert.True(t, obs.StopSignClose)
	assert.Equal(t, perception.LightRed, obs.Light)
	assert.Empty(t, obs.Lines)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_ReportsLine(t *testing.T) {
	t.Parallel()

	dec := NewDecoder(strings.NewReader("{\"width\":1}\n\nnot json\n"))
	_, err := dec.Next()
	require.NoError(t, err)
	_, err = dec.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestWriteFixtureRoundTrip(t *testing.T) {
	t.Parallel()

	frames := Synthetic(SyntheticOptions{Frames: 3, Width: 640, Height: 480, Period: 4, Red: []Span{{From: 2, To: 3}}})
	var buf bytes.Buffer
	require.NoError(t, WriteFixture(&buf, frames))

	dec := NewDecoder(&buf)
	for i, want := range frames {
		got, err := dec.Next()
		require.NoError(t, err, "frame %d", i)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("frame %d mismatch (-want +got):\n%s", i, diff)
		}
		assert.Equal(t, want, FromObservation(got.Observation()))
	}
}

func TestSource_ExhaustsAndNumbersFrames(t *testing.T) {
	t.Parallel()

	src := NewSource(strings.NewReader(fixture), Options{})
	defer src.Close()
	ctx := context.Background()

	for want := uint64(1); want <= 2; want++ {
		f, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, f.Seq)
		assert.Equal(t, 640, f.Width)

		obs, err := Detector{}.Detect(ctx, f)
		require.NoError(t, err)
		assert.Equal(t, want, obs.Seq)
	}
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, pipeline.ErrSourceExhausted)
}

func TestSource_Loop(t *testing.T) {
	t.Parallel()

	src := NewFrameSource(Synthetic(SyntheticOptions{Frames: 2, Width: 640, Height: 480}), Options{Loop: true})
	for want := uint64(1); want <= 5; want++ {
		f, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, f.Seq)
	}

	empty := NewFrameSource(nil, Options{Loop: true})
	_, err := empty.Next(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrSourceExhausted)
}

func TestOpenFile_LoopsBySeeking(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "drive.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	src, err := OpenFile(path, Options{Loop: true})
	require.NoError(t, err)
	defer src.Close()

	var lights []perception.LightColor
	for i := 0; i < 4; i++ {
		f, err := src.Next(context.Background())
		require.NoError(t, err)
		lights = append(lights, f.Payload.(pipeline.Observation).Light)
	}
	assert.Equal(t, []perception.LightColor{"", perception.LightRed, "", perception.LightRed}, lights)

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing.jsonl"), Options{})
	assert.Error(t, err)
}

func TestSource_PacesWithClock(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := NewFrameSource(Synthetic(SyntheticOptions{Frames: 3, Width: 640, Height: 480}), Options{FPS: 10, Clock: clock})
	ctx := context.Background()

	_, err := src.Next(ctx)
	require.NoError(t, err, "first frame is immediate")

	got := make(chan pipeline.Frame, 1)
	go func() {
		f, err := src.Next(ctx)
		if err == nil {
			got <- f
		}
	}()

	select {
	case <-got:
		t.Fatal("second frame arrived before a tick")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(100 * time.Millisecond)
	select {
	case f := <-got:
		assert.Equal(t, uint64(2), f.Seq)
		assert.Equal(t, time.Unix(0, 0).Add(100*time.Millisecond), f.At)
	case <-time.After(2 * time.Second):
		t.Fatal("second frame never arrived")
	}
}

func TestSource_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewFrameSource(Synthetic(DefaultSynthetic()), Options{})
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetector_RejectsForeignPayload(t *testing.T) {
	t.Parallel()

	_, err := Detector{}.Detect(context.Background(), pipeline.Frame{Seq: 1, Payload: "jpeg"})
	assert.Error(t, err)
}

func TestSynthetic(t *testing.T) {
	t.Parallel()

	frames := Synthetic(DefaultSynthetic())
	require.Len(t, frames, 600)

	assert.False(t, frames[148].StopClose, "frame 149")
	assert.True(t, frames[149].StopClose, "frame 150")
	assert.Equal(t, "red", frames[379].Light)
	assert.Equal(t, "green", frames[449].Light)
	assert.Empty(t, frames[539].Lines)
	assert.Len(t, frames[0].Lines, 2)
}

// The default synthetic drive exercises both stop paths end to end.
func TestSynthetic_DrivesPipeline(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	p, err := pipeline.New(pipeline.Options{Tuning: config.DefaultTuningConfig(), Clock: clock})
	require.NoError(t, err)

	src := NewFrameSource(Synthetic(DefaultSynthetic()), Options{})
	var stops int
	sink := pipeline.SinkFunc(func(_ context.Context, r pipeline.Record) error {
		clock.Advance(time.Second / DefaultFPS)
		if r.Transition == decision.StopStarted {
			stops++
		}
		return nil
	})
	require.NoError(t, p.Run(context.Background(), src, Detector{}, sink))
	assert.GreaterOrEqual(t, stops, 2)
}
