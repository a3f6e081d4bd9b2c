package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/lanepilot/internal/pipeline"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

// DefaultFPS matches the camera's nominal frame rate.
const DefaultFPS = 30

// Options configures a Source.
type Options struct {
	// FPS paces frames in real time. Zero replays as fast as the consumer
	// reads.
	FPS   float64
	Clock timeutil.Clock
	// Loop restarts a finite fixture from the top instead of ending.
	Loop bool
}

// Source is a pipeline.FrameSource over fixture frames. Each Frame's
// Payload is a pipeline.Observation for use with Detector.
type Source struct {
	next   func() (FixtureFrame, error)
	rewind func() error
	closer io.Closer

	clock  timeutil.Clock
	ticker timeutil.Ticker
	loop   bool
	seq    uint64
}

// NewSource reads frames from r. If r is an io.Seeker, Loop rewinds it.
func NewSource(r io.Reader, opts Options) *Source {
	dec := NewDecoder(r)
	s := &Source{next: dec.Next}
	if seeker, ok := r.(io.Seeker); ok {
		s.rewind = func() error {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return err
			}
			dec = NewDecoder(r)
			s.next = dec.Next
			return nil
		}
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	s.init(opts)
	return s
}

// OpenFile opens a fixture file.
func OpenFile(path string, opts Options) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	return NewSource(f, opts), nil
}

// NewFrameSource replays frames held in memory.
func NewFrameSource(frames []FixtureFrame, opts Options) *Source {
	i := 0
	s := &Source{}
	s.next = func() (FixtureFrame, error) {
		if i >= len(frames) {
			return FixtureFrame{}, io.EOF
		}
		i++
		return frames[i-1], nil
	}
	s.rewind = func() error {
		i = 0
		return nil
	}
	s.init(opts)
	return s
}

func (s *Source) init(opts Options) {
	s.clock = opts.Clock
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	s.loop = opts.Loop
	if d := timeutil.FrameInterval(opts.FPS); d > 0 {
		s.ticker = s.clock.NewTicker(d)
	}
}

// Next returns the next frame. With pacing enabled every frame after the
// first waits for a tick.
func (s *Source) Next(ctx context.Context) (pipeline.Frame, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Frame{}, err
	}

	ff, err := s.next()
	if errors.Is(err, io.EOF) && s.loop && s.rewind != nil && s.seq > 0 {
		if err := s.rewind(); err != nil {
			return pipeline.Frame{}, fmt.Errorf("rewind fixture: %w", err)
		}
		ff, err = s.next()
	}
	if errors.Is(err, io.EOF) {
		return pipeline.Frame{}, pipeline.ErrSourceExhausted
	}
	if err != nil {
		return pipeline.Frame{}, err
	}

	if s.ticker != nil && s.seq > 0 {
		select {
		case <-ctx.Done():
			return pipeline.Frame{}, ctx.Err()
		case <-s.ticker.C():
		}
	}

	s.seq++
	obs := ff.Observation()
	obs.Seq = s.seq
	return pipeline.Frame{
		Seq:     s.seq,
		At:      s.clock.Now(),
		Width:   ff.Width,
		Height:  ff.Height,
		Payload: obs,
	}, nil
}

// Close stops pacing and closes the underlying file, if any.
func (s *Source) Close() error {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Detector returns the observation a Source stored in the frame.
type Detector struct{}

// Detect implements pipeline.Detector.
func (Detector) Detect(_ context.Context, f pipeline.Frame) (pipeline.Observation, error) {
	obs, ok := f.Payload.(pipeline.Observation)
	if !ok {
		return pipeline.Observation{}, fmt.Errorf("frame %d: payload %T is not a replayed observation", f.Seq, f.Payload)
	}
	obs.Seq = f.Seq
	return obs, nil
}
