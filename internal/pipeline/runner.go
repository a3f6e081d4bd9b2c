package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

type snapshot struct {
	frame Frame
	obs   Observation
}

// Runner splits capture from decision making. The capture goroutine reads
// frames and runs the detector on admitted ones; the decision goroutine ticks
// the pipeline on the freshest observation only. Observations that arrive
// while a tick is in progress replace each other rather than queueing.
type Runner struct {
	pipeline *Pipeline
	source   FrameSource
	detector Detector
	sink     Sink
	cadence  *Cadence
	latest   *Latest[snapshot]
}

// NewRunner returns a Runner. The cadence interval comes from the pipeline's
// tuning.
func NewRunner(p *Pipeline, src FrameSource, det Detector, sink Sink) (*Runner, error) {
	if p == nil || src == nil || det == nil {
		return nil, errors.New("runner requires a pipeline, frame source and detector")
	}
	cadence, err := NewCadence(p.cadence.interval)
	if err != nil {
		return nil, err
	}
	return &Runner{
		pipeline: p,
		source:   src,
		detector: det,
		sink:     sink,
		cadence:  cadence,
		latest:   NewLatest[snapshot](),
	}, nil
}

// Run blocks until the source is exhausted, ctx is cancelled or the source
// fails. An exhausted source is not an error; the last observation is still
// decided on before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	captured := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(captured)
		return r.capture(gctx)
	})
	g.Go(func() error {
		return r.decide(gctx, captured)
	})

	err := g.Wait()
	if dropped := r.latest.Dropped(); dropped > 0 {
		diagf("runner finished: %d frames seen, %d observations superseded", r.cadence.Count(), dropped)
	}
	return err
}

func (r *Runner) capture(ctx context.Context) error {
	for {
		f, err := r.source.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrSourceExhausted) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if !r.cadence.Admit() {
			continue
		}
		obs := r.pipeline.detect(ctx, f, r.detector)
		r.latest.Put(snapshot{frame: f, obs: obs})
	}
}

func (r *Runner) decide(ctx context.Context, captured <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.latest.Ready():
			r.tick(ctx)
		case <-captured:
			r.tick(ctx)
			return nil
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	snap, ok := r.latest.Take()
	if !ok {
		return
	}
	rec := r.pipeline.Tick(snap.obs)
	if r.sink == nil {
		return
	}
	if err := r.sink.Record(ctx, rec); err != nil {
		opsf("sink failed on frame %d: %v", rec.Seq, err)
	}
}
