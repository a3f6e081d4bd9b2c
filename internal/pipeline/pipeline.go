package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/lane"
	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/steering"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

// Options holds the dependencies for a Pipeline.
type Options struct {
	Tuning  *config.TuningConfig // nil uses the defaults
	Clock   timeutil.Clock       // nil uses the real clock
	Metrics *monitoring.Metrics  // optional
}

// Pipeline owns all per-run decision state: the estimator's smoothing
// history, both stabilizers and the stop wait. It is driven by one goroutine.
type Pipeline struct {
	clock   timeutil.Clock
	metrics *monitoring.Metrics

	estimator *lane.Estimator
	stopHist  *perception.Stabilizer[bool]
	lightHist *perception.Stabilizer[perception.LightColor]
	machine   *decision.Machine
	cadence   *Cadence

	stopQuorum  int
	lightQuorum int
	cooldown    time.Duration
	resumedAt   time.Time

	prev Record
}

// New builds a Pipeline from tuning. Invalid tuning is rejected here so that
// Tick itself never fails.
func New(opts Options) (*Pipeline, error) {
	tuning := opts.Tuning
	if tuning == nil {
		tuning = config.DefaultTuningConfig()
	}
	if err := tuning.Validate(); err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	est, err := lane.NewEstimator(lane.Params{
		MinAbsSlope:      tuning.GetMinAbsSlope(),
		SingleSideOffset: tuning.GetSingleSideOffset(),
		Lookahead:        tuning.GetLookahead(),
		Smoothing:        tuning.GetSmoothing(),
	})
	if err != nil {
		return nil, fmt.Errorf("lane estimator: %w", err)
	}
	stopHist, err := perception.NewStabilizer[bool](tuning.GetHistorySize())
	if err != nil {
		return nil, fmt.Errorf("stop sign history: %w", err)
	}
	lightHist, err := perception.NewStabilizer[perception.LightColor](tuning.GetHistorySize())
	if err != nil {
		return nil, fmt.Errorf("light history: %w", err)
	}
	mapper, err := steering.NewMapper(tuning.GetDeadband(), tuning.GetStrengthScale())
	if err != nil {
		return nil, fmt.Errorf("steering mapper: %w", err)
	}
	machine, err := decision.NewMachine(clock, mapper, tuning.GetStopDuration())
	if err != nil {
		return nil, fmt.Errorf("decision machine: %w", err)
	}
	cadence, err := NewCadence(tuning.GetDetectionInterval())
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		clock:       clock,
		metrics:     opts.Metrics,
		estimator:   est,
		stopHist:    stopHist,
		lightHist:   lightHist,
		machine:     machine,
		cadence:     cadence,
		stopQuorum:  tuning.GetStopQuorum(),
		lightQuorum: tuning.GetLightQuorum(),
		cooldown:    tuning.GetStopSignCooldown(),
		// Until the first detection the vehicle holds still.
		prev: Record{
			Decision: decision.Decision{Action: decision.Stop, Direction: steering.Straight},
			State:    decision.Normal,
		},
	}, nil
}

// Tick runs one decision step on an observation. It cannot fail: an
// unanalysed observation leaves the lane estimate untouched and the machine
// falls back to the carried steering angle.
func (p *Pipeline) Tick(obs Observation) Record {
	start := p.clock.Now()

	rec := Record{
		Seq:           obs.Seq,
		StopSignClose: obs.StopSignClose,
		LightRaw:      obs.Light,
		Timings:       obs.Timings,
	}

	if obs.Analysed() {
		est := p.estimator.Estimate(obs.Lines, obs.Width, obs.Height)
		rec.HasLane = true
		rec.LaneAngle = est.Angle
		rec.RawAngle = est.Raw
		rec.TargetX = est.TargetX
		rec.Lines = est.Lines
	} else {
		rec.LaneAngle = p.estimator.Previous()
	}

	p.stopHist.Update(obs.StopSignClose)
	p.lightHist.Update(obs.Light)

	rec.StopSignStable = p.stopHist.RecentlyTrue(p.stopQuorum)
	light, ok := p.lightHist.MostCommon(p.lightQuorum)
	if ok {
		rec.Light = light
	}

	stopSign := rec.StopSignStable
	if stopSign && p.inCooldown() {
		stopSign = false
	}
	rec.StopTriggered = stopSign || rec.Light.Halts()

	rec.Decision = p.machine.Step(decision.Input{
		LaneAngle:     rec.LaneAngle,
		HasLane:       rec.HasLane,
		StopTriggered: rec.StopTriggered,
	})
	rec.State = p.machine.State()
	rec.Transition = p.machine.LastTransition()
	rec.StopRemaining = p.machine.Remaining()
	rec.At = p.clock.Now()
	rec.Timings.Decide = p.clock.Since(start)

	switch rec.Transition {
	case decision.StopStarted:
		diagf("stop started seq=%d stop_sign=%t light=%s", rec.Seq, rec.StopSignStable, rec.Light)
	case decision.StopResumed:
		p.resumedAt = rec.At
		diagf("stop resumed seq=%d", rec.Seq)
	}

	if logs.TraceEnabled() {
		tracef("[perception] seq=%d lane=%.2f raw=%.2f has_lane=%t stop_close=%t stop_stable=%t light=%q stable_light=%q",
			rec.Seq, rec.LaneAngle, rec.RawAngle, rec.HasLane, rec.StopSignClose, rec.StopSignStable, rec.LightRaw, rec.Light)
		tracef("[profile] seq=%d lane=%s stop_sign=%s light=%s decide=%s",
			rec.Seq, rec.Timings.Lane, rec.Timings.StopSign, rec.Timings.Light, rec.Timings.Decide)
		tracef("[decision] seq=%d %s state=%s", rec.Seq, rec.Decision, rec.State)
	}

	p.prev = rec
	return rec
}

func (p *Pipeline) inCooldown() bool {
	return p.cooldown > 0 && !p.resumedAt.IsZero() && p.clock.Since(p.resumedAt) < p.cooldown
}

// Process applies the detection cadence to a frame. Admitted frames are run
// through the detector and ticked; skipped frames re-emit the previous record
// marked Skipped without running the detector.
func (p *Pipeline) Process(ctx context.Context, f Frame, det Detector) Record {
	if !p.cadence.Admit() {
		rec := p.prev
		rec.Seq = f.Seq
		rec.At = p.clock.Now()
		rec.Skipped = true
		rec.Transition = decision.NoTransition
		rec.Timings = StageTimings{}
		return rec
	}
	return p.Tick(p.detect(ctx, f, det))
}

func (p *Pipeline) detect(ctx context.Context, f Frame, det Detector) Observation {
	obs, err := det.Detect(ctx, f)
	if err != nil {
		opsf("detector failed on frame %d: %v", f.Seq, err)
		if p.metrics != nil {
			p.metrics.DetectorError()
		}
		obs = Observation{}
	}
	obs.Seq = f.Seq
	return obs
}

// Previous returns the most recent record.
func (p *Pipeline) Previous() Record { return p.prev }

// Run drives the pipeline synchronously over every frame of src until the
// source is exhausted or ctx ends. Skipped frames are delivered too. Sink
// errors are logged and never stop the run.
func (p *Pipeline) Run(ctx context.Context, src FrameSource, det Detector, sink Sink) error {
	for {
		f, err := src.Next(ctx)
		if err != nil {
			if err == ErrSourceExhausted {
				diagf("source exhausted after frame %d", p.prev.Seq)
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame: %w", err)
		}
		rec := p.Process(ctx, f, det)
		if sink != nil {
			if err := sink.Record(ctx, rec); err != nil {
				opsf("sink failed on frame %d: %v", rec.Seq, err)
			}
		}
	}
}
