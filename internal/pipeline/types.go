package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/lane"
	"github.com/banshee-data/lanepilot/internal/perception"
)

// ErrSourceExhausted is returned by FrameSource.Next when a finite source
// (video file, fixture) has no more frames.
var ErrSourceExhausted = errors.New("frame source exhausted")

// Frame is one captured image. Payload is owned by the source and only
// interpreted by a matching Detector.
type Frame struct {
	Seq     uint64
	At      time.Time
	Width   int
	Height  int
	Payload any
}

// FrameSource yields frames until it is exhausted or the context ends.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// StageTimings holds how long each stage took for one frame. Detectors fill
// the first three; the pipeline fills Decide.
type StageTimings struct {
	Lane     time.Duration `json:"lane_ns"`
	StopSign time.Duration `json:"stop_sign_ns"`
	Light    time.Duration `json:"light_ns"`
	Decide   time.Duration `json:"decide_ns"`
}

// Observation is the raw per-frame perception output. A zero Width or Height
// marks a frame that could not be analysed.
type Observation struct {
	Seq           uint64
	Lines         []lane.Segment
	Width         int
	Height        int
	StopSignClose bool
	Light         perception.LightColor
	Timings       StageTimings
}

// Analysed reports whether the observation came from a usable frame.
func (o Observation) Analysed() bool { return o.Width > 0 && o.Height > 0 }

// Detector runs the perception classifiers on one frame.
type Detector interface {
	Detect(ctx context.Context, f Frame) (Observation, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, f Frame) (Observation, error)

// Detect calls fn.
func (fn DetectorFunc) Detect(ctx context.Context, f Frame) (Observation, error) { return fn(ctx, f) }

// Record is everything known about one tick. It is what sinks receive.
type Record struct {
	Seq      uint64            `json:"seq"`
	At       time.Time         `json:"at"`
	Decision decision.Decision `json:"decision"`
	State    decision.State    `json:"state"`

	LaneAngle float64        `json:"lane_angle"`
	RawAngle  float64        `json:"raw_angle"`
	TargetX   float64        `json:"target_x"`
	HasLane   bool           `json:"has_lane"`
	Lines     []lane.Segment `json:"lines,omitempty"`

	StopSignClose  bool                  `json:"stop_sign_close"`
	StopSignStable bool                  `json:"stop_sign_stable"`
	LightRaw       perception.LightColor `json:"light_raw,omitempty"`
	Light          perception.LightColor `json:"light,omitempty"`
	StopTriggered  bool                  `json:"stop_triggered"`

	Transition    decision.Transition `json:"-"`
	StopRemaining time.Duration       `json:"stop_remaining_ns"`
	Timings       StageTimings        `json:"timings"`
	Skipped       bool                `json:"skipped"`
}

// Sink consumes records. Implementations must not retain Lines beyond the call
// unless they copy it.
type Sink interface {
	Record(ctx context.Context, r Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, r Record) error

// Record calls fn.
func (fn SinkFunc) Record(ctx context.Context, r Record) error { return fn(ctx, r) }
