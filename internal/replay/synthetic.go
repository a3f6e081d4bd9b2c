package replay

import (
	"math"

	"github.com/banshee-data/lanepilot/internal/perception"
)

// Span is a half-open range of 1-based frame numbers.
type Span struct {
	From, To int
}

func (s Span) contains(frame int) bool { return frame >= s.From && frame < s.To }

// SyntheticOptions scripts a drive for dev mode and tests.
type SyntheticOptions struct {
	Frames        int
	Width, Height int
	// Sway is the peak sideways lane offset in pixels and Period the number
	// of frames per sway cycle.
	Sway   float64
	Period int
	// Frames where a stop sign is close, and where each light colour shows.
	StopSign []Span
	Red      []Span
	Yellow   []Span
	Green    []Span
	// LostLane frames have no lane lines at all.
	LostLane []Span
}

// DefaultSynthetic is a 20 second loop at the camera rate: a gentle weave,
// one stop sign and one red light.
func DefaultSynthetic() SyntheticOptions {
	return SyntheticOptions{
		Frames:   600,
		Width:    640,
		Height:   480,
		Sway:     60,
		Period:   240,
		StopSign: []Span{{From: 150, To: 200}},
		Red:      []Span{{From: 380, To: 450}},
		Green:    []Span{{From: 450, To: 520}},
		LostLane: []Span{{From: 540, To: 560}},
	}
}

func inAny(spans []Span, frame int) bool {
	for _, s := range spans {
		if s.contains(frame) {
			return true
		}
	}
	return false
}

// Synthetic generates the scripted frames.
func Synthetic(opts SyntheticOptions) []FixtureFrame {
	w, h := float64(opts.Width), float64(opts.Height)
	period := max(opts.Period, 1)

	frames := make([]FixtureFrame, 0, opts.Frames)
	for i := 1; i <= opts.Frames; i++ {
		f := FixtureFrame{Width: opts.Width, Height: opts.Height}

		if !inAny(opts.LostLane, i) {
			dx := math.Round(opts.Sway * math.Sin(2*math.Pi*float64(i)/float64(period)))
			top := math.Trunc(h * 0.6)
			f.Lines = [][4]float64{
				{w*0.15625 + dx, h, w*0.390625 + dx, top},
				{w*0.84375 + dx, h, w*0.609375 + dx, top},
			}
		}

		f.StopClose = inAny(opts.StopSign, i)
		switch {
		case inAny(opts.Red, i):
			f.Light = string(perception.LightRed)
		case inAny(opts.Yellow, i):
			f.Light = string(perception.LightYellow)
		case inAny(opts.Green, i):
			f.Light = string(perception.LightGreen)
		}
		frames = append(frames, f)
	}
	return frames
}
