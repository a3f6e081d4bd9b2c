// Package lane turns raw lane-line segments into a smoothed steering angle.
//
// Segments are split into left and right groups by slope sign, each group is
// reduced to one representative line with a least-squares fit of x against y,
// and the lane centre implied by those lines is converted to an angle in
// [-45°, 45°]. An exponential moving average damps frame-to-frame jitter.
package lane

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// MaxAngle is the steering limit in degrees; estimates are clamped to ±MaxAngle.
const MaxAngle = 45.0

// Segment is a detected line segment in frame-pixel coordinates.
type Segment struct {
	X1, Y1, X2, Y2 float64
}

// Slope returns dy/dx and false for vertical segments.
func (s Segment) Slope() (float64, bool) {
	dx := s.X2 - s.X1
	if dx == 0 {
		return 0, false
	}
	return (s.Y2 - s.Y1) / dx, true
}

// Params configures an Estimator.
type Params struct {
	// MinAbsSlope discards near-horizontal segments.
	MinAbsSlope float64
	// SingleSideOffset is the pixel offset from a lone lane line to the
	// assumed lane centre.
	SingleSideOffset float64
	// Lookahead is the fraction of frame height at which the far end of each
	// averaged line is evaluated. The lane centre is taken at that level.
	Lookahead float64
	// Smoothing is the weight given to the previous estimate.
	Smoothing float64
}

// DefaultParams returns the tuning used on the vehicle.
func DefaultParams() Params {
	return Params{
		MinAbsSlope:      0.5,
		SingleSideOffset: 100,
		Lookahead:        0.6,
		Smoothing:        0.8,
	}
}

// Validate reports whether the parameters can build an Estimator.
func (p Params) Validate() error {
	if math.IsNaN(p.MinAbsSlope) || p.MinAbsSlope < 0 {
		return fmt.Errorf("min abs slope must be non-negative, got %v", p.MinAbsSlope)
	}
	if math.IsNaN(p.SingleSideOffset) || p.SingleSideOffset < 0 {
		return fmt.Errorf("single side offset must be non-negative, got %v", p.SingleSideOffset)
	}
	if !(p.Lookahead > 0 && p.Lookahead < 1) {
		return fmt.Errorf("lookahead must be in (0, 1), got %v", p.Lookahead)
	}
	if !(p.Smoothing >= 0 && p.Smoothing < 1) {
		return fmt.Errorf("smoothing weight must be in [0, 1), got %v", p.Smoothing)
	}
	return nil
}

// Estimate is the result of one Estimator call.
type Estimate struct {
	// Angle is the smoothed steering angle in degrees (negative is left).
	Angle float64
	// Raw is the unsmoothed, clamped angle for this frame.
	Raw float64
	// TargetX is the lane-centre x coordinate the angle steers toward.
	TargetX float64
	// Lines holds the averaged left and/or right lines for display.
	Lines []Segment
}

// Estimator holds the smoothing state for one camera. It is not safe for
// concurrent use.
type Estimator struct {
	params Params
	prev   float64
}

// NewEstimator returns an Estimator with the given parameters.
func NewEstimator(p Params) (*Estimator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{params: p}, nil
}

// Previous returns the last smoothed angle.
func (e *Estimator) Previous() float64 { return e.prev }

// Reset forgets the smoothing history.
func (e *Estimator) Reset() { e.prev = 0 }

// Estimate computes the steering angle for one frame. It never fails: with no
// usable segments the target is the frame centre, so repeated absence decays
// the estimate toward straight ahead.
func (e *Estimator) Estimate(segments []Segment, width, height int) Estimate {
	var left, right []Segment
	for _, s := range segments {
		slope, ok := s.Slope()
		if !ok || math.IsNaN(slope) || math.Abs(slope) < e.params.MinAbsSlope {
			continue
		}
		if slope < 0 {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	var raw, target float64
	var lines []Segment
	if width > 0 && height > 0 {
		leftAvg, hasLeft := e.averageLine(left, height)
		rightAvg, hasRight := e.averageLine(right, height)
		if hasLeft {
			lines = append(lines, leftAvg)
		}
		if hasRight {
			lines = append(lines, rightAvg)
		}

		half := float64(width / 2)
		target = half
		switch {
		case hasLeft && hasRight:
			target = math.Floor((leftAvg.X2 + rightAvg.X2) / 2)
		case hasLeft:
			target = leftAvg.X2 + e.params.SingleSideOffset
		case hasRight:
			target = rightAvg.X2 - e.params.SingleSideOffset
		}
		if half > 0 {
			raw = clamp((target-half)/half*MaxAngle, -MaxAngle, MaxAngle)
		}
	}

	angle := e.params.Smoothing*e.prev + (1-e.params.Smoothing)*raw
	angle = clamp(angle, -MaxAngle, MaxAngle)
	e.prev = angle

	return Estimate{Angle: angle, Raw: raw, TargetX: target, Lines: lines}
}

// averageLine fits x = a + b*y over every endpoint in the group and returns
// the line between the frame bottom and the lookahead level.
func (e *Estimator) averageLine(group []Segment, height int) (Segment, bool) {
	if len(group) == 0 {
		return Segment{}, false
	}

	xs := make([]float64, 0, 2*len(group))
	ys := make([]float64, 0, 2*len(group))
	for _, s := range group {
		xs = append(xs, s.X1, s.X2)
		ys = append(ys, s.Y1, s.Y2)
	}

	a, b := stat.LinearRegression(ys, xs, nil, false)
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return Segment{}, false
	}

	y1 := float64(height)
	y2 := math.Trunc(float64(height) * e.params.Lookahead)
	return Segment{
		X1: pixel(a + b*y1),
		Y1: y1,
		X2: pixel(a + b*y2),
		Y2: y2,
	}, true
}

// pixel truncates to a whole pixel after removing floating-point noise left
// by the fit, so an exact 250 is never reported as 249.
func pixel(v float64) float64 {
	return math.Trunc(math.Round(v*1e6) / 1e6)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
