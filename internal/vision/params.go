// Package vision turns camera frames into perception observations: lane
// segments from a white mask and probabilistic Hough transform, stop-sign
// proximity from a Haar cascade, and traffic-light colour from a cascade
// box plus an HSV colour vote.
//
// The OpenCV parts need cgo and are only built with -tags gocv. Without the
// tag OpenCamera and NewDetector return ErrUnavailable.
package vision

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/lanepilot/internal/perception"
)

// ErrUnavailable is returned when the binary was built without OpenCV.
var ErrUnavailable = errors.New("vision: built without gocv; rebuild with -tags gocv")

// HSVRange is an inclusive HSV threshold in OpenCV units (H 0-180).
type HSVRange struct {
	Low, High [3]float64
}

// Params configures the detectors.
type Params struct {
	// Lane marking mask and search region. Only rows below ROIStart (a
	// fraction of the height) are searched.
	White    HSVRange
	ROIStart float64

	CannyLow, CannyHigh float32
	HoughThreshold      int
	MinLineLength       float32
	MaxLineGap          float32

	StopCascade  string
	LightCascade string
	// A stop sign box at least this wide is close enough to stop for.
	MinStopSignWidth int
	ScaleFactor      float64
	MinNeighbors     int
	MinSize          int

	Red    []HSVRange
	Yellow []HSVRange
	Green  []HSVRange
	// Contours smaller than this do not vote.
	MinLightArea float64
}

// DefaultParams returns the tuning used on the vehicle, with cascade files
// looked up in modelDir.
func DefaultParams(modelDir string) Params {
	return Params{
		White:            HSVRange{Low: [3]float64{0, 0, 200}, High: [3]float64{180, 30, 255}},
		ROIStart:         0.6,
		CannyLow:         50,
		CannyHigh:        150,
		HoughThreshold:   50,
		MinLineLength:    60,
		MaxLineGap:       50,
		StopCascade:      filepath.Join(modelDir, "stop.xml"),
		LightCascade:     filepath.Join(modelDir, "light.xml"),
		MinStopSignWidth: 130,
		ScaleFactor:      1.1,
		MinNeighbors:     5,
		MinSize:          30,
		Red: []HSVRange{
			{Low: [3]float64{0, 100, 100}, High: [3]float64{10, 255, 255}},
			{Low: [3]float64{160, 100, 100}, High: [3]float64{180, 255, 255}},
		},
		Yellow:       []HSVRange{{Low: [3]float64{20, 100, 100}, High: [3]float64{30, 255, 255}}},
		Green:        []HSVRange{{Low: [3]float64{40, 100, 100}, High: [3]float64{80, 255, 255}}},
		MinLightArea: 50,
	}
}

// Validate reports whether the parameters are usable.
func (p Params) Validate() error {
	if !(p.ROIStart >= 0 && p.ROIStart < 1) {
		return fmt.Errorf("roi start must be in [0, 1), got %v", p.ROIStart)
	}
	if p.CannyLow < 0 || p.CannyHigh < p.CannyLow {
		return fmt.Errorf("canny thresholds must satisfy 0 <= low <= high, got %v and %v", p.CannyLow, p.CannyHigh)
	}
	if p.HoughThreshold <= 0 {
		return fmt.Errorf("hough threshold must be positive, got %d", p.HoughThreshold)
	}
	if p.StopCascade == "" || p.LightCascade == "" {
		return fmt.Errorf("both cascade paths are required")
	}
	if p.ScaleFactor <= 1 {
		return fmt.Errorf("cascade scale factor must exceed 1, got %v", p.ScaleFactor)
	}
	if p.MinStopSignWidth < 0 || p.MinSize < 0 || p.MinNeighbors < 0 {
		return fmt.Errorf("cascade sizes must not be negative")
	}
	return nil
}

// ColorArea is one contour found under a light colour's mask.
type ColorArea struct {
	Color perception.LightColor
	Area  float64
}

// StrongestColor returns the colour of the largest contour above minArea,
// or LightNone. On equal areas the earlier contour wins, so callers list
// red before yellow before green.
func StrongestColor(areas []ColorArea, minArea float64) perception.LightColor {
	best := perception.LightNone
	bestArea := 0.0
	for _, a := range areas {
		if a.Area > bestArea && a.Area > minArea {
			best, bestArea = a.Color, a.Area
		}
	}
	return best
}
