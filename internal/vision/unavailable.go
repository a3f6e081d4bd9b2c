//go:build !gocv

package vision

import (
	"context"

	"github.com/banshee-data/lanepilot/internal/pipeline"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

// Available reports whether OpenCV support was compiled in.
const Available = false

type Camera struct{}

func OpenCamera(string, timeutil.Clock) (*Camera, error) { return nil, ErrUnavailable }

func (*Camera) Next(context.Context) (pipeline.Frame, error) {
	return pipeline.Frame{}, ErrUnavailable
}

func (*Camera) Close() error { return nil }

type Detector struct{}

func NewDetector(Params, timeutil.Clock) (*Detector, error) { return nil, ErrUnavailable }

func (*Detector) Detect(context.Context, pipeline.Frame) (pipeline.Observation, error) {
	return pipeline.Observation{}, ErrUnavailable
}

func (*Detector) Close() error { return nil }
