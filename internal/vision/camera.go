//go:build gocv

package vision

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/banshee-data/lanepilot/internal/pipeline"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

// Available reports whether OpenCV support was compiled in.
const Available = true

// Capture size requested from live devices.
const (
	CaptureWidth  = 640
	CaptureHeight = 480
	CaptureFPS    = 30
)

// RawFrame is a copy of a captured image. Frames cross goroutines and may be
// dropped unread, so they carry plain bytes rather than an OpenCV Mat.
type RawFrame struct {
	Rows, Cols int
	Type       gocv.MatType
	Data       []byte
}

// Camera reads frames from a capture device or a video file.
type Camera struct {
	mu    sync.Mutex
	cap   *gocv.VideoCapture
	mat   gocv.Mat
	clock timeutil.Clock
	seq   uint64
	live  bool
}

// OpenCamera opens source, which is either a device index ("0") or a path
// to a video file. Live devices are asked for 640x480 at 30 fps.
func OpenCamera(source string, clock timeutil.Clock) (*Camera, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	var target any = source
	idx, err := strconv.Atoi(source)
	live := err == nil
	if live {
		target = idx
	}
	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, fmt.Errorf("open capture %q: %w", source, err)
	}
	if live {
		vc.Set(gocv.VideoCaptureFrameWidth, CaptureWidth)
		vc.Set(gocv.VideoCaptureFrameHeight, CaptureHeight)
		vc.Set(gocv.VideoCaptureFPS, CaptureFPS)
	}
	opsf("opened capture %q (live=%v)", source, live)
	return &Camera{cap: vc, mat: gocv.NewMat(), clock: clock, live: live}, nil
}

// Next blocks until the next frame is decoded. A file source returns
// pipeline.ErrSourceExhausted at its end; a device that stops producing
// frames is an error.
func (c *Camera) Next(ctx context.Context) (pipeline.Frame, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Frame{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == nil {
		return pipeline.Frame{}, fmt.Errorf("camera closed")
	}
	if ok := c.cap.Read(&c.mat); !ok || c.mat.Empty() {
		if c.live {
			return pipeline.Frame{}, fmt.Errorf("capture device returned no frame")
		}
		return pipeline.Frame{}, pipeline.ErrSourceExhausted
	}
	c.seq++
	raw := RawFrame{
		Rows: c.mat.Rows(),
		Cols: c.mat.Cols(),
		Type: c.mat.Type(),
		Data: c.mat.ToBytes(),
	}
	return pipeline.Frame{
		Seq:     c.seq,
		At:      c.clock.Now(),
		Width:   raw.Cols,
		Height:  raw.Rows,
		Payload: raw,
	}, nil
}

// Close releases the capture device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == nil {
		return nil
	}
	err := c.cap.Close()
	c.mat.Close()
	c.cap = nil
	return err
}
