//go:build gocv

package vision

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/banshee-data/lanepilot/internal/lane"
	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/pipeline"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

// Detector runs the three classifiers on RawFrame payloads. Calls are
// serialised; the cascades are not safe for concurrent use.
type Detector struct {
	mu     sync.Mutex
	params Params
	clock  timeutil.Clock
	stop   gocv.CascadeClassifier
	light  gocv.CascadeClassifier
}

// NewDetector validates params and loads both cascades.
func NewDetector(params Params, clock timeutil.Clock) (*Detector, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vision params: %w", err)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	d := &Detector{
		params: params,
		clock:  clock,
		stop:   gocv.NewCascadeClassifier(),
		light:  gocv.NewCascadeClassifier(),
	}
	if !d.stop.Load(params.StopCascade) {
		d.Close()
		return nil, fmt.Errorf("load stop sign cascade %s", params.StopCascade)
	}
	if !d.light.Load(params.LightCascade) {
		d.Close()
		return nil, fmt.Errorf("load traffic light cascade %s", params.LightCascade)
	}
	return d, nil
}

// Close releases the cascades.
func (d *Detector) Close() error {
	d.stop.Close()
	d.light.Close()
	return nil
}

// Detect implements pipeline.Detector.
func (d *Detector) Detect(ctx context.Context, f pipeline.Frame) (pipeline.Observation, error) {
	raw, ok := f.Payload.(RawFrame)
	if !ok {
		return pipeline.Observation{}, fmt.Errorf("unexpected frame payload %T", f.Payload)
	}
	if err := ctx.Err(); err != nil {
		return pipeline.Observation{}, err
	}

	decoded, err := gocv.NewMatFromBytes(raw.Rows, raw.Cols, raw.Type, raw.Data)
	if err != nil {
		return pipeline.Observation{}, fmt.Errorf("decode frame %d: %w", f.Seq, err)
	}
	defer decoded.Close()

	img := decoded
	if decoded.Channels() == 4 {
		bgr := gocv.NewMat()
		defer bgr.Close()
		if err := gocv.CvtColor(decoded, &bgr, gocv.ColorBGRAToBGR); err != nil {
			return pipeline.Observation{}, fmt.Errorf("convert frame %d: %w", f.Seq, err)
		}
		img = bgr
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	obs := pipeline.Observation{Seq: f.Seq, Width: img.Cols(), Height: img.Rows()}

	start := d.clock.Now()
	obs.Lines, err = d.laneSegments(img)
	if err != nil {
		return pipeline.Observation{}, err
	}
	obs.Timings.Lane = d.clock.Since(start)

	start = d.clock.Now()
	obs.StopSignClose, err = d.stopSignClose(img)
	if err != nil {
		return pipeline.Observation{}, err
	}
	obs.Timings.StopSign = d.clock.Since(start)

	start = d.clock.Now()
	obs.Light, err = d.lightColor(img)
	if err != nil {
		return pipeline.Observation{}, err
	}
	obs.Timings.Light = d.clock.Since(start)

	tracef("frame %d: %d segments stop=%v light=%q", f.Seq, len(obs.Lines), obs.StopSignClose, obs.Light)
	return obs, nil
}

func (d *Detector) laneSegments(img gocv.Mat) ([]lane.Segment, error) {
	hsv := gocv.NewMat()
	defer hsv.Close()
	if err := gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV); err != nil {
		return nil, fmt.Errorf("lane hsv: %w", err)
	}

	mask := gocv.NewMat()
	defer mask.Close()
	inRange(hsv, d.params.White, &mask)

	top := int(float64(img.Rows()) * d.params.ROIStart)
	roi := mask.Region(image.Rect(0, top, img.Cols(), img.Rows()))
	defer roi.Close()

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(roi, &edges, d.params.CannyLow, d.params.CannyHigh)

	lines := gocv.NewMat()
	defer lines.Close()
	gocv.HoughLinesPWithParams(edges, &lines, 1, float32(math.Pi/180),
		d.params.HoughThreshold, d.params.MinLineLength, d.params.MaxLineGap)

	segs := make([]lane.Segment, 0, lines.Rows())
	for i := 0; i < lines.Rows(); i++ {
		v := lines.GetVeciAt(i, 0)
		if len(v) < 4 {
			continue
		}
		segs = append(segs, lane.Segment{
			X1: float64(v[0]), Y1: float64(int(v[1]) + top),
			X2: float64(v[2]), Y2: float64(int(v[3]) + top),
		})
	}
	return segs, nil
}

func (d *Detector) stopSignClose(img gocv.Mat) (bool, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(img, &gray, gocv.ColorBGRToGray); err != nil {
		return false, fmt.Errorf("stop sign gray: %w", err)
	}
	gocv.EqualizeHist(gray, &gray)

	boxes := d.detect(&d.stop, gray)
	if len(boxes) == 0 {
		return false, nil
	}
	return boxes[0].Dx() >= d.params.MinStopSignWidth, nil
}

func (d *Detector) lightColor(img gocv.Mat) (perception.LightColor, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(img, &gray, gocv.ColorBGRToGray); err != nil {
		return perception.LightNone, fmt.Errorf("light gray: %w", err)
	}

	boxes := d.detect(&d.light, gray)
	if len(boxes) == 0 {
		return perception.LightNone, nil
	}
	box := boxes[0].Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if box.Empty() {
		return perception.LightNone, nil
	}

	region := img.Region(box)
	defer region.Close()
	hsv := gocv.NewMat()
	defer hsv.Close()
	if err := gocv.CvtColor(region, &hsv, gocv.ColorBGRToHSV); err != nil {
		return perception.LightNone, fmt.Errorf("light hsv: %w", err)
	}

	var areas []ColorArea
	for _, c := range []struct {
		color  perception.LightColor
		ranges []HSVRange
	}{
		{perception.LightRed, d.params.Red},
		{perception.LightYellow, d.params.Yellow},
		{perception.LightGreen, d.params.Green},
	} {
		areas = append(areas, contourAreas(hsv, c.color, c.ranges)...)
	}
	return StrongestColor(areas, d.params.MinLightArea), nil
}

func (d *Detector) detect(c *gocv.CascadeClassifier, gray gocv.Mat) []image.Rectangle {
	minSize := image.Pt(d.params.MinSize, d.params.MinSize)
	return c.DetectMultiScaleWithParams(gray, d.params.ScaleFactor, d.params.MinNeighbors, 0, minSize, image.Point{})
}

// contourAreas masks hsv with the union of ranges and returns the area of
// every external contour.
func contourAreas(hsv gocv.Mat, color perception.LightColor, ranges []HSVRange) []ColorArea {
	if len(ranges) == 0 {
		return nil
	}
	mask := gocv.NewMat()
	defer mask.Close()
	inRange(hsv, ranges[0], &mask)
	for _, r := range ranges[1:] {
		part := gocv.NewMat()
		inRange(hsv, r, &part)
		gocv.BitwiseOr(mask, part, &mask)
		part.Close()
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	out := make([]ColorArea, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		out = append(out, ColorArea{Color: color, Area: gocv.ContourArea(contours.At(i))})
	}
	return out
}

func inRange(src gocv.Mat, r HSVRange, dst *gocv.Mat) {
	lo := gocv.NewScalar(r.Low[0], r.Low[1], r.Low[2], 0)
	hi := gocv.NewScalar(r.High[0], r.High[1], r.High[2], 0)
	gocv.InRangeWithScalar(src, lo, hi, dst)
}
