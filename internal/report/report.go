// Package report renders PNG plots and summary statistics for a journalled
// run.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/lanepilot/internal/db"
	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/steering"
)

// ErrNoData is returned when a run has no analysed decisions to plot.
var ErrNoData = errors.New("report: no analysed decisions")

var (
	angleColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	rawColor      = color.RGBA{R: 174, G: 199, B: 232, A: 255}
	strengthColor = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	stopColor     = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Summary describes one run.
type Summary struct {
	RunID        string        `json:"run_id"`
	Frames       int           `json:"frames"`
	Analysed     int           `json:"analysed"`
	LaneFrames   int           `json:"lane_frames"`
	Stops        int           `json:"stops"`
	StoppedTime  time.Duration `json:"stopped_ns"`
	MeanAbsAngle float64       `json:"mean_abs_angle"`
	AngleStdDev  float64       `json:"angle_stddev"`
	MaxAbsAngle  float64       `json:"max_abs_angle"`
}

// Summarize computes statistics over the analysed (non-skipped) rows. Stop
// events still waiting at the end of the run count up to the last row.
func Summarize(runID string, rows []db.DecisionRow, events []db.StopEvent) Summary {
	s := Summary{RunID: runID, Frames: len(rows), Stops: len(events)}

	var angles, abs []float64
	for _, r := range rows {
		if r.Skipped {
			continue
		}
		s.Analysed++
		if r.HasLane {
			s.LaneFrames++
		}
		angles = append(angles, r.SteeringAngle)
		abs = append(abs, math.Abs(r.SteeringAngle))
	}
	if len(angles) > 0 {
		s.MeanAbsAngle = stat.Mean(abs, nil)
		s.MaxAbsAngle = maxOf(abs)
	}
	if len(angles) > 1 {
		s.AngleStdDev = stat.StdDev(angles, nil)
	}

	var end time.Time
	if len(rows) > 0 {
		end = rows[len(rows)-1].At
	}
	for _, e := range events {
		until := end
		if e.ResumedAt != nil {
			until = *e.ResumedAt
		}
		if until.After(e.StartedAt) {
			s.StoppedTime += until.Sub(e.StartedAt)
		}
	}
	return s
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = max(m, x)
	}
	return m
}

// SteeringPlot plots the smoothed and raw lane angles against the frame
// sequence, with a marker where each stop started.
func SteeringPlot(runID string, rows []db.DecisionRow, events []db.StopEvent) (*plot.Plot, error) {
	smoothed := make(plotter.XYs, 0, len(rows))
	raw := make(plotter.XYs, 0, len(rows))
	for _, r := range rows {
		if r.Skipped {
			continue
		}
		smoothed = append(smoothed, plotter.XY{X: float64(r.Seq), Y: r.SteeringAngle})
		if r.HasLane {
			raw = append(raw, plotter.XY{X: float64(r.Seq), Y: r.RawAngle})
		}
	}
	if len(smoothed) == 0 {
		return nil, ErrNoData
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Run %s - Steering Angle", shortID(runID))
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Angle (deg)"
	p.Add(plotter.NewGrid())

	if len(raw) > 0 {
		rawLine, err := plotter.NewLine(raw)
		if err != nil {
			return nil, err
		}
		rawLine.Color = rawColor
		rawLine.Width = vg.Points(1)
		p.Add(rawLine)
		p.Legend.Add("raw", rawLine)
	}

	line, err := plotter.NewLine(smoothed)
	if err != nil {
		return nil, err
	}
	line.Color = angleColor
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("smoothed", line)

	if err := addStopMarkers(p, events); err != nil {
		return nil, err
	}
	placeLegend(p)
	return p, nil
}

// StrengthPlot plots the signed actuator strength (left negative) and the
// throttle action against the frame sequence.
func StrengthPlot(runID string, rows []db.DecisionRow, events []db.StopEvent) (*plot.Plot, error) {
	strength := make(plotter.XYs, 0, len(rows))
	stopped := make(plotter.XYs, 0, len(rows))
	for _, r := range rows {
		if r.Skipped {
			continue
		}
		x := float64(r.Seq)
		strength = append(strength, plotter.XY{X: x, Y: float64(steering.Signed(r.Direction, r.Strength))})
		y := 0.0
		if r.Action == decision.Stop {
			y = steering.MaxStrength
		}
		stopped = append(stopped, plotter.XY{X: x, Y: y})
	}
	if len(strength) == 0 {
		return nil, ErrNoData
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Run %s - Steering Strength", shortID(runID))
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Strength (%)"
	p.Y.Min = -steering.MaxStrength
	p.Y.Max = steering.MaxStrength
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(strength)
	if err != nil {
		return nil, err
	}
	line.Color = strengthColor
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("strength", line)

	stopLine, err := plotter.NewLine(stopped)
	if err != nil {
		return nil, err
	}
	stopLine.Color = stopColor
	stopLine.Width = vg.Points(0.5)
	stopLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(stopLine)
	p.Legend.Add("stopped", stopLine)

	if err := addStopMarkers(p, events); err != nil {
		return nil, err
	}
	placeLegend(p)
	return p, nil
}

func addStopMarkers(p *plot.Plot, events []db.StopEvent) error {
	if len(events) == 0 {
		return nil
	}
	pts := make(plotter.XYs, len(events))
	for i, e := range events {
		pts[i] = plotter.XY{X: float64(e.StartedSeq), Y: 0}
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Shape = draw.CrossGlyph{}
	sc.GlyphStyle.Color = stopColor
	sc.GlyphStyle.Radius = vg.Points(4)
	p.Add(sc)
	p.Legend.Add("stop", sc)
	return nil
}

func placeLegend(p *plot.Plot) {
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// WriteRun saves steering.png and strength.png for the run into dir,
// creating it if needed, and returns the written paths.
func WriteRun(dir, runID string, rows []db.DecisionRow, events []db.StopEvent) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}

	plots := []struct {
		name  string
		build func(string, []db.DecisionRow, []db.StopEvent) (*plot.Plot, error)
	}{
		{"steering.png", SteeringPlot},
		{"strength.png", StrengthPlot},
	}
	var written []string
	for _, pl := range plots {
		p, err := pl.build(runID, rows, events)
		if err != nil {
			return written, err
		}
		path := filepath.Join(dir, pl.name)
		if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
			return written, fmt.Errorf("save %s: %w", pl.name, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// OutputDir returns <base>/<run id>/<timestamp> for a report generated at t.
func OutputDir(base, runID string, t time.Time) string {
	return filepath.Join(base, runID, t.Format("20060102_150405"))
}
