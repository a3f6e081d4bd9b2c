// Package replay feeds recorded or scripted perception output through the
// pipeline in place of a camera. A fixture is JSON lines, one frame each:
//
//	{"lines":[[100,480,250,288]],"width":640,"height":480,"stop_close":false,"light":"red"}
//
// Blank lines and lines starting with # are ignored.
package replay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/banshee-data/lanepilot/internal/lane"
	"github.com/banshee-data/lanepilot/internal/perception"
	"github.com/banshee-data/lanepilot/internal/pipeline"
)

const maxLineBytes = 1 << 20

// FixtureFrame is one line of a fixture file.
type FixtureFrame struct {
	Lines     [][4]float64 `json:"lines"`
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	StopClose bool         `json:"stop_close,omitempty"`
	Light     string       `json:"light,omitempty"`
}

// Observation converts the fixture frame to detector output. Unknown light
// names read as no light.
func (f FixtureFrame) Observation() pipeline.Observation {
	segs := make([]lane.Segment, 0, len(f.Lines))
	for _, l := range f.Lines {
		segs = append(segs, lane.Segment{X1: l[0], Y1: l[1], X2: l[2], Y2: l[3]})
	}
	return pipeline.Observation{
		Lines:         segs,
		Width:         f.Width,
		Height:        f.Height,
		StopSignClose: f.StopClose,
		Light:         perception.ParseLightColor(f.Light),
	}
}

// FromObservation is the inverse of Observation.
func FromObservation(o pipeline.Observation) FixtureFrame {
	f := FixtureFrame{
		Lines:     make([][4]float64, 0, len(o.Lines)),
		Width:     o.Width,
		Height:    o.Height,
		StopClose: o.StopSignClose,
		Light:     string(o.Light),
	}
	for _, s := range o.Lines {
		f.Lines = append(f.Lines, [4]float64{s.X1, s.Y1, s.X2, s.Y2})
	}
	return f
}

// Decoder reads fixture frames from a stream.
type Decoder struct {
	sc   *bufio.Scanner
	line int
}

func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Decoder{sc: sc}
}

// Next returns the next frame, or io.EOF at the end of the stream.
func (d *Decoder) Next() (FixtureFrame, error) {
	for d.sc.Scan() {
		d.line++
		b := bytes.TrimSpace(d.sc.Bytes())
		if len(b) == 0 || b[0] == '#' {
			continue
		}
		var f FixtureFrame
		if err := json.Unmarshal(b, &f); err != nil {
			return FixtureFrame{}, fmt.Errorf("fixture line %d: %w", d.line, err)
		}
		return f, nil
	}
	if err := d.sc.Err(); err != nil {
		return FixtureFrame{}, fmt.Errorf("fixture line %d: %w", d.line+1, err)
	}
	return FixtureFrame{}, io.EOF
}

// WriteFixture writes frames in fixture format.
func WriteFixture(w io.Writer, frames []FixtureFrame) error {
	enc := json.NewEncoder(w)
	for i, f := range frames {
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("write fixture frame %d: %w", i, err)
		}
	}
	return nil
}
