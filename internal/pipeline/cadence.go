package pipeline

import "fmt"

// Cadence admits every Nth frame. The counter is advanced before the check,
// so with interval 5 the 5th, 10th, ... frames are admitted.
type Cadence struct {
	interval int
	count    uint64
}

// NewCadence returns a Cadence admitting one frame in interval.
func NewCadence(interval int) (*Cadence, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("detection interval must be positive, got %d", interval)
	}
	return &Cadence{interval: interval}, nil
}

// Admit counts a frame and reports whether it should be analysed.
func (c *Cadence) Admit() bool {
	c.count++
	return c.count%uint64(c.interval) == 0
}

// Count returns the number of frames seen.
func (c *Cadence) Count() uint64 { return c.count }
