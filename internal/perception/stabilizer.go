// Package perception debounces noisy per-frame detector outputs.
//
// Each signal channel owns one Stabilizer holding the last N raw samples.
// The zero value of the sample type means "nothing detected": it is stored in
// the window (so it displaces older detections) but never counts as a vote.
package perception

import "fmt"

// DefaultHistorySize is the window length used by the original tracker.
const DefaultHistorySize = 5

// LightColor is the colour reported by the traffic-light detector. The zero
// value LightNone means no light was seen.
type LightColor string

const (
	LightNone   LightColor = ""
	LightRed    LightColor = "red"
	LightYellow LightColor = "yellow"
	LightGreen  LightColor = "green"
)

// ParseLightColor accepts the detector's colour names; anything else,
// including the empty string, is LightNone.
func ParseLightColor(s string) LightColor {
	switch LightColor(s) {
	case LightRed, LightYellow, LightGreen:
		return LightColor(s)
	default:
		return LightNone
	}
}

// Halts reports whether the colour requires the vehicle to stop.
func (c LightColor) Halts() bool {
	return c == LightRed || c == LightYellow
}

// Stabilizer is a fixed-capacity FIFO of samples for a single channel.
// It is not safe for concurrent use; the pipeline goroutine owns it.
type Stabilizer[T comparable] struct {
	buf   []T
	start int
	size  int
}

// NewStabilizer returns a Stabilizer that keeps the last capacity samples.
func NewStabilizer[T comparable](capacity int) (*Stabilizer[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("history capacity must be positive, got %d", capacity)
	}
	return &Stabilizer[T]{buf: make([]T, capacity)}, nil
}

// Update appends a sample, evicting the oldest one once the window is full.
func (s *Stabilizer[T]) Update(sample T) {
	if s.size < len(s.buf) {
		s.buf[(s.start+s.size)%len(s.buf)] = sample
		s.size++
		return
	}
	s.buf[s.start] = sample
	s.start = (s.start + 1) % len(s.buf)
}

// Len returns the number of samples currently held.
func (s *Stabilizer[T]) Len() int { return s.size }

// Cap returns the window capacity.
func (s *Stabilizer[T]) Cap() int { return len(s.buf) }

// Samples returns the window contents, oldest first.
func (s *Stabilizer[T]) Samples() []T {
	out := make([]T, s.size)
	for i := range out {
		out[i] = s.buf[(s.start+i)%len(s.buf)]
	}
	return out
}

// MostCommon returns the most frequent non-zero sample if it occurs at least
// minCount times. When two values share the highest count, the one whose
// first occurrence is oldest wins.
func (s *Stabilizer[T]) MostCommon(minCount int) (T, bool) {
	var zero, best T
	bestCount := 0
	counts := make(map[T]int, s.size)
	order := make([]T, 0, s.size)

	for i := 0; i < s.size; i++ {
		v := s.buf[(s.start+i)%len(s.buf)]
		if v == zero {
			continue
		}
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}

	if bestCount == 0 || bestCount < minCount {
		return zero, false
	}
	return best, true
}

// RecentlyTrue reports whether at least minCount samples in the window are
// non-zero, regardless of where in the window they sit.
func (s *Stabilizer[T]) RecentlyTrue(minCount int) bool {
	var zero T
	n := 0
	for i := 0; i < s.size; i++ {
		if s.buf[(s.start+i)%len(s.buf)] != zero {
			n++
		}
	}
	return n >= minCount
}

// Reset clears the window.
func (s *Stabilizer[T]) Reset() {
	var zero T
	for i := range s.buf {
		s.buf[i] = zero
	}
	s.start, s.size = 0, 0
}
