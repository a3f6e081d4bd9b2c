// Package steering converts a signed steering angle into the discrete
// direction and magnitude understood by the actuator layer.
package steering

import (
	"fmt"
	"math"
)

// Direction is the coarse steering direction sent to the actuator.
type Direction string

const (
	Left     Direction = "left"
	Right    Direction = "right"
	Straight Direction = "straight"
)

const (
	// MaxAngle is the geometric steering limit in degrees.
	MaxAngle = 45.0
	// MaxStrength is the upper bound of the actuator strength scale.
	MaxStrength = 100

	DefaultDeadband = 5.0
	DefaultScale    = 100.0
)

// Mapper maps angles to (direction, strength) pairs. The zero value is not
// usable; construct with NewMapper or DefaultMapper.
type Mapper struct {
	deadband float64
	scale    float64
}

// NewMapper returns a Mapper with the given deadband (degrees) and strength
// scale. A full-lock angle of MaxAngle maps to scale, clamped to MaxStrength.
func NewMapper(deadband, scale float64) (*Mapper, error) {
	if math.IsNaN(deadband) || deadband < 0 || deadband >= MaxAngle {
		return nil, fmt.Errorf("deadband must be in [0, %.0f), got %v", MaxAngle, deadband)
	}
	if math.IsNaN(scale) || scale <= 0 {
		return nil, fmt.Errorf("strength scale must be positive, got %v", scale)
	}
	return &Mapper{deadband: deadband, scale: scale}, nil
}

// DefaultMapper returns a Mapper with a 5° deadband and a 0-100 scale.
func DefaultMapper() *Mapper {
	return &Mapper{deadband: DefaultDeadband, scale: DefaultScale}
}

// Deadband returns the configured deadband in degrees.
func (m *Mapper) Deadband() float64 { return m.deadband }

// Map returns the direction and strength for angle. Angles inside the
// deadband, and NaN, map to (Straight, 0).
func (m *Mapper) Map(angle float64) (Direction, int) {
	if math.IsNaN(angle) || math.Abs(angle) < m.deadband {
		return Straight, 0
	}

	dir := Right
	if angle < 0 {
		dir = Left
	}

	mag := math.Min(math.Abs(angle), MaxAngle)
	strength := int(math.Round(mag / MaxAngle * m.scale))
	if strength > MaxStrength {
		strength = MaxStrength
	}
	if strength < 0 {
		strength = 0
	}
	return dir, strength
}

// Signed folds direction into strength: negative for left, positive for
// right, zero when straight.
func Signed(dir Direction, strength int) int {
	switch dir {
	case Left:
		return -strength
	case Right:
		return strength
	}
	return 0
}
