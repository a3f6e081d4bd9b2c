// Package actuator converts decisions into PWM commands for the vehicle's
// throttle ESC and steering servo, and sends them to the actuator board.
package actuator

import (
	"fmt"
	"math"
	"strconv"

	"github.com/banshee-data/lanepilot/internal/decision"
	"github.com/banshee-data/lanepilot/internal/serialmux"
	"github.com/banshee-data/lanepilot/internal/steering"
)

// Mapping holds the PWM calibration of one vehicle.
type Mapping struct {
	FrequencyHz float64 `json:"frequency_hz"`
	Range       int     `json:"range"`

	// Throttle pulse widths in milliseconds.
	ForwardMS float64 `json:"forward_ms"`
	NeutralMS float64 `json:"neutral_ms"`
	ReverseMS float64 `json:"reverse_ms"`

	// Steering duty cycle at centre and the largest offset from it.
	CenterDuty  float64 `json:"center_duty"`
	MaxDutyDiff float64 `json:"max_duty_diff"`
}

// DefaultMapping is the calibration of the reference car.
func DefaultMapping() Mapping {
	return Mapping{
		FrequencyHz: 50,
		Range:       1000,
		ForwardMS:   1.32,
		NeutralMS:   1.5,
		ReverseMS:   1.64,
		CenterDuty:  53.5,
		MaxDutyDiff: 11,
	}
}

// Validate rejects calibrations that would produce out-of-range pulses.
func (m Mapping) Validate() error {
	if !(m.FrequencyHz > 0) {
		return fmt.Errorf("pwm frequency must be positive, got %v", m.FrequencyHz)
	}
	if m.Range <= 0 {
		return fmt.Errorf("pwm range must be positive, got %d", m.Range)
	}
	period := 1000 / m.FrequencyHz
	for name, ms := range map[string]float64{"forward": m.ForwardMS, "neutral": m.NeutralMS, "reverse": m.ReverseMS} {
		if !(ms > 0 && ms < period) {
			return fmt.Errorf("%s pulse %vms outside the %vms period", name, ms, period)
		}
	}
	if m.MaxDutyDiff < 0 || m.CenterDuty-m.MaxDutyDiff < 0 || m.CenterDuty+m.MaxDutyDiff > 100 {
		return fmt.Errorf("steering duty %v±%v leaves [0, 100]", m.CenterDuty, m.MaxDutyDiff)
	}
	return nil
}

// ThrottlePWM converts a pulse width to a PWM value in [0, Range].
func (m Mapping) ThrottlePWM(ms float64) int {
	period := 1000 / m.FrequencyHz
	return int(ms / period * float64(m.Range))
}

// SteeringDuty converts a steering percentage (-100 full left, +100 full
// right) to a servo duty cycle. The offset is truncated to a whole step.
func (m Mapping) SteeringDuty(percent int) float64 {
	percent = max(-100, min(percent, 100))
	return m.CenterDuty + math.Trunc(m.MaxDutyDiff*(float64(percent)/100))
}

// Command is one actuator update.
type Command struct {
	ThrottlePWM  int     `json:"throttle_pwm"`
	SteeringDuty float64 `json:"steering_duty"`
}

// Lines renders the command in the board's line protocol.
func (c Command) Lines() []string {
	return []string{
		serialmux.CmdThrottle + " " + strconv.Itoa(c.ThrottlePWM),
		serialmux.CmdSteering + " " + strconv.FormatFloat(c.SteeringDuty, 'f', -1, 64),
	}
}

// Neutral is the command that stops the wheels and centres the steering.
func (m Mapping) Neutral() Command {
	return Command{ThrottlePWM: m.ThrottlePWM(m.NeutralMS), SteeringDuty: m.CenterDuty}
}

// Command maps a decision to an actuator command. Stop idles the throttle;
// Forward drives at the forward pulse with steering set by direction and
// strength.
func (m Mapping) Command(d decision.Decision) Command {
	if d.Action != decision.Forward {
		return m.Neutral()
	}
	return Command{
		ThrottlePWM:  m.ThrottlePWM(m.ForwardMS),
		SteeringDuty: m.SteeringDuty(steering.Signed(d.Direction, d.Strength)),
	}
}
