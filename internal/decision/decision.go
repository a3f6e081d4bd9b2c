// Package decision implements the timed stop-and-resume state machine that
// turns a smoothed lane angle and a debounced stop condition into a Decision.
package decision

import (
	"fmt"

	"github.com/banshee-data/lanepilot/internal/steering"
)

// Action is the throttle-level instruction for one tick.
type Action string

const (
	Forward Action = "forward"
	Stop    Action = "stop"
	// Turn is reserved. Turn intent is expressed through the steering angle
	// and Step never emits it.
	Turn Action = "turn"
)

// State is the coarse mode of the machine. It is diagnostic only.
type State string

const (
	Normal  State = "normal"
	Stopped State = "stopped"
	// Turning and Destination are reserved for sign-driven turns and route
	// completion. Step never enters them.
	Turning     State = "turning"
	Destination State = "destination"
)

// Decision is the complete output of one tick, ready for the actuator layer.
type Decision struct {
	Action        Action             `json:"action"`
	SteeringAngle float64            `json:"steering_angle"`
	Direction     steering.Direction `json:"direction"`
	Strength      int                `json:"strength"`
}

func (d Decision) String() string {
	return fmt.Sprintf("%s angle=%.2f %s(%d%%)", d.Action, d.SteeringAngle, d.Direction, d.Strength)
}

// Input is what the machine consumes each tick.
type Input struct {
	// LaneAngle is the smoothed steering angle. It is ignored when HasLane is
	// false and the carried angle is used instead.
	LaneAngle float64
	HasLane   bool
	// StopTriggered is the debounced stop condition (stop sign close, or a
	// red or yellow light).
	StopTriggered bool
}
