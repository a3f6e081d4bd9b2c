package decision

import (
	"fmt"
	"time"

	"github.com/banshee-data/lanepilot/internal/steering"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

// DefaultStopDuration is how long the vehicle holds at a stop condition.
const DefaultStopDuration = 3 * time.Second

// StopWait tracks an in-progress mandatory stop.
type StopWait struct {
	Active    bool
	StartedAt time.Time
}

// Transition describes what the last Step did to the stop wait. The pipeline
// uses it to record stop events.
type Transition int

const (
	NoTransition Transition = iota
	StopStarted
	StopResumed
)

// Machine is the decision state machine. It is not safe for concurrent use;
// one goroutine advances it per tick.
type Machine struct {
	clock        timeutil.Clock
	mapper       *steering.Mapper
	stopDuration time.Duration

	state        State
	wait         StopWait
	lastSteering float64
	lastChange   Transition
}

// NewMachine returns a Machine in the Normal state.
func NewMachine(clock timeutil.Clock, mapper *steering.Mapper, stopDuration time.Duration) (*Machine, error) {
	if clock == nil {
		return nil, fmt.Errorf("decision machine requires a clock")
	}
	if mapper == nil {
		return nil, fmt.Errorf("decision machine requires a steering mapper")
	}
	if stopDuration < 0 {
		return nil, fmt.Errorf("stop duration must not be negative, got %v", stopDuration)
	}
	return &Machine{
		clock:        clock,
		mapper:       mapper,
		stopDuration: stopDuration,
		state:        Normal,
	}, nil
}

// Step advances the machine by one tick. Once a stop has started the vehicle
// holds for the full stop duration: the trigger clearing does not end the
// wait early and the trigger repeating does not extend it.
func (m *Machine) Step(in Input) Decision {
	m.lastChange = NoTransition

	if m.wait.Active {
		if m.clock.Since(m.wait.StartedAt) >= m.stopDuration {
			m.wait = StopWait{}
			m.state = Normal
			m.lastChange = StopResumed
			return m.forward(in)
		}
		m.state = Stopped
		return m.stop()
	}

	if in.StopTriggered {
		m.wait = StopWait{Active: true, StartedAt: m.clock.Now()}
		m.state = Stopped
		m.lastChange = StopStarted
		return m.stop()
	}

	m.state = Normal
	return m.forward(in)
}

func (m *Machine) forward(in Input) Decision {
	angle := m.lastSteering
	if in.HasLane {
		angle = in.LaneAngle
		m.lastSteering = angle
	}
	dir, strength := m.mapper.Map(angle)
	return Decision{Action: Forward, SteeringAngle: angle, Direction: dir, Strength: strength}
}

func (m *Machine) stop() Decision {
	dir, strength := m.mapper.Map(0)
	return Decision{Action: Stop, SteeringAngle: 0, Direction: dir, Strength: strength}
}

// State returns the current coarse state.
func (m *Machine) State() State { return m.state }

// Wait returns a copy of the current stop wait.
func (m *Machine) Wait() StopWait { return m.wait }

// LastSteering returns the angle carried as fallback for ticks without lane data.
func (m *Machine) LastSteering() float64 { return m.lastSteering }

// LastTransition reports how the most recent Step changed the stop wait.
func (m *Machine) LastTransition() Transition { return m.lastChange }

// Remaining returns how much of an active stop wait is left, or zero.
func (m *Machine) Remaining() time.Duration {
	if !m.wait.Active {
		return 0
	}
	left := m.stopDuration - m.clock.Since(m.wait.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}
