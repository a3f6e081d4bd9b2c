package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/steering"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

func newMachine(t *testing.T) (*Machine, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	m, err := NewMachine(clock, steering.DefaultMapper(), DefaultStopDuration)
	require.NoError(t, err)
	return m, clock
}

func TestNewMachine_Validation(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	_, err := NewMachine(nil, steering.DefaultMapper(), time.Second)
	assert.Error(t, err)
	_, err = NewMachine(clock, nil, time.Second)
	assert.Error(t, err)
	_, err = NewMachine(clock, steering.DefaultMapper(), -time.Second)
	assert.Error(t, err)

	m, err := NewMachine(clock, steering.DefaultMapper(), 0)
	require.NoError(t, err)
	assert.Equal(t, Normal, m.State())
}

func TestStep_ForwardFollowsLane(t *testing.T) {
	t.Parallel()

	m, _ := newMachine(t)
	got := m.Step(Input{LaneAngle: 10, HasLane: true})

	assert.Equal(t, Decision{Action: Forward, SteeringAngle: 10, Direction: steering.Right, Strength: 22}, got)
	assert.Equal(t, Normal, m.State())
	assert.False(t, m.Wait().Active)
}

func TestStep_StopLatchesForFullDuration(t *testing.T) {
	t.Parallel()

	m, clock := newMachine(t)
	start := clock.Now()

	got := m.Step(Input{LaneAngle: 12, HasLane: true, StopTriggered: true})
	assert.Equal(t, Decision{Action: Stop, Direction: steering.Straight}, got)
	assert.Equal(t, Stopped, m.State())
	assert.Equal(t, StopStarted, m.LastTransition())
	assert.Equal(t, StopWait{Active: true, StartedAt: start}, m.Wait())

	// Trigger clears, but the wait holds.
	clock.Advance(time.Second)
	got = m.Step(Input{LaneAngle: 5, HasLane: true})
	assert.Equal(t, Stop, got.Action)
	assert.Equal(t, NoTransition, m.LastTransition())
	assert.Equal(t, 2*time.Second, m.Remaining())

	// Trigger repeats, but the wait is not extended.
	clock.Advance(time.Second)
	m.Step(Input{StopTriggered: true})
	assert.Equal(t, start, m.Wait().StartedAt)

	clock.Advance(1100 * time.Millisecond)
	got = m.Step(Input{LaneAngle: 5, HasLane: true})
	assert.Equal(t, Decision{Action: Forward, SteeringAngle: 5, Direction: steering.Right, Strength: 11}, got)
	assert.Equal(t, Normal, m.State())
	assert.Equal(t, StopResumed, m.LastTransition())
	assert.Zero(t, m.Remaining())
}

func TestStep_ResumeIgnoresTriggerOnExpiryTick(t *testing.T) {
	t.Parallel()

	m, clock := newMachine(t)
	m.Step(Input{StopTriggered: true})
	clock.Advance(DefaultStopDuration)

	got := m.Step(Input{LaneAngle: -20, HasLane: true, StopTriggered: true})
	assert.Equal(t, Forward, got.Action)
	assert.Equal(t, steering.Left, got.Direction)
	assert.Equal(t, 44, got.Strength)

	// The next tick may start a fresh stop.
	got = m.Step(Input{StopTriggered: true})
	assert.Equal(t, Stop, got.Action)
	assert.Equal(t, StopStarted, m.LastTransition())
}

func TestStep_CarriesLastAngleWithoutLane(t *testing.T) {
	t.Parallel()

	m, _ := newMachine(t)

	got := m.Step(Input{})
	assert.Equal(t, Decision{Action: Forward, Direction: steering.Straight}, got)

	m.Step(Input{LaneAngle: -30, HasLane: true})
	got = m.Step(Input{})
	assert.Equal(t, -30.0, got.SteeringAngle)
	assert.Equal(t, steering.Left, got.Direction)
	assert.Equal(t, 67, got.Strength)
	assert.Equal(t, -30.0, m.LastSteering())
}

func TestStep_StopDoesNotOverwriteCarriedAngle(t *testing.T) {
	t.Parallel()

	m, clock := newMachine(t)
	m.Step(Input{LaneAngle: 15, HasLane: true})
	m.Step(Input{StopTriggered: true})
	clock.Advance(4 * time.Second)

	got := m.Step(Input{})
	assert.Equal(t, Forward, got.Action)
	assert.Equal(t, 15.0, got.SteeringAngle)
}

func TestStep_ZeroStopDurationResumesNextTick(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(100, 0))
	m, err := NewMachine(clock, steering.DefaultMapper(), 0)
	require.NoError(t, err)

	assert.Equal(t, Stop, m.Step(Input{StopTriggered: true}).Action)
	assert.Equal(t, Forward, m.Step(Input{StopTriggered: true}).Action)
}

func TestDecision_String(t *testing.T) {
	t.Parallel()

	d := Decision{Action: Forward, SteeringAngle: 10, Direction: steering.Right, Strength: 22}
	assert.Equal(t, "forward angle=10.00 right(22%)", d.String())
}
