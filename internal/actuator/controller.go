package actuator

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/pipeline"
	"github.com/banshee-data/lanepilot/internal/serialmux"
)

// Controller sends a command for every decided record. It implements
// pipeline.Sink.
type Controller struct {
	mux     serialmux.Board
	mapping Mapping

	mu   sync.Mutex
	last Command
	sent bool
}

// NewController returns a Controller writing through mux.
func NewController(mux serialmux.Board, mapping Mapping) (*Controller, error) {
	if mux == nil {
		return nil, fmt.Errorf("actuator controller requires a serial mux")
	}
	if err := mapping.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actuator mapping: %w", err)
	}
	return &Controller{mux: mux, mapping: mapping}, nil
}

// Start initialises the board, configures the PWM timing and parks the
// vehicle.
func (c *Controller) Start() error {
	if err := c.mux.Initialize(); err != nil {
		return err
	}
	pwm := serialmux.CmdPWM + " " + strconv.FormatFloat(c.mapping.FrequencyHz, 'f', -1, 64) + " " + strconv.Itoa(c.mapping.Range)
	if err := c.mux.SendCommand(pwm); err != nil {
		return fmt.Errorf("configure pwm: %w", err)
	}
	return c.Neutralize()
}

// Record implements pipeline.Sink. Skipped records leave the actuators as
// they are.
func (c *Controller) Record(_ context.Context, r pipeline.Record) error {
	if r.Skipped {
		return nil
	}
	return c.send(c.mapping.Command(r.Decision))
}

// Neutralize idles the throttle and centres the steering.
func (c *Controller) Neutralize() error {
	monitoring.Logf("actuator: neutral")
	return c.send(c.mapping.Neutral())
}

func (c *Controller) send(cmd Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range cmd.Lines() {
		if err := c.mux.SendCommand(line); err != nil {
			return fmt.Errorf("send %q: %w", line, err)
		}
	}
	c.last, c.sent = cmd, true
	return nil
}

// Last returns the most recently sent command.
func (c *Controller) Last() (Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.sent
}
