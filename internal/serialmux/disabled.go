package serialmux

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

// DisabledPort is the port name that runs without an actuator board.
const DisabledPort = "none"

// Disabled is a Board with nothing attached, for bench runs with the wheels
// off the ground or no board at all. Commands are validated and counted but go
// nowhere, and the board never reports a line.
type Disabled struct {
	subs  subscribers
	stats linkCounters

	once sync.Once
	done chan struct{}
}

func NewDisabled() *Disabled {
	return &Disabled{done: make(chan struct{})}
}

func (d *Disabled) Subscribe() (string, chan string) { return d.subs.add(0) }

func (d *Disabled) Unsubscribe(id string) { d.subs.remove(id) }

func (d *Disabled) SendCommand(command string) error {
	if err := ValidateCommand(strings.TrimSpace(command)); err != nil {
		d.stats.rejected.Add(1)
		return err
	}
	d.stats.sent.Add(1)
	return nil
}

func (d *Disabled) Initialize() error {
	for _, command := range InitCommands {
		if err := d.SendCommand(command); err != nil {
			return err
		}
	}
	return nil
}

// Monitor waits for ctx or Close.
func (d *Disabled) Monitor(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return nil
	}
}

func (d *Disabled) Stats() LinkStats { return d.stats.snapshot() }

func (d *Disabled) AttachAdminRoutes(mux *http.ServeMux) { attachAdminRoutes(mux, d) }

func (d *Disabled) Close() error {
	d.once.Do(func() {
		d.subs.closeAll()
		close(d.done)
	})
	return nil
}
