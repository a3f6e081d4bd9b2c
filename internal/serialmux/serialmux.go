// Package serialmux owns the serial link to the actuator board. Commands from
// any goroutine are validated and written one line at a time, and every line
// the board reports is fanned out to subscribers.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

var ErrWriteFailed = errors.New("short write to actuator port")

// InitCommands are sent by Initialize: reset every output to its safe value
// and turn on command acknowledgements so DeviceState can track them.
var InitCommands = []string{
	CmdReset,
	CmdEcho + " 1",
}

// Board is the actuator link as the rest of the program sees it.
type Board interface {
	// Subscribe returns a channel of lines reported by the board and the ID
	// to pass to Unsubscribe.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand validates command and writes it as one line.
	SendCommand(string) error
	// Initialize puts the board into a known state.
	Initialize() error
	// Monitor reads board lines until ctx ends or the port closes.
	Monitor(context.Context) error
	Stats() LinkStats
	// AttachAdminRoutes adds the command console and live tail under
	// /debug/. tsweb limits these to localhost and the tailnet.
	AttachAdminRoutes(*http.ServeMux)
	Close() error
}

// LinkStats counts traffic on the link since it was opened.
type LinkStats struct {
	CommandsSent     uint64 `json:"commands_sent"`
	CommandsRejected uint64 `json:"commands_rejected"`
	WriteErrors      uint64 `json:"write_errors"`
	LinesRead        uint64 `json:"lines_read"`
	LinesDropped     uint64 `json:"lines_dropped"`
}

type linkCounters struct {
	sent, rejected, writeErrors, read, dropped atomic.Uint64
}

func (c *linkCounters) snapshot() LinkStats {
	return LinkStats{
		CommandsSent:     c.sent.Load(),
		CommandsRejected: c.rejected.Load(),
		WriteErrors:      c.writeErrors.Load(),
		LinesRead:        c.read.Load(),
		LinesDropped:     c.dropped.Load(),
	}
}

// subscriberBuffer is how many lines a subscriber may fall behind before
// lines are dropped for it.
const subscriberBuffer = 64

// subscribers is the fan-out set shared by SerialMux and Disabled.
type subscribers struct {
	mu      sync.Mutex
	chans   map[string]chan string
	closing bool
}

func (s *subscribers) add(buffer int) (string, chan string) {
	b := make([]byte, 8)
	crand.Read(b)
	id := hex.EncodeToString(b)
	ch := make(chan string, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		close(ch)
		return id, ch
	}
	if s.chans == nil {
		s.chans = make(map[string]chan string)
	}
	s.chans[id] = ch
	return id, ch
}

func (s *subscribers) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.chans[id]; ok {
		close(ch)
		delete(s.chans, id)
	}
}

// publish offers line to every subscriber and returns how many were too far
// behind to take it. It reports false once the set is closed.
func (s *subscribers) publish(line string) (dropped int, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return 0, false
	}
	for _, ch := range s.chans {
		select {
		case ch <- line:
		default:
			dropped++
		}
	}
	return dropped, true
}

// closeAll closes every channel. It reports false if already closed.
func (s *subscribers) closeAll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.closing = true
	for id, ch := range s.chans {
		close(ch)
		delete(s.chans, id)
	}
	return true
}

func (s *subscribers) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chans)
}

// SerialMux is the Board over a real or fake port.
type SerialMux struct {
	port  Port
	subs  subscribers
	stats linkCounters

	writeMu sync.Mutex
}

// NewSerialMux returns a SerialMux writing to and reading from port.
func NewSerialMux(port Port) *SerialMux {
	return &SerialMux{port: port}
}

func (s *SerialMux) Subscribe() (string, chan string) { return s.subs.add(subscriberBuffer) }

func (s *SerialMux) Unsubscribe(id string) { s.subs.remove(id) }

func (s *SerialMux) Stats() LinkStats { return s.stats.snapshot() }

func (s *SerialMux) Initialize() error {
	for _, command := range InitCommands {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send start command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand writes command followed by a newline. Commands outside the
// board's command set are rejected with ErrInvalidCommand and never written.
func (s *SerialMux) SendCommand(command string) error {
	command = strings.TrimSpace(command)
	if err := ValidateCommand(command); err != nil {
		s.stats.rejected.Add(1)
		return err
	}
	line := command + "\n"

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.port.Write([]byte(line))
	if err == nil && n != len(line) {
		err = ErrWriteFailed
	}
	if err != nil {
		s.stats.writeErrors.Add(1)
		return err
	}
	s.stats.sent.Add(1)
	return nil
}

// Monitor scans lines from the port and fans them out. A subscriber that is
// subscriberBuffer lines behind misses lines rather than stalling the board.
// End of input returns nil.
func (s *SerialMux) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)
	lines := make(chan string)
	scanErr := make(chan error, 1)

	// Scan blocks, so it runs apart from the loop that watches ctx.
	go func() {
		defer close(lines)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				scanErr <- ctx.Err()
				return
			}
		}
		scanErr <- scan.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			s.stats.read.Add(1)
			dropped, open := s.subs.publish(line)
			if !open {
				return nil
			}
			s.stats.dropped.Add(uint64(dropped))
		}
	}
}

// Close closes every subscriber channel, then the port.
func (s *SerialMux) Close() error {
	s.subs.closeAll()
	return s.port.Close()
}

func (s *SerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, s)
}
