package serialmux

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
)

var errPortClosed = errors.New("port closed")

// FakePort is an in-memory Port. Reads block until Feed supplies input,
// EndInput is called or the port is closed.
type FakePort struct {
	mu       sync.Mutex
	cond     *sync.Cond
	in       bytes.Buffer
	out      bytes.Buffer
	eof      bool
	closed   bool
	writeErr error

	// OnWrite, if set, sees every successful write.
	OnWrite func(p []byte)
}

func NewFakePort() *FakePort {
	p := &FakePort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *FakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.in.Len() == 0 && !p.eof && !p.closed {
		p.cond.Wait()
	}
	if p.in.Len() > 0 {
		return p.in.Read(b)
	}
	return 0, io.EOF
}

func (p *FakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, errPortClosed
	}
	if err := p.writeErr; err != nil {
		p.writeErr = nil
		p.mu.Unlock()
		return 0, err
	}
	p.out.Write(b)
	hook := p.OnWrite
	p.mu.Unlock()

	if hook != nil {
		hook(b)
	}
	return len(b), nil
}

func (p *FakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// Feed queues s to be read, as if the board had sent it.
func (p *FakePort) Feed(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.WriteString(s)
	p.cond.Broadcast()
}

// EndInput makes reads return io.EOF once queued input is consumed.
func (p *FakePort) EndInput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eof = true
	p.cond.Broadcast()
}

// FailNextWrite makes the next Write return err.
func (p *FakePort) FailNextWrite(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// Written returns everything written so far.
func (p *FakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

func (p *FakePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// NewMockSerialMux returns a SerialMux over a simulated board that
// acknowledges every command with "OK <command>".
func NewMockSerialMux() *SerialMux {
	port := NewFakePort()
	port.OnWrite = func(b []byte) {
		for _, line := range strings.Split(string(b), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				port.Feed("OK " + line + "\n")
			}
		}
	}
	return NewSerialMux(port)
}
