package serialmux

import "io"

// Port is the byte stream to the actuator board. go.bug.st/serial ports
// satisfy it, as does FakePort.
type Port interface {
	io.ReadWriteCloser
}
