package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// Open returns the Board at path. DisabledPort gives a Disabled board.
func Open(path string, opts PortOptions) (Board, error) {
	if path == DisabledPort {
		return NewDisabled(), nil
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return NewSerialMux(port), nil
}

// ListPorts returns the serial ports present on the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
