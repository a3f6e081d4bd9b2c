package serialmux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the actuator board firmware.
const DefaultBaudRate = 115200

// DefaultFrame is eight data bits, no parity, one stop bit.
const DefaultFrame = "8N1"

// PortOptions describes how to open the actuator port.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	Frame    string `json:"frame"` // data bits, parity, stop bits, e.g. "8N1" or "7E2"
}

// SerialMode checks the options and converts them for go.bug.st/serial.
// Zero values take the defaults.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	baud := o.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	frame := strings.ToUpper(strings.TrimSpace(o.Frame))
	if frame == "" {
		frame = DefaultFrame
	}
	if len(frame) != 3 {
		return nil, fmt.Errorf("invalid frame %q: want data bits, parity and stop bits like 8N1", o.Frame)
	}

	mode := &serial.Mode{BaudRate: baud}

	data := int(frame[0] - '0')
	if data < 5 || data > 8 {
		return nil, fmt.Errorf("invalid frame %q: data bits must be between 5 and 8", o.Frame)
	}
	mode.DataBits = data

	switch frame[1] {
	case 'N':
		mode.Parity = serial.NoParity
	case 'E':
		mode.Parity = serial.EvenParity
	case 'O':
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("invalid frame %q: parity must be N, E or O", o.Frame)
	}

	switch frame[2] {
	case '1':
		mode.StopBits = serial.OneStopBit
	case '2':
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid frame %q: stop bits must be 1 or 2", o.Frame)
	}
	return mode, nil
}
