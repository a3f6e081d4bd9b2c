package serialmux

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCommand is returned for lines the board firmware would reject.
var ErrInvalidCommand = errors.New("invalid actuator command")

// Board commands. Arguments are space separated.
const (
	CmdReset    = "RST"  // all outputs to their safe values
	CmdEcho     = "ECHO" // ECHO 0|1: acknowledge commands with "OK <command>"
	CmdPWM      = "PWM"  // PWM <frequency hz> <range>
	CmdThrottle = "THR"  // THR <pwm value>
	CmdSteering = "STR"  // STR <duty percent>
)

// CommandHelp lists the command set for the admin console.
var CommandHelp = []string{
	CmdReset,
	CmdEcho + " 0|1",
	CmdPWM + " <frequency hz> <range>",
	CmdThrottle + " <pwm value>",
	CmdSteering + " <duty percent>",
}

// ValidateCommand checks command (without its newline) against the board's
// command set.
func ValidateCommand(command string) error {
	if strings.ContainsAny(command, "\r\n") {
		return fmt.Errorf("%w: %q spans more than one line", ErrInvalidCommand, command)
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidCommand)
	}
	args := fields[1:]
	bad := func(reason string) error {
		return fmt.Errorf("%w: %q %s", ErrInvalidCommand, command, reason)
	}

	switch fields[0] {
	case CmdReset:
		if len(args) != 0 {
			return bad("takes no arguments")
		}
	case CmdEcho:
		if len(args) != 1 || (args[0] != "0" && args[0] != "1") {
			return bad("wants 0 or 1")
		}
	case CmdPWM:
		if len(args) != 2 {
			return bad("wants frequency and range")
		}
		if f, err := strconv.ParseFloat(args[0], 64); err != nil || f <= 0 {
			return bad("frequency must be a positive number")
		}
		if r, err := strconv.Atoi(args[1]); err != nil || r <= 0 {
			return bad("range must be a positive integer")
		}
	case CmdThrottle:
		if len(args) != 1 {
			return bad("wants one value")
		}
		if v, err := strconv.Atoi(args[0]); err != nil || v < 0 {
			return bad("value must be a non-negative integer")
		}
	case CmdSteering:
		if len(args) != 1 {
			return bad("wants one value")
		}
		if v, err := strconv.ParseFloat(args[0], 64); err != nil || v < 0 || v > 100 {
			return bad("duty must be between 0 and 100")
		}
	default:
		return bad("unknown command")
	}
	return nil
}
