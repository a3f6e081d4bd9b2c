package serialmux

import "strings"

const (
	EventTypeAck       = "ack"
	EventTypeError     = "error"
	EventTypeTelemetry = "telemetry"
	EventTypeUnknown   = "unknown"
)

// ClassifyPayload inspects a line reported by the board and returns an event
// type token.
func ClassifyPayload(payload string) string {
	switch {
	case strings.HasPrefix(payload, "OK"):
		return EventTypeAck
	case strings.HasPrefix(payload, "ERR"):
		return EventTypeError
	case strings.HasPrefix(payload, "{"):
		return EventTypeTelemetry
	default:
		return EventTypeUnknown
	}
}
