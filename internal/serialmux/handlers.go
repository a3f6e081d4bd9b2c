package serialmux

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
)

// DeviceState accumulates what the board has reported: the last acknowledged
// command, error lines and the latest telemetry values.
type DeviceState struct {
	mu        sync.Mutex
	lastAck   string
	acks      int
	errors    []string
	telemetry map[string]any
}

// maxErrors bounds the remembered error lines.
const maxErrors = 32

// NewDeviceState returns an empty DeviceState.
func NewDeviceState() *DeviceState {
	return &DeviceState{telemetry: make(map[string]any)}
}

// DeviceSnapshot is a copy of DeviceState for display.
type DeviceSnapshot struct {
	LastAck   string         `json:"last_ack"`
	Acks      int            `json:"acks"`
	Errors    []string       `json:"errors"`
	Telemetry map[string]any `json:"telemetry"`
}

// Snapshot returns a copy of the state.
func (d *DeviceState) Snapshot() DeviceSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	tel := make(map[string]any, len(d.telemetry))
	for k, v := range d.telemetry {
		tel[k] = v
	}
	return DeviceSnapshot{
		LastAck:   d.lastAck,
		Acks:      d.acks,
		Errors:    append([]string(nil), d.errors...),
		Telemetry: tel,
	}
}

func (d *DeviceState) handleAck(payload string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastAck = strings.TrimSpace(strings.TrimPrefix(payload, "OK"))
	d.acks++
}

func (d *DeviceState) handleError(payload string) {
	log.Printf("actuator board error: %s", payload)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors = append(d.errors, payload)
	if len(d.errors) > maxErrors {
		d.errors = d.errors[len(d.errors)-maxErrors:]
	}
}

func (d *DeviceState) handleTelemetry(payload string) error {
	var values map[string]any
	if err := json.Unmarshal([]byte(payload), &values); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %v", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range values {
		d.telemetry[k] = v
	}
	return nil
}

// HandleEvent classifies one line from the board and folds it into d.
func (d *DeviceState) HandleEvent(payload string) error {
	switch ClassifyPayload(payload) {
	case EventTypeAck:
		d.handleAck(payload)
	case EventTypeError:
		d.handleError(payload)
	case EventTypeTelemetry:
		if err := d.handleTelemetry(payload); err != nil {
			return fmt.Errorf("failed to handle telemetry line: %w", err)
		}
	default:
		log.Printf("unknown actuator line: %s", payload)
	}
	return nil
}
