// Package gpio drives the heater relay from a GPIO output line.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"context"
	"fmt"

	"github.com/sweeney/tent-controller/internal/device"
)

// Line is a single digital output.
type Line interface {
	// Set drives the line to its logical on (true) or off state.
	Set(on bool) error

	// Value returns the logical state the line is driven to.
	Value() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Relay is a heater socket switched by a GPIO line. It implements
// device.ThermostatDevice.
type Relay struct {
	line Line
}

// NewRelay wraps line as the heater relay.
func NewRelay(line Line) *Relay {
	return &Relay{line: line}
}

// TurnOn energises the relay.
func (r *Relay) TurnOn(context.Context) error {
	if err := r.line.Set(true); err != nil {
		return fmt.Errorf("relay on: %w", err)
	}
	return nil
}

// TurnOff releases the relay.
func (r *Relay) TurnOff(context.Context) error {
	if err := r.line.Set(false); err != nil {
		return fmt.Errorf("relay off: %w", err)
	}
	return nil
}

// HeaterStatus reads back the driven state.
func (r *Relay) HeaterStatus(context.Context) (device.HeaterStatus, error) {
	on, err := r.line.Value()
	if err != nil {
		return device.HeaterStatus{}, fmt.Errorf("read relay: %w", err)
	}
	return device.HeaterStatus{On: on}, nil
}

// Close releases the line.
func (r *Relay) Close() error {
	return r.line.Close()
}
