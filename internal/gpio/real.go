//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealLine drives an output on the Linux GPIO character device.
type RealLine struct {
	chip       *gpiocdev.Chip
	line       *gpiocdev.Line
	activeHigh bool
}

// NewRealLine requests pin on chip as an output, initially off. Most relay
// boards are active low; set activeHigh for boards that are not.
func NewRealLine(chipName string, pin int, activeHigh bool) (*RealLine, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	l := &RealLine{chip: chip, activeHigh: activeHigh}
	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(l.raw(false)))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request pin %d: %w", pin, err)
	}
	l.line = line
	return l, nil
}

func (l *RealLine) raw(on bool) int {
	if on == l.activeHigh {
		return 1
	}
	return 0
}

// Set drives the line.
func (l *RealLine) Set(on bool) error {
	if err := l.line.SetValue(l.raw(on)); err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

// Value returns the logical state of the line.
func (l *RealLine) Value() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin: %w", err)
	}
	return v == l.raw(true), nil
}

// Close switches the relay off, then returns the pin to an input with
// pull-down (the Pi boot default) so the heater is not left energised.
func (l *RealLine) Close() error {
	var errs []error

	if l.line != nil {
		if err := l.line.SetValue(l.raw(false)); err != nil {
			errs = append(errs, fmt.Errorf("switch off: %w", err))
		}
		if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin: %w", err))
		}
		if err := l.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin: %w", err))
		}
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
