//go:build !linux

package gpio

import "errors"

// NewRealLine is only available on Linux.
func NewRealLine(chipName string, pin int, activeHigh bool) (Line, error) {
	return nil, errors.New("gpio: character device not supported on this platform")
}
