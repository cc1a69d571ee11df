// Package recorder keeps an audit trail of what the controller did: every
// actuation, every notification and each day's energy total.
package recorder

import "time"

// Actuation is one command sent to a device.
type Actuation struct {
	Time   time.Time
	Device string // device kind, e.g. "fan"
	Action string // "turn_on", "turn_off", "set_speed"
	Value  int
	Reason string
	Err    string // empty on success
}

// Notification is one emitted alert.
type Notification struct {
	ID        string
	Time      time.Time
	Tag       string
	Title     string
	Body      string
	Delivered bool
}

// Recorder persists audit records.
type Recorder interface {
	RecordActuation(a Actuation) error
	RecordNotification(n Notification) error
	RecordDailyEnergy(date string, kwh, cost float64) error
	Close() error
}
