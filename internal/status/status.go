// Package status provides a thread-safe view of controller state for the
// HTTP handlers and MQTT status events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/tent-controller/internal/alert"
	"github.com/sweeney/tent-controller/internal/config"
	"github.com/sweeney/tent-controller/internal/device"
	"github.com/sweeney/tent-controller/internal/duty"
	"github.com/sweeney/tent-controller/internal/energy"
	"github.com/sweeney/tent-controller/internal/logic"
)

// MaxNotifications is how many recent notifications the status keeps.
const MaxNotifications = 20

// Config contains daemon configuration for display.
type Config struct {
	IntervalMs     int64
	SaveIntervalMs int64
	Broker         string
	HTTPAddr       string
	Timezone       string
	Price          float64
	Currency       string
}

// Energy summarises the ledger at one tick.
type Energy struct {
	Today   energy.Record
	Month   energy.Record
	Year    energy.Record
	History []energy.Day
	Monthly []energy.Month
}

// Control is the state of the control loops after one tick.
type Control struct {
	FanMode         logic.Mode
	HeaterLastCheck time.Time
	HeaterSkipped   string
}

// Tick is everything the engine reports after one tick.
type Tick struct {
	Devices  device.Snapshot
	Runtime  duty.Metrics
	Control  Control
	Energy   Energy
	Settings config.Settings
}

// Snapshot is a point-in-time view of controller state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Tick
	Ticks         int64
	Notifications []alert.Notification // newest first
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetClock replaces the clock used to stamp snapshots.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Update replaces the per-tick state. Called by the engine once per tick.
func (t *Tracker) Update(tick Tick) {
	t.mu.Lock()
	t.snap.Tick = tick
	t.snap.Ticks++
	t.mu.Unlock()
}

// AddNotifications prepends ns, keeping the newest MaxNotifications.
func (t *Tracker) AddNotifications(ns []alert.Notification) {
	if len(ns) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	merged := make([]alert.Notification, 0, len(ns)+len(t.snap.Notifications))
	for i := len(ns) - 1; i >= 0; i-- {
		merged = append(merged, ns[i])
	}
	merged = append(merged, t.snap.Notifications...)
	if len(merged) > MaxNotifications {
		merged = merged[:MaxNotifications]
	}
	t.snap.Notifications = merged
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}
