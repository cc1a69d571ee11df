package logic

import (
	"time"

	"github.com/sweeney/tent-controller/internal/device"
)

const (
	// HeaterCheckInterval is the minimum time between thermostat evaluations.
	HeaterCheckInterval = 5 * time.Minute
	// HeaterDeadBand is the half-width of the night thermostat band in °C.
	HeaterDeadBand = 0.5
)

// Skip reasons reported in HeaterDecision.
const (
	SkipDisabled          = "disabled"
	SkipLightUnavailable  = "light unavailable"
	SkipHeaterUnavailable = "heater unavailable"
	SkipThrottled         = "throttled"
	SkipNoReading         = "no valid reading"
)

// HeaterInput is what the thermostat reads from one snapshot.
type HeaterInput struct {
	LightOn         bool
	LightAvailable  bool
	HeaterOn        bool
	HeaterAvailable bool
	Sensors         []device.Sensor
}

// HeaterDecision is the outcome of one thermostat call. Skipped names why
// no evaluation happened and is empty if it ran.
type HeaterDecision struct {
	Skipped    string
	Day        bool
	Reading    float64
	HasReading bool
	Action     Action
}

// Heater is the throttled day/night thermostat.
type Heater struct {
	lastCheck time.Time
}

// NewHeater creates a thermostat that evaluates on its first call.
func NewHeater() *Heater {
	return &Heater{}
}

// LastCheck returns when the thermostat last ran. Zero if never.
func (h *Heater) LastCheck() time.Time {
	return h.lastCheck
}

// Evaluate runs the thermostat at most once per HeaterCheckInterval. Skips for
// a disabled loop or missing devices do not consume the interval; once the
// throttle passes the check time is recorded even if no reading is found.
func (h *Heater) Evaluate(now time.Time, cfg HeaterConfig, in HeaterInput) HeaterDecision {
	if !cfg.Enabled {
		return HeaterDecision{Skipped: SkipDisabled}
	}
	if !in.LightAvailable {
		return HeaterDecision{Skipped: SkipLightUnavailable}
	}
	if !in.HeaterAvailable {
		return HeaterDecision{Skipped: SkipHeaterUnavailable}
	}
	if !h.lastCheck.IsZero() && now.Sub(h.lastCheck) < HeaterCheckInterval {
		return HeaterDecision{Skipped: SkipThrottled}
	}
	h.lastCheck = now

	d := HeaterDecision{Day: in.LightOn}
	d.Reading, d.HasReading = SelectReading(in.Sensors, cfg.Sensor)

	if in.LightOn {
		d.Action = actionFor(in.HeaterOn, true)
		return d
	}

	if !d.HasReading {
		d.Skipped = SkipNoReading
		return d
	}

	switch {
	case d.Reading < cfg.NightTemp-HeaterDeadBand:
		d.Action = actionFor(in.HeaterOn, true)
	case d.Reading > cfg.NightTemp+HeaterDeadBand:
		d.Action = actionFor(in.HeaterOn, false)
	}
	return d
}

// SelectReading picks the thermostat temperature. With a selector, only the
// probe matching it by name or address counts, and only if valid. Otherwise
// the mean of all valid probes is used.
func SelectReading(sensors []device.Sensor, selector string) (float64, bool) {
	if selector != "" {
		for _, s := range sensors {
			if s.Name == selector || s.Address == selector {
				return s.Celsius, s.Valid
			}
		}
		return 0, false
	}

	var sum float64
	var n int
	for _, s := range sensors {
		if s.Valid {
			sum += s.Celsius
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
