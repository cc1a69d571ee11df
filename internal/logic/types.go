// Package logic contains the pure control policies for the tent: the fan
// humidity override, the heater thermostat and the light schedule.
// This package does no I/O. Time is always injectable via time.Time parameters,
// and every decision is returned to the caller, who performs the actuation.
package logic

import (
	"fmt"
	"time"
)

// Action is an on/off command a loop wants issued.
type Action string

const (
	ActionNone    Action = ""
	ActionTurnOn  Action = "turn_on"
	ActionTurnOff Action = "turn_off"
)

// actionFor returns the command needed to move from current to desired, or
// ActionNone if they already agree.
func actionFor(current, desired bool) Action {
	switch {
	case desired && !current:
		return ActionTurnOn
	case !desired && current:
		return ActionTurnOff
	}
	return ActionNone
}

// FanConfig controls the exhaust fan.
type FanConfig struct {
	DaySpeed     int     `yaml:"day_speed" json:"day_speed"`
	NightSpeed   int     `yaml:"night_speed" json:"night_speed"`
	OnThreshold  float64 `yaml:"on_threshold" json:"on_threshold"`
	OffThreshold float64 `yaml:"off_threshold" json:"off_threshold"`
}

// HeaterConfig controls the heater thermostat. Sensor selects one probe by
// name or address; empty means the mean of all valid probes.
type HeaterConfig struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	NightTemp float64 `yaml:"night_temp" json:"night_temp"`
	Sensor    string  `yaml:"sensor" json:"sensor"`
}

// LightConfig is the light schedule. Times are "HH:MM" local time.
type LightConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	OnTime  string `yaml:"on_time" json:"on_time"`
	OffTime string `yaml:"off_time" json:"off_time"`
}

// DefaultFanConfig returns the fan defaults.
func DefaultFanConfig() FanConfig {
	return FanConfig{DaySpeed: 75, NightSpeed: 30, OnThreshold: 10, OffThreshold: 5}
}

// DefaultHeaterConfig returns the heater defaults (disabled).
func DefaultHeaterConfig() HeaterConfig {
	return HeaterConfig{NightTemp: 20}
}

// DefaultLightConfig returns the light schedule defaults (disabled).
func DefaultLightConfig() LightConfig {
	return LightConfig{OnTime: "06:00", OffTime: "00:00"}
}

// Validate checks speed ranges and threshold ordering.
func (c FanConfig) Validate() error {
	if c.DaySpeed < 0 || c.DaySpeed > 100 {
		return fmt.Errorf("fan day_speed %d out of range 0-100", c.DaySpeed)
	}
	if c.NightSpeed < 0 || c.NightSpeed > 100 {
		return fmt.Errorf("fan night_speed %d out of range 0-100", c.NightSpeed)
	}
	if c.OffThreshold > c.OnThreshold {
		return fmt.Errorf("fan off_threshold %v above on_threshold %v", c.OffThreshold, c.OnThreshold)
	}
	return nil
}

// Validate checks the night target is plausible.
func (c HeaterConfig) Validate() error {
	if c.NightTemp < 0 || c.NightTemp > 40 {
		return fmt.Errorf("heater night_temp %v out of range 0-40", c.NightTemp)
	}
	return nil
}

// Validate checks both schedule times parse.
func (c LightConfig) Validate() error {
	if _, err := ParseClock(c.OnTime); err != nil {
		return fmt.Errorf("light on_time: %w", err)
	}
	if _, err := ParseClock(c.OffTime); err != nil {
		return fmt.Errorf("light off_time: %w", err)
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
