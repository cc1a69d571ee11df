// Package device defines the capability interfaces the controller uses to talk
// to tent hardware, the per-device status snapshot types, and the gateway that
// fetches every device once per tick.
//
// Adapters (ESP32 HTTP, MQTT, GPIO) live in their own packages and only need to
// satisfy these interfaces.
package device

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is reported for device slots with no adapter wired in.
var ErrNotConfigured = errors.New("not configured")

// Kind names a device slot in the tent.
type Kind string

const (
	KindLight       Kind = "light"
	KindHumidifier  Kind = "humidifier"
	KindFan         Kind = "fan"
	KindHeater      Kind = "heater"
	KindTemperature Kind = "temperature"
	KindMeter       Kind = "meter"
)

// Status is the result of asking one device for its state. Either Available is
// true and Value holds the reading, or Reason explains why it is missing.
type Status[T any] struct {
	Available bool
	Reason    string
	Value     T
}

// OK wraps a successful reading.
func OK[T any](v T) Status[T] {
	return Status[T]{Available: true, Value: v}
}

// Unavailable reports a device that could not be read this tick.
func Unavailable[T any](reason string) Status[T] {
	return Status[T]{Reason: reason}
}

// LightStatus is the grow light socket state.
type LightStatus struct {
	On         bool
	Brightness int
}

// HumidifierStatus is the humidifier state. Humidity and Target are only
// meaningful when their Has* flag is set.
type HumidifierStatus struct {
	On          bool
	Working     bool // actively misting
	TankEmpty   bool
	Mode        string
	Humidity    float64
	HasHumidity bool
	Target      float64
	HasTarget   bool
}

// FanStatus is the PWM exhaust fan state.
type FanStatus struct {
	Speed int // percent, 0-100
	RPM   int
}

// HeaterStatus is the heater socket state.
type HeaterStatus struct {
	On bool
}

// Sensor is one temperature probe reading.
type Sensor struct {
	Address string
	Name    string
	Celsius float64
	Valid   bool
}

// TemperatureStatus lists every probe on the bus.
type TemperatureStatus struct {
	Sensors []Sensor
}

// MeterStatus is the energy-reporting plug state.
type MeterStatus struct {
	On       bool
	PowerW   float64
	TodayKWh float64
	// Reported is when the meter took the reading. TodayKWh belongs to
	// Reported's day, not the poll's. Zero when the meter has no clock.
	Reported time.Time
}

// DayEnergy is one day of historical consumption reported by a meter.
type DayEnergy struct {
	Date      time.Time
	WattHours float64
}

// Switch turns an on/off device on or off.
type Switch interface {
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
}

// SpeedSetter sets a fan speed in percent.
type SpeedSetter interface {
	SetSpeed(ctx context.Context, percent int) error
}

// LightDevice is the grow light.
type LightDevice interface {
	Switch
	LightStatus(ctx context.Context) (LightStatus, error)
}

// HumidifierDevice is the humidifier. It is read-only to the controller.
type HumidifierDevice interface {
	HumidifierStatus(ctx context.Context) (HumidifierStatus, error)
}

// FanDevice is the exhaust fan.
type FanDevice interface {
	SpeedSetter
	FanStatus(ctx context.Context) (FanStatus, error)
}

// ThermostatDevice is the heater socket driven by the thermostat loop.
type ThermostatDevice interface {
	Switch
	HeaterStatus(ctx context.Context) (HeaterStatus, error)
}

// TemperatureDevice reads the temperature probes.
type TemperatureDevice interface {
	TemperatureStatus(ctx context.Context) (TemperatureStatus, error)
}

// MeterDevice reads the energy meter.
type MeterDevice interface {
	MeterStatus(ctx context.Context) (MeterStatus, error)
}

// HistoryMeter is implemented by meters that keep their own long-term daily
// history. month is any time within the month to fetch.
type HistoryMeter interface {
	DailyEnergy(ctx context.Context, month time.Time) ([]DayEnergy, error)
}

// Snapshot is every device's status at one tick.
type Snapshot struct {
	Time        time.Time
	Light       Status[LightStatus]
	Humidifier  Status[HumidifierStatus]
	Fan         Status[FanStatus]
	Heater      Status[HeaterStatus]
	Temperature Status[TemperatureStatus]
	Meter       Status[MeterStatus]
}

// LightOn reports whether the light is known to be on.
func (s Snapshot) LightOn() bool {
	return s.Light.Available && s.Light.Value.On
}

// HumidifierWorking reports whether the humidifier is known to be misting.
// An unavailable humidifier counts as not working.
func (s Snapshot) HumidifierWorking() bool {
	return s.Humidifier.Available && s.Humidifier.Value.Working
}
