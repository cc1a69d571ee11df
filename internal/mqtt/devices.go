package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/tent-controller/internal/device"
)

var (
	// ErrNoData is returned before a device has reported anything.
	ErrNoData = errors.New("no reading received")
	// ErrStale is returned when the last report is older than the staleness window.
	ErrStale = errors.New("reading is stale")
)

// tasmotaTimeLayout is the "Time" field format in Tasmota telemetry.
const tasmotaTimeLayout = "2006-01-02T15:04:05"

// latest holds the most recent value reported on a topic.
type latest[T any] struct {
	mu    sync.Mutex
	value T
	at    time.Time
}

func (l *latest[T]) update(fn func(*T), at time.Time) {
	l.mu.Lock()
	fn(&l.value)
	l.at = at
	l.mu.Unlock()
}

func (l *latest[T]) get(now time.Time, staleAfter time.Duration) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.at.IsZero() {
		var zero T
		return zero, ErrNoData
	}
	if staleAfter > 0 && now.Sub(l.at) > staleAfter {
		return l.value, fmt.Errorf("%w: last report %s ago", ErrStale, now.Sub(l.at).Truncate(time.Second))
	}
	return l.value, nil
}

func parsePower(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON", "1":
		return true, nil
	case "OFF", "0":
		return false, nil
	}
	return false, fmt.Errorf("unknown power state %q", s)
}

type tasmotaState struct {
	Power  string `json:"POWER"`
	Dimmer *int   `json:"Dimmer"`
}

type switchState struct {
	on     bool
	dimmer int
}

// Switch is a Tasmota-style relay socket. It serves as the light and as the
// heater socket.
type Switch struct {
	broker     Broker
	topic      string
	staleAfter time.Duration
	now        func() time.Time
	state      latest[switchState]
}

// NewSwitch creates a switch for the Tasmota device topic (e.g. "tent_light").
func NewSwitch(b Broker, topic string, staleAfter time.Duration, now func() time.Time) *Switch {
	return &Switch{broker: b, topic: topic, staleAfter: staleAfter, now: now}
}

// Start subscribes to state reports and asks the device for its state.
func (s *Switch) Start() error {
	if err := s.broker.Subscribe("stat/"+s.topic+"/POWER", 1, s.onPower); err != nil {
		return err
	}
	if err := s.broker.Subscribe("tele/"+s.topic+"/STATE", 0, s.onState); err != nil {
		return err
	}
	return s.broker.Publish("cmnd/"+s.topic+"/POWER", 1, false, nil)
}

func (s *Switch) onPower(_ string, payload []byte) {
	on, err := parsePower(string(payload))
	if err != nil {
		return
	}
	s.state.update(func(v *switchState) { v.on = on }, s.now())
}

func (s *Switch) onState(_ string, payload []byte) {
	var st tasmotaState
	if err := json.Unmarshal(payload, &st); err != nil {
		return
	}
	on, err := parsePower(st.Power)
	if err != nil {
		return
	}
	s.state.update(func(v *switchState) {
		v.on = on
		if st.Dimmer != nil {
			v.dimmer = *st.Dimmer
		}
	}, s.now())
}

func (s *Switch) command(payload string) error {
	return s.broker.Publish("cmnd/"+s.topic+"/POWER", 1, false, []byte(payload))
}

// TurnOn switches the relay on.
func (s *Switch) TurnOn(context.Context) error { return s.command("ON") }

// TurnOff switches the relay off.
func (s *Switch) TurnOff(context.Context) error { return s.command("OFF") }

// LightStatus reports the relay as a light.
func (s *Switch) LightStatus(context.Context) (device.LightStatus, error) {
	st, err := s.state.get(s.now(), s.staleAfter)
	if err != nil {
		return device.LightStatus{}, err
	}
	return device.LightStatus{On: st.on, Brightness: st.dimmer}, nil
}

// HeaterStatus reports the relay as the heater socket.
func (s *Switch) HeaterStatus(context.Context) (device.HeaterStatus, error) {
	st, err := s.state.get(s.now(), s.staleAfter)
	if err != nil {
		return device.HeaterStatus{}, err
	}
	return device.HeaterStatus{On: st.on}, nil
}

type tasmotaSensor struct {
	Time   string `json:"Time"`
	Energy *struct {
		Total     float64 `json:"Total"`
		Yesterday float64 `json:"Yesterday"`
		Today     float64 `json:"Today"`
		Power     float64 `json:"Power"`
	} `json:"ENERGY"`
}

type meterState struct {
	powerKnown bool
	on         bool
	powerW     float64
	todayKWh   float64
	yesterday  float64
	reported   time.Time // device clock, local time
}

// Meter is a Tasmota energy-monitoring plug.
type Meter struct {
	broker     Broker
	topic      string
	staleAfter time.Duration
	now        func() time.Time
	loc        *time.Location
	state      latest[meterState]
}

// NewMeter creates a meter for the Tasmota device topic. loc is the device's
// clock zone, used to date its daily counters.
func NewMeter(b Broker, topic string, staleAfter time.Duration, now func() time.Time, loc *time.Location) *Meter {
	return &Meter{broker: b, topic: topic, staleAfter: staleAfter, now: now, loc: loc}
}

// Start subscribes to energy telemetry and power state.
func (m *Meter) Start() error {
	if err := m.broker.Subscribe("tele/"+m.topic+"/SENSOR", 0, m.onSensor); err != nil {
		return err
	}
	if err := m.broker.Subscribe("tele/"+m.topic+"/STATE", 0, m.onState); err != nil {
		return err
	}
	return m.broker.Subscribe("stat/"+m.topic+"/POWER", 1, m.onPower)
}

func (m *Meter) onSensor(_ string, payload []byte) {
	var s tasmotaSensor
	if err := json.Unmarshal(payload, &s); err != nil || s.Energy == nil {
		return
	}
	now := m.now()
	reported, err := time.ParseInLocation(tasmotaTimeLayout, s.Time, m.loc)
	if err != nil {
		reported = now.In(m.loc)
	}
	m.state.update(func(v *meterState) {
		v.powerW = s.Energy.Power
		v.todayKWh = s.Energy.Today
		v.yesterday = s.Energy.Yesterday
		v.reported = reported
		if !v.powerKnown {
			v.on = s.Energy.Power > 0
		}
	}, now)
}

func (m *Meter) onState(_ string, payload []byte) {
	var st tasmotaState
	if err := json.Unmarshal(payload, &st); err != nil {
		return
	}
	m.setPower(st.Power)
}

func (m *Meter) onPower(_ string, payload []byte) {
	m.setPower(string(payload))
}

func (m *Meter) setPower(s string) {
	on, err := parsePower(s)
	if err != nil {
		return
	}
	m.state.mu.Lock()
	m.state.value.on = on
	m.state.value.powerKnown = true
	m.state.mu.Unlock()
}

// MeterStatus reports the latest energy telemetry.
func (m *Meter) MeterStatus(context.Context) (device.MeterStatus, error) {
	st, err := m.state.get(m.now(), m.staleAfter)
	if err != nil {
		return device.MeterStatus{}, err
	}
	return device.MeterStatus{On: st.on, PowerW: st.powerW, TodayKWh: st.todayKWh, Reported: st.reported}, nil
}

// DailyEnergy returns the days the plug still remembers that fall in month.
// A Tasmota plug only keeps yesterday's total, so this is at most one day.
func (m *Meter) DailyEnergy(_ context.Context, month time.Time) ([]device.DayEnergy, error) {
	st, err := m.state.get(m.now(), 0)
	if err != nil {
		return nil, err
	}
	y := st.reported.AddDate(0, 0, -1)
	day := time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, m.loc)
	if day.Year() != month.Year() || day.Month() != month.Month() {
		return nil, nil
	}
	return []device.DayEnergy{{Date: day, WattHours: st.yesterday * 1000}}, nil
}

type bridgeHumidifier struct {
	Power     bool     `json:"power"`
	Working   *bool    `json:"working"`
	Humidity  *float64 `json:"humidity"`
	Target    *float64 `json:"target"`
	TankEmpty bool     `json:"tank_empty"`
	Mode      string   `json:"mode"`
}

// Humidifier reads a humidifier through a bridge that publishes its state as
// JSON on one topic.
type Humidifier struct {
	broker     Broker
	topic      string
	staleAfter time.Duration
	now        func() time.Time
	state      latest[device.HumidifierStatus]
}

// NewHumidifier creates a humidifier adapter for the bridge topic.
func NewHumidifier(b Broker, topic string, staleAfter time.Duration, now func() time.Time) *Humidifier {
	return &Humidifier{broker: b, topic: topic, staleAfter: staleAfter, now: now}
}

// Start subscribes to the bridge topic.
func (h *Humidifier) Start() error {
	return h.broker.Subscribe(h.topic, 0, h.onMessage)
}

func (h *Humidifier) onMessage(_ string, payload []byte) {
	var b bridgeHumidifier
	if err := json.Unmarshal(payload, &b); err != nil {
		return
	}
	st := device.HumidifierStatus{
		On:        b.Power,
		TankEmpty: b.TankEmpty,
		Mode:      b.Mode,
	}
	if b.Humidity != nil {
		st.Humidity, st.HasHumidity = *b.Humidity, true
	}
	if b.Target != nil {
		st.Target, st.HasTarget = *b.Target, true
	}
	st.Working = working(b, st)
	h.state.update(func(v *device.HumidifierStatus) { *v = st }, h.now())
}

// working decides whether the humidifier is misting. An explicit flag wins.
// Otherwise a powered humidifier in manual mode always mists, and in the
// automatic modes it mists while below target.
func working(b bridgeHumidifier, st device.HumidifierStatus) bool {
	if b.Working != nil {
		return *b.Working && b.Power
	}
	if !b.Power || b.TankEmpty {
		return false
	}
	if strings.EqualFold(b.Mode, "manual") {
		return true
	}
	if st.HasHumidity && st.HasTarget {
		return st.Humidity < st.Target
	}
	return true
}

// HumidifierStatus reports the latest bridge state.
func (h *Humidifier) HumidifierStatus(context.Context) (device.HumidifierStatus, error) {
	return h.state.get(h.now(), h.staleAfter)
}
