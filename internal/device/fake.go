package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Command is one actuation recorded by a fake device.
type Command struct {
	Device Kind
	Action string // "turn_on", "turn_off", "set_speed"
	Value  int
}

func (c Command) String() string {
	if c.Action == "set_speed" {
		return fmt.Sprintf("%s:%s:%d", c.Device, c.Action, c.Value)
	}
	return fmt.Sprintf("%s:%s", c.Device, c.Action)
}

// CommandLog collects commands from several fakes in call order.
type CommandLog struct {
	mu       sync.Mutex
	commands []Command
}

func (l *CommandLog) add(c Command) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.commands = append(l.commands, c)
	l.mu.Unlock()
}

// Commands returns a copy of the recorded commands.
func (l *CommandLog) Commands() []Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Command, len(l.commands))
	copy(out, l.commands)
	return out
}

// Strings returns the recorded commands formatted with Command.String.
func (l *CommandLog) Strings() []string {
	cmds := l.Commands()
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.String()
	}
	return out
}

// FakeLight is a scripted light. TurnOn/TurnOff change the reported state.
type FakeLight struct {
	mu        sync.Mutex
	State     LightStatus
	ReadError error
	CmdError  error
	Log       *CommandLog
}

func (f *FakeLight) LightStatus(context.Context) (LightStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return LightStatus{}, f.ReadError
	}
	return f.State, nil
}

func (f *FakeLight) TurnOn(context.Context) error  { return f.set(true) }
func (f *FakeLight) TurnOff(context.Context) error { return f.set(false) }

func (f *FakeLight) set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Log.add(Command{Device: KindLight, Action: action(on)})
	if f.CmdError != nil {
		return f.CmdError
	}
	f.State.On = on
	return nil
}

// FakeHumidifier returns scripted statuses; once exhausted the last one repeats.
type FakeHumidifier struct {
	mu        sync.Mutex
	Samples   []HumidifierStatus
	index     int
	ReadError error
}

func (f *FakeHumidifier) HumidifierStatus(context.Context) (HumidifierStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return HumidifierStatus{}, f.ReadError
	}
	if len(f.Samples) == 0 {
		return HumidifierStatus{}, errors.New("no samples configured")
	}
	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s, nil
}

// FakeFan is a scripted fan. SetSpeed changes the reported speed.
type FakeFan struct {
	mu        sync.Mutex
	State     FanStatus
	ReadError error
	CmdError  error
	Log       *CommandLog
}

func (f *FakeFan) FanStatus(context.Context) (FanStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return FanStatus{}, f.ReadError
	}
	return f.State, nil
}

func (f *FakeFan) SetSpeed(_ context.Context, percent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Log.add(Command{Device: KindFan, Action: "set_speed", Value: percent})
	if f.CmdError != nil {
		return f.CmdError
	}
	f.State.Speed = percent
	return nil
}

// FakeHeater is a scripted heater socket.
type FakeHeater struct {
	mu        sync.Mutex
	State     HeaterStatus
	ReadError error
	CmdError  error
	Log       *CommandLog
}

func (f *FakeHeater) HeaterStatus(context.Context) (HeaterStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return HeaterStatus{}, f.ReadError
	}
	return f.State, nil
}

func (f *FakeHeater) TurnOn(context.Context) error  { return f.set(true) }
func (f *FakeHeater) TurnOff(context.Context) error { return f.set(false) }

func (f *FakeHeater) set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Log.add(Command{Device: KindHeater, Action: action(on)})
	if f.CmdError != nil {
		return f.CmdError
	}
	f.State.On = on
	return nil
}

// FakeTemperature returns a fixed sensor list.
type FakeTemperature struct {
	mu        sync.Mutex
	Sensors   []Sensor
	ReadError error
}

func (f *FakeTemperature) TemperatureStatus(context.Context) (TemperatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return TemperatureStatus{}, f.ReadError
	}
	out := make([]Sensor, len(f.Sensors))
	copy(out, f.Sensors)
	return TemperatureStatus{Sensors: out}, nil
}

// FakeMeter returns a fixed meter reading and, optionally, daily history keyed
// by "YYYY-MM".
type FakeMeter struct {
	mu           sync.Mutex
	State        MeterStatus
	ReadError    error
	History      map[string][]DayEnergy
	HistoryError error
	// Block, if set, makes MeterStatus wait for ctx cancellation.
	Block bool
}

func (f *FakeMeter) MeterStatus(ctx context.Context) (MeterStatus, error) {
	f.mu.Lock()
	block := f.Block
	st, err := f.State, f.ReadError
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return MeterStatus{}, ctx.Err()
	}
	return st, err
}

func (f *FakeMeter) DailyEnergy(_ context.Context, month time.Time) ([]DayEnergy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HistoryError != nil {
		return nil, f.HistoryError
	}
	return f.History[month.Format("2006-01")], nil
}

func action(on bool) string {
	if on {
		return "turn_on"
	}
	return "turn_off"
}
