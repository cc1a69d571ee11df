package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/sweeney/tent-controller/internal/alert"
	"github.com/sweeney/tent-controller/internal/config"
	"github.com/sweeney/tent-controller/internal/device"
	"github.com/sweeney/tent-controller/internal/duty"
	"github.com/sweeney/tent-controller/internal/energy"
	"github.com/sweeney/tent-controller/internal/engine"
	"github.com/sweeney/tent-controller/internal/mqtt"
	"github.com/sweeney/tent-controller/internal/status"
)

var start = time.Date(2026, 3, 16, 23, 0, 0, 0, time.UTC)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Safe only from one goroutine at a time; runLoop's
// engine goroutine and its shutdown path never overlap.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type testRig struct {
	eng     *engine.Engine
	tracker *status.Tracker
	fanLog  *device.CommandLog
	dir     string
}

func newRig(t *testing.T, pub *mqtt.FakePublisher, humidity float64) *testRig {
	t.Helper()
	logger := zaptest.NewLogger(t)
	dir := t.TempDir()
	clock := fakeClock(start, time.Second)

	fanLog := &device.CommandLog{}
	devs := device.Devices{
		Fan: &device.FakeFan{State: device.FanStatus{Speed: 30}, Log: fanLog},
		Humidifier: &device.FakeHumidifier{Samples: []device.HumidifierStatus{
			{On: true, Humidity: humidity, HasHumidity: true, Target: 60, HasTarget: true},
		}},
	}

	tracker := status.NewTracker(start, status.Config{})
	eng := engine.New(engine.Options{
		Gateway:    device.NewGateway(devs, time.Second, clock, logger),
		Tracker:    duty.NewTracker(filepath.Join(dir, "runtime.json"), clock, logger),
		Ledger:     energy.NewLedger(filepath.Join(dir, "energy.json"), clock, logger),
		Settings:   config.NewSettingsStore(filepath.Join(dir, "settings.yaml"), logger),
		Alerts:     alert.DefaultConfig(),
		Status:     tracker,
		Publisher:  pub,
		Connection: pub,
		Location:   time.UTC,
		Now:        clock,
		Logger:     logger,
	})
	return &testRig{eng: eng, tracker: tracker, fanLog: fanLog, dir: dir}
}

// runRunLoop drives runLoop with nTicks ticks and then signal, returning
// runLoop's error.
func runRunLoop(t *testing.T, rig *testRig, pub *mqtt.FakePublisher, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(rig.eng, pub, pub, rig.tracker, func() time.Time { return start }, tick, sig, zaptest.NewLogger(t))
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	return <-errCh
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	rig := newRig(t, pub, 50)

	if err := runRunLoop(t, rig, pub, 3, syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	se := pub.SystemEvents[0]
	if se.Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN, got %q", se.Event)
	}
	if se.Reason != "SIGINT" {
		t.Errorf("expected reason SIGINT, got %q", se.Reason)
	}
	if !se.Retained {
		t.Error("expected Retained=true for SHUTDOWN")
	}
}

func TestRunLoopShutdownSIGTERMCarriesStatus(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	rig := newRig(t, pub, 50)

	if err := runRunLoop(t, rig, pub, 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.SystemPayloads) != 1 {
		t.Fatalf("expected 1 system payload, got %d", len(pub.SystemPayloads))
	}
	payload := string(pub.SystemPayloads[0])
	for _, want := range []string{`"event":"SHUTDOWN"`, `"reason":"SIGTERM"`, `"ticks":3`, `"connected":true`} {
		if !strings.Contains(payload, want) {
			t.Errorf("shutdown payload missing %s: %s", want, payload)
		}
	}
	if len(pub.StatusPayloads) != 3 {
		t.Errorf("expected 3 status payloads, got %d", len(pub.StatusPayloads))
	}
}

func TestRunLoopDrivesFan(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	rig := newRig(t, pub, 75)

	if err := runRunLoop(t, rig, pub, 2, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	got := rig.fanLog.Strings()
	if len(got) != 1 || got[0] != "fan:set_speed:100" {
		t.Errorf("fan commands: got %v, want [fan:set_speed:100]", got)
	}
}

func TestRunLoopSavesOnShutdown(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	rig := newRig(t, pub, 50)

	if err := runRunLoop(t, rig, pub, 1, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	for _, name := range []string{"runtime.json", "energy.json"} {
		if _, err := os.Stat(filepath.Join(rig.dir, name)); err != nil {
			t.Errorf("%s not saved: %v", name, err)
		}
	}
}

func TestRunLoopShutdownPublishError(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishSystemError = errors.New("broker down")
	rig := newRig(t, pub, 50)

	if err := runRunLoop(t, rig, pub, 1, syscall.SIGTERM); err != nil {
		t.Fatalf("publish failure must not fail shutdown: %v", err)
	}
}

func TestRunLoopTickChannelClosed(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	rig := newRig(t, pub, 50)
	tick := make(chan time.Time)
	close(tick)

	err := runLoop(rig.eng, pub, pub, rig.tracker, time.Now, tick, make(chan os.Signal), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(pub.SystemEvents) != 0 {
		t.Errorf("expected no SHUTDOWN without a signal, got %d events", len(pub.SystemEvents))
	}
}

func TestSignalName(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := signalName(tt.sig); got != tt.want {
			t.Errorf("signalName(%v): got %s, want %s", tt.sig, got, tt.want)
		}
	}
}

func TestBuildDevicesNoneConfigured(t *testing.T) {
	cfg := &config.Config{}
	devs, history, cleanup, err := buildDevices(cfg, mqtt.NewFakeBroker(), time.Now, time.UTC, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	if devs.Light != nil || devs.Humidifier != nil || devs.Fan != nil ||
		devs.Heater != nil || devs.Temperature != nil || devs.Meter != nil {
		t.Errorf("expected every slot nil, got %+v", devs)
	}
	if len(history) != 0 {
		t.Errorf("expected no history sources, got %d", len(history))
	}
}

func TestBuildDevicesConfigured(t *testing.T) {
	cfg := &config.Config{}
	cfg.MQTT.StaleAfter = time.Minute
	cfg.Devices.Timeout = time.Second
	cfg.Devices.ESP32.URL = "http://192.168.1.50"
	cfg.Devices.LightTopic = "tent_light"
	cfg.Devices.HeaterTopic = "tent_heater"
	cfg.Devices.MeterTopic = "tent_plug"
	cfg.Devices.HumidifierTopic = "dreo/tent"

	broker := mqtt.NewFakeBroker()
	devs, history, cleanup, err := buildDevices(cfg, broker, time.Now, time.UTC, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	if devs.Light == nil || devs.Humidifier == nil || devs.Fan == nil ||
		devs.Heater == nil || devs.Temperature == nil || devs.Meter == nil {
		t.Errorf("expected every slot set, got %+v", devs)
	}
	if len(history) != 1 {
		t.Errorf("expected the meter as history source, got %d", len(history))
	}

	want := "dreo/tent,stat/tent_heater/POWER,stat/tent_light/POWER,stat/tent_plug/POWER," +
		"tele/tent_heater/STATE,tele/tent_light/STATE,tele/tent_plug/SENSOR,tele/tent_plug/STATE"
	if got := broker.Topics(); got != want {
		t.Errorf("subscriptions:\ngot:  %s\nwant: %s", got, want)
	}
}

func TestBuildDevicesBrokerFailure(t *testing.T) {
	cfg := &config.Config{}
	cfg.Devices.LightTopic = "tent_light"
	broker := mqtt.NewFakeBroker()
	broker.PublishError = errors.New("offline")

	_, _, cleanup, err := buildDevices(cfg, broker, time.Now, time.UTC, zaptest.NewLogger(t))
	defer cleanup()
	if err == nil {
		t.Error("expected error when the light state query fails")
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := newLogger("debug", false); err != nil {
		t.Errorf("debug: unexpected error: %v", err)
	}
	if _, err := newLogger("warn", true); err != nil {
		t.Errorf("console: unexpected error: %v", err)
	}
	if _, err := newLogger("loud", false); err == nil {
		t.Error("expected error for unknown level")
	}
}
