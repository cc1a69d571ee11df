// Package engine runs the periodic control tick: it fetches every device,
// feeds the runtime tracker and energy ledger, runs the fan, heater and light
// loops, raises notifications and publishes the resulting status.
//
// All mutable control state is owned by the single goroutine that calls Tick
// (usually through Run). Other goroutines only see status snapshots.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/tent-controller/internal/alert"
	"github.com/sweeney/tent-controller/internal/config"
	"github.com/sweeney/tent-controller/internal/device"
	"github.com/sweeney/tent-controller/internal/duty"
	"github.com/sweeney/tent-controller/internal/energy"
	"github.com/sweeney/tent-controller/internal/logic"
	"github.com/sweeney/tent-controller/internal/metrics"
	"github.com/sweeney/tent-controller/internal/mqtt"
	"github.com/sweeney/tent-controller/internal/recorder"
	"github.com/sweeney/tent-controller/internal/status"
)

const (
	// DefaultSaveInterval is how often the tracker and ledger are written.
	DefaultSaveInterval = 60 * time.Second
	// DefaultHistoryDays is the length of the energy history in the status.
	DefaultHistoryDays = 7
	// DefaultCommandTimeout bounds one actuation or notification delivery.
	DefaultCommandTimeout = 5 * time.Second
)

// SettingsSource supplies the current control settings.
type SettingsSource interface {
	Get() config.Settings
}

// Options wires an Engine. Gateway, Tracker, Ledger and Settings are
// required; the rest may be left zero.
type Options struct {
	Gateway  *device.Gateway
	Tracker  *duty.Tracker
	Ledger   *energy.Ledger
	Settings SettingsSource
	Alerts   alert.Config
	Notifier alert.Notifier
	Recorder recorder.Recorder
	Metrics  *metrics.Metrics
	Status   *status.Tracker

	// Publisher receives the status after every tick. Connection, if set,
	// is reported in the status.
	Publisher  mqtt.Publisher
	Connection mqtt.ConnectionStatus

	// History are the sources consulted by Backfill, in order.
	History        []device.HistoryMeter
	BackfillMonths int

	Price          float64
	SaveInterval   time.Duration
	HistoryDays    int
	CommandTimeout time.Duration
	Location       *time.Location
	Now            func() time.Time
	Logger         *zap.Logger
}

// Engine is the tick scheduler.
type Engine struct {
	opts      Options
	devices   device.Devices
	fan       *logic.FanLoop
	heater    *logic.Heater
	debouncer *alert.Debouncer
	lastSave  time.Time
	lastSkip  string
	backfill  chan struct{}
	logger    *zap.Logger
}

// New creates an engine. Missing optional collaborators get no-op defaults.
func New(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Recorder == nil {
		opts.Recorder = recorder.NewNoopRecorder()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.SaveInterval <= 0 {
		opts.SaveInterval = DefaultSaveInterval
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = DefaultHistoryDays
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}

	return &Engine{
		opts:      opts,
		devices:   opts.Gateway.Devices(),
		fan:       logic.NewFanLoop(),
		heater:    logic.NewHeater(),
		debouncer: alert.NewDebouncer(opts.Alerts),
		lastSave:  opts.Now(),
		backfill:  make(chan struct{}, 1),
		logger:    opts.Logger.Named("engine"),
	}
}

// FanMode returns the humidity override state.
func (e *Engine) FanMode() logic.Mode { return e.fan.Mode() }

// HeaterLastCheck returns when the thermostat last evaluated.
func (e *Engine) HeaterLastCheck() time.Time { return e.heater.LastCheck() }

// Tick runs one control cycle. It never fails: device, actuation,
// notification and persistence errors are logged and the cycle continues.
func (e *Engine) Tick(ctx context.Context) {
	snap := e.opts.Gateway.Fetch(ctx)
	now := snap.Time
	e.opts.Metrics.ObserveSnapshot(snap)

	e.opts.Tracker.Update(snap.HumidifierWorking())
	e.recordEnergy(snap)

	settings := e.opts.Settings.Get()
	e.runFan(ctx, snap, settings.Fan)
	e.runHeater(ctx, now, snap, settings.Heater)
	e.runLight(ctx, now, snap, settings.Light)

	notes := e.debouncer.Evaluate(snap, now)
	for _, n := range notes {
		e.deliver(ctx, n)
	}

	if now.Sub(e.lastSave) >= e.opts.SaveInterval {
		e.save(now)
	}

	e.publish(snap, settings, notes)
}

func (e *Engine) date(t time.Time) string {
	return t.In(e.opts.Location).Format(energy.DateLayout)
}

// recordEnergy files the meter's running total under the day the meter read
// it, so a reading from before midnight never lands on the new day.
func (e *Engine) recordEnergy(snap device.Snapshot) {
	if !snap.Meter.Available {
		return
	}
	at := snap.Time
	if r := snap.Meter.Value.Reported; !r.IsZero() {
		at = r
	}
	if err := e.opts.Ledger.RecordDaily(e.date(at), snap.Meter.Value.TodayKWh, e.opts.Price); err != nil {
		e.opts.Metrics.Error("energy")
		e.logger.Warn("record daily energy", zap.Error(err))
	}
}

func (e *Engine) runFan(ctx context.Context, snap device.Snapshot, cfg logic.FanConfig) {
	h := snap.Humidifier
	in := logic.FanInput{
		Humidity:   h.Value.Humidity,
		Target:     h.Value.Target,
		HasReading: h.Available && h.Value.HasHumidity && h.Value.HasTarget,
		LightOn:    snap.LightOn(),
		Speed:      snap.Fan.Value.Speed,
	}
	d := e.fan.Evaluate(in, cfg)
	if d.Transition {
		e.logger.Info("fan mode changed",
			zap.String("mode", string(d.Mode)),
			zap.Float64("humidity", in.Humidity),
			zap.Float64("target", in.Target))
	}
	if !snap.Fan.Available || !d.SetSpeed || e.devices.Fan == nil {
		return
	}
	reason := fmt.Sprintf("%s mode, light %s", d.Mode, onOff(in.LightOn))
	e.actuate(ctx, device.KindFan, "set_speed", d.Speed, reason, func(ctx context.Context) error {
		return e.devices.Fan.SetSpeed(ctx, d.Speed)
	})
}

func (e *Engine) runHeater(ctx context.Context, now time.Time, snap device.Snapshot, cfg logic.HeaterConfig) {
	in := logic.HeaterInput{
		LightOn:         snap.LightOn(),
		LightAvailable:  snap.Light.Available,
		HeaterOn:        snap.Heater.Value.On,
		HeaterAvailable: snap.Heater.Available,
	}
	if snap.Temperature.Available {
		in.Sensors = snap.Temperature.Value.Sensors
	}

	d := e.heater.Evaluate(now, cfg, in)
	if d.Skipped != logic.SkipThrottled {
		e.lastSkip = d.Skipped
	}
	if d.Skipped == logic.SkipNoReading {
		e.logger.Warn("thermostat has no valid reading", zap.String("sensor", cfg.Sensor))
	}
	if d.Action == logic.ActionNone || e.devices.Heater == nil {
		return
	}

	reason := "day"
	if !d.Day {
		reason = fmt.Sprintf("night, %.1f °C vs target %.1f °C", d.Reading, cfg.NightTemp)
	}
	e.switchDevice(ctx, device.KindHeater, d.Action, reason, e.devices.Heater)
}

func (e *Engine) runLight(ctx context.Context, now time.Time, snap device.Snapshot, cfg logic.LightConfig) {
	if !snap.Light.Available || e.devices.Light == nil {
		return
	}
	d, err := logic.EvaluateLight(now.In(e.opts.Location), cfg, snap.Light.Value.On)
	if err != nil {
		e.opts.Metrics.Error("light")
		e.logger.Warn("light schedule", zap.Error(err))
		return
	}
	if d.Action == logic.ActionNone {
		return
	}
	reason := fmt.Sprintf("schedule %s-%s", cfg.OnTime, cfg.OffTime)
	e.switchDevice(ctx, device.KindLight, d.Action, reason, e.devices.Light)
}

func (e *Engine) switchDevice(ctx context.Context, kind device.Kind, action logic.Action, reason string, sw device.Switch) {
	fn := sw.TurnOff
	if action == logic.ActionTurnOn {
		fn = sw.TurnOn
	}
	e.actuate(ctx, kind, string(action), 0, reason, fn)
}

// actuate sends one command, then logs, counts and records it. A panicking
// adapter is reported as a failed command.
func (e *Engine) actuate(ctx context.Context, kind device.Kind, action string, value int, reason string, fn func(context.Context) error) {
	err := e.call(ctx, fn)

	fields := []zap.Field{
		zap.String("device", string(kind)),
		zap.String("action", action),
		zap.String("reason", reason),
	}
	if action == "set_speed" {
		fields = append(fields, zap.Int("value", value))
	}
	if err != nil {
		e.logger.Warn("actuation failed", append(fields, zap.Error(err))...)
	} else {
		e.logger.Info("actuation", fields...)
	}
	e.opts.Metrics.Actuation(kind, action, err)

	rec := recorder.Actuation{
		Time:   e.opts.Now(),
		Device: string(kind),
		Action: action,
		Value:  value,
		Reason: reason,
	}
	if err != nil {
		rec.Err = err.Error()
	}
	if rerr := e.opts.Recorder.RecordActuation(rec); rerr != nil {
		e.opts.Metrics.Error("recorder")
		e.logger.Warn("record actuation", zap.Error(rerr))
	}
}

func (e *Engine) call(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, e.opts.CommandTimeout)
	defer cancel()
	return fn(ctx)
}

// deliver sends n through the notifier. Failures are logged and swallowed.
func (e *Engine) deliver(ctx context.Context, n alert.Notification) {
	var err error
	if e.opts.Notifier != nil {
		err = e.call(ctx, func(ctx context.Context) error {
			return e.opts.Notifier.Notify(ctx, n.Title, n.Body, string(n.Tag))
		})
	}
	if err != nil {
		e.logger.Warn("notification failed", zap.String("tag", string(n.Tag)), zap.Error(err))
	} else {
		e.logger.Info("notification", zap.String("tag", string(n.Tag)), zap.String("title", n.Title))
	}
	e.opts.Metrics.Notification(string(n.Tag), err)

	rec := recorder.Notification{
		Time:      n.Time,
		Tag:       string(n.Tag),
		Title:     n.Title,
		Body:      n.Body,
		Delivered: err == nil && e.opts.Notifier != nil,
	}
	if rerr := e.opts.Recorder.RecordNotification(rec); rerr != nil {
		e.opts.Metrics.Error("recorder")
		e.logger.Warn("record notification", zap.Error(rerr))
	}
}

func (e *Engine) save(now time.Time) {
	e.lastSave = now
	if err := e.Flush(); err != nil {
		e.opts.Metrics.Error("persistence")
		e.logger.Warn("save state", zap.Error(err))
	}

	date := e.date(now)
	if rec, ok := e.opts.Ledger.Get(date); ok {
		if err := e.opts.Recorder.RecordDailyEnergy(date, rec.KWh, rec.Cost); err != nil {
			e.opts.Metrics.Error("recorder")
			e.logger.Warn("record daily energy", zap.Error(err))
		}
	}
}

// Flush writes the tracker and ledger. Both are attempted even if the first
// fails.
func (e *Engine) Flush() error {
	return errors.Join(e.opts.Tracker.Save(), e.opts.Ledger.Save())
}

func (e *Engine) energySummary(now time.Time) status.Energy {
	l := e.opts.Ledger
	today, _ := l.Get(e.date(now))
	return status.Energy{
		Today:   today,
		Month:   l.MonthTotal(now.In(e.opts.Location)),
		Year:    l.YearTotal(now.In(e.opts.Location)),
		History: l.HistoryRange(now.In(e.opts.Location), e.opts.HistoryDays),
		Monthly: l.MonthlyBreakdown(),
	}
}

func (e *Engine) publish(snap device.Snapshot, settings config.Settings, notes []alert.Notification) {
	runtime := e.opts.Tracker.Metrics()
	e.opts.Metrics.SetDuty(runtime.Day, runtime.Week, runtime.AllTime)
	e.opts.Metrics.SetFanOverride(e.fan.Override())
	e.opts.Metrics.TickDone(snap.Time.Unix())

	st := e.opts.Status
	if st == nil {
		return
	}
	st.Update(status.Tick{
		Devices: snap,
		Runtime: runtime,
		Control: status.Control{
			FanMode:         e.fan.Mode(),
			HeaterLastCheck: e.heater.LastCheck(),
			HeaterSkipped:   e.lastSkip,
		},
		Energy:   e.energySummary(snap.Time),
		Settings: settings,
	})
	st.AddNotifications(notes)
	if e.opts.Connection != nil {
		st.SetMQTTConnected(e.opts.Connection.IsConnected())
	}

	if e.opts.Publisher == nil {
		return
	}
	payload := status.FormatStatusEvent(st.Snapshot(), "STATUS", "")
	if err := e.opts.Publisher.PublishStatus(payload); err != nil {
		e.opts.Metrics.Error("mqtt")
		e.logger.Warn("publish error", zap.Error(err))
	}
}

// RequestBackfill asks Run to backfill the ledger before its next tick.
// Requests made while one is pending are merged.
func (e *Engine) RequestBackfill() {
	select {
	case e.backfill <- struct{}{}:
	default:
	}
}

// Backfill fills ledger gaps from every history source in turn. A failing
// source is logged and the next one is tried.
func (e *Engine) Backfill(ctx context.Context) {
	now := e.opts.Now().In(e.opts.Location)
	for i, src := range e.opts.History {
		res, err := energy.RunBackfill(ctx, e.opts.Ledger, src, now, e.opts.BackfillMonths, e.opts.Price)
		if err != nil {
			e.opts.Metrics.Error("backfill")
			e.logger.Warn("backfill source failed", zap.Int("source", i), zap.Error(err))
		}
		e.logger.Info("backfill complete",
			zap.Int("source", i),
			zap.Int("months", res.Months),
			zap.Int("fetched", res.Fetched),
			zap.Int("inserted", res.Inserted),
			zap.Int("failed", res.Failed))
	}
}

// Run ticks on every receive from ticks until ctx is cancelled or ticks is
// closed, then flushes state. Backfill requests are served between ticks so
// the ledger keeps a single writer.
func (e *Engine) Run(ctx context.Context, ticks <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return e.Flush()
		case <-e.backfill:
			e.Backfill(ctx)
		case _, ok := <-ticks:
			if !ok {
				return e.Flush()
			}
			e.safeTick(ctx)
		}
	}
}

func (e *Engine) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.opts.Metrics.Error("tick")
			e.logger.Error("tick panic", zap.Any("panic", r))
		}
	}()
	e.Tick(ctx)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
