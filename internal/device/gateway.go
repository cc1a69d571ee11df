package device

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single adapter call.
const DefaultTimeout = 5 * time.Second

// Devices holds the adapter for each slot. Nil slots report ErrNotConfigured.
type Devices struct {
	Light       LightDevice
	Humidifier  HumidifierDevice
	Fan         FanDevice
	Heater      ThermostatDevice
	Temperature TemperatureDevice
	Meter       MeterDevice
}

// Gateway fetches a Snapshot from all devices concurrently.
type Gateway struct {
	devices Devices
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewGateway creates a gateway over the given devices. A timeout <= 0 uses
// DefaultTimeout.
func NewGateway(devices Devices, timeout time.Duration, now func() time.Time, logger *zap.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{
		devices: devices,
		timeout: timeout,
		now:     now,
		logger:  logger.Named("gateway"),
	}
}

// Devices returns the wired adapters.
func (g *Gateway) Devices() Devices {
	return g.devices
}

// Fetch reads every device. It never fails: a device that errors, times out or
// panics is reported as Unavailable and the others are unaffected.
func (g *Gateway) Fetch(ctx context.Context) Snapshot {
	snap := Snapshot{Time: g.now()}

	var eg errgroup.Group
	eg.Go(func() error {
		snap.Light = fetch(ctx, g, KindLight, g.devices.Light != nil, func(ctx context.Context) (LightStatus, error) {
			return g.devices.Light.LightStatus(ctx)
		})
		return nil
	})
	eg.Go(func() error {
		snap.Humidifier = fetch(ctx, g, KindHumidifier, g.devices.Humidifier != nil, func(ctx context.Context) (HumidifierStatus, error) {
			return g.devices.Humidifier.HumidifierStatus(ctx)
		})
		return nil
	})
	eg.Go(func() error {
		snap.Fan = fetch(ctx, g, KindFan, g.devices.Fan != nil, func(ctx context.Context) (FanStatus, error) {
			return g.devices.Fan.FanStatus(ctx)
		})
		return nil
	})
	eg.Go(func() error {
		snap.Heater = fetch(ctx, g, KindHeater, g.devices.Heater != nil, func(ctx context.Context) (HeaterStatus, error) {
			return g.devices.Heater.HeaterStatus(ctx)
		})
		return nil
	})
	eg.Go(func() error {
		snap.Temperature = fetch(ctx, g, KindTemperature, g.devices.Temperature != nil, func(ctx context.Context) (TemperatureStatus, error) {
			return g.devices.Temperature.TemperatureStatus(ctx)
		})
		return nil
	})
	eg.Go(func() error {
		snap.Meter = fetch(ctx, g, KindMeter, g.devices.Meter != nil, func(ctx context.Context) (MeterStatus, error) {
			return g.devices.Meter.MeterStatus(ctx)
		})
		return nil
	})
	_ = eg.Wait()

	return snap
}

// fetch runs one adapter call under the gateway timeout. Each call writes a
// distinct Snapshot field, so the goroutines in Fetch do not race.
func fetch[T any](ctx context.Context, g *Gateway, kind Kind, configured bool, call func(context.Context) (T, error)) (st Status[T]) {
	if !configured {
		return Unavailable[T](ErrNotConfigured.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := call(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			g.logger.Debug("device unavailable", zap.String("device", string(kind)), zap.Error(r.err))
			return Unavailable[T](r.err.Error())
		}
		return OK(r.v)
	case <-ctx.Done():
		g.logger.Warn("device timeout", zap.String("device", string(kind)), zap.Duration("timeout", g.timeout))
		return Unavailable[T](fmt.Sprintf("timeout after %v", g.timeout))
	}
}
