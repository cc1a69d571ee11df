package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/tent-controller/internal/device"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func meterSnap(w float64) device.Snapshot {
	return device.Snapshot{Meter: device.OK(device.MeterStatus{On: true, PowerW: w})}
}

func lightSnap(on bool) device.Snapshot {
	return device.Snapshot{Light: device.OK(device.LightStatus{On: on})}
}

func humidSnap(h device.HumidifierStatus) device.Snapshot {
	return device.Snapshot{Humidifier: device.OK(h)}
}

func TestPowerThresholdFiresOncePerCrossing(t *testing.T) {
	d := NewDebouncer(Config{PowerThresholdW: 200})

	var fired []int
	for i, w := range []float64{150, 150, 250, 260, 240, 210} {
		if n := d.Evaluate(meterSnap(w), t0.Add(time.Duration(i)*5*time.Second)); len(n) > 0 {
			require.Len(t, n, 1)
			assert.Equal(t, TagPower, n[0].Tag)
			fired = append(fired, i)
		}
	}
	assert.Equal(t, []int{2}, fired)
}

func TestPowerThresholdRearmsAfterDrop(t *testing.T) {
	d := NewDebouncer(Config{PowerThresholdW: 200})

	count := 0
	for _, w := range []float64{250, 200, 250, 250} {
		count += len(d.Evaluate(meterSnap(w), t0))
	}
	assert.Equal(t, 2, count, "first reading above fires, exact threshold is not above")
}

func TestPowerHoldsWhenMeterUnavailable(t *testing.T) {
	d := NewDebouncer(Config{PowerThresholdW: 200})

	assert.Len(t, d.Evaluate(meterSnap(250), t0), 1)
	assert.Empty(t, d.Evaluate(device.Snapshot{Meter: device.Unavailable[device.MeterStatus]("timeout")}, t0))
	assert.Empty(t, d.Evaluate(meterSnap(250), t0), "still above, no new crossing")
}

func TestLightEdge(t *testing.T) {
	d := NewDebouncer(DefaultConfig())

	assert.Empty(t, d.Evaluate(lightSnap(false), t0), "no previous value")
	assert.Empty(t, d.Evaluate(lightSnap(false), t0))

	n := d.Evaluate(lightSnap(true), t0)
	require.Len(t, n, 1)
	assert.Equal(t, "Light on", n[0].Title)

	n = d.Evaluate(lightSnap(false), t0)
	require.Len(t, n, 1)
	assert.Equal(t, "Light off", n[0].Title)
}

func TestLightEdgeForgetsAcrossOutage(t *testing.T) {
	d := NewDebouncer(DefaultConfig())

	d.Evaluate(lightSnap(false), t0)
	assert.Empty(t, d.Evaluate(device.Snapshot{Light: device.Unavailable[device.LightStatus]("offline")}, t0))
	assert.Empty(t, d.Evaluate(lightSnap(true), t0), "previous value unknown after outage")
	assert.Len(t, d.Evaluate(lightSnap(false), t0), 1)
}

func TestTankEmptyCooldown(t *testing.T) {
	d := NewDebouncer(DefaultConfig())
	empty := humidSnap(device.HumidifierStatus{TankEmpty: true})

	assert.Len(t, d.Evaluate(empty, t0), 1)
	assert.Empty(t, d.Evaluate(empty, t0.Add(time.Hour)))
	assert.Empty(t, d.Evaluate(empty, t0.Add(4*time.Hour-time.Second)))
	assert.Len(t, d.Evaluate(empty, t0.Add(4*time.Hour)), 1)
}

func TestTankCooldownOnlyResetsWhenSent(t *testing.T) {
	d := NewDebouncer(DefaultConfig())
	empty := humidSnap(device.HumidifierStatus{TankEmpty: true})
	full := humidSnap(device.HumidifierStatus{})

	assert.Len(t, d.Evaluate(empty, t0), 1)
	d.Evaluate(full, t0.Add(time.Hour))
	assert.Empty(t, d.Evaluate(empty, t0.Add(2*time.Hour)), "refill does not restart the cooldown")
}

func TestHumidityLowCooldown(t *testing.T) {
	d := NewDebouncer(DefaultConfig())
	low := humidSnap(device.HumidifierStatus{Humidity: 45, HasHumidity: true, Target: 60, HasTarget: true})
	edge := humidSnap(device.HumidifierStatus{Humidity: 50, HasHumidity: true, Target: 60, HasTarget: true})

	assert.Empty(t, d.Evaluate(edge, t0), "margin must be exceeded")

	n := d.Evaluate(low, t0)
	require.Len(t, n, 1)
	assert.Equal(t, TagHumidityLow, n[0].Tag)
	assert.Equal(t, "Humidity is 45%, target 60%.", n[0].Body)

	assert.Empty(t, d.Evaluate(low, t0.Add(14*time.Minute)))
	assert.Len(t, d.Evaluate(low, t0.Add(15*time.Minute)), 1)
}

func TestHumidityLowNeedsBothReadings(t *testing.T) {
	d := NewDebouncer(DefaultConfig())
	s := humidSnap(device.HumidifierStatus{Humidity: 10, HasHumidity: true})
	assert.Empty(t, d.Evaluate(s, t0))
}

func TestRuleOrder(t *testing.T) {
	d := NewDebouncer(DefaultConfig())
	d.Evaluate(device.Snapshot{Light: device.OK(device.LightStatus{On: false})}, t0)

	s := device.Snapshot{
		Light:      device.OK(device.LightStatus{On: true}),
		Meter:      device.OK(device.MeterStatus{PowerW: 500}),
		Humidifier: device.OK(device.HumidifierStatus{TankEmpty: true, Humidity: 20, HasHumidity: true, Target: 60, HasTarget: true}),
	}
	n := d.Evaluate(s, t0)
	require.Len(t, n, 4)
	assert.Equal(t, []Tag{TagLight, TagPower, TagTankEmpty, TagHumidityLow},
		[]Tag{n[0].Tag, n[1].Tag, n[2].Tag, n[3].Tag})
}
