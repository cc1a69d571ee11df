package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/tent-controller/internal/device"
)

func TestObserveSnapshot(t *testing.T) {
	m := New()
	sensors := []device.Sensor{
		{Address: "28-aa", Name: "canopy", Celsius: 24.5, Valid: true},
		{Address: "28-bb", Celsius: 21, Valid: true},
		{Address: "28-cc", Name: "broken", Celsius: -127},
	}
	m.ObserveSnapshot(device.Snapshot{
		Light:       device.OK(device.LightStatus{On: true}),
		Humidifier:  device.OK(device.HumidifierStatus{On: true, Working: true, Humidity: 52, HasHumidity: true, Target: 60, HasTarget: true}),
		Fan:         device.OK(device.FanStatus{Speed: 75}),
		Heater:      device.Unavailable[device.HeaterStatus]("timeout"),
		Temperature: device.OK(device.TemperatureStatus{Sensors: sensors}),
		Meter:       device.OK(device.MeterStatus{On: true, PowerW: 180, TodayKWh: 1.2}),
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.available.WithLabelValues("light")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.available.WithLabelValues("heater")))
	assert.Equal(t, 52.0, testutil.ToFloat64(m.humidity))
	assert.Equal(t, 60.0, testutil.ToFloat64(m.target))
	assert.Equal(t, 75.0, testutil.ToFloat64(m.fanSpeed))
	assert.Equal(t, 180.0, testutil.ToFloat64(m.powerW))
	assert.Equal(t, 24.5, testutil.ToFloat64(m.temperature.WithLabelValues("canopy")))
	assert.Equal(t, 21.0, testutil.ToFloat64(m.temperature.WithLabelValues("28-bb")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.temperature), "invalid probe not exported")
}

func TestCounters(t *testing.T) {
	m := New()
	m.TickDone(1773597600)
	m.TickDone(1773597605)
	m.Actuation(device.KindFan, "set_speed", nil)
	m.Actuation(device.KindFan, "set_speed", errors.New("timeout"))
	m.Notification("power", nil)
	m.Error("ledger")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 1773597605.0, testutil.ToFloat64(m.lastTick))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actuations.WithLabelValues("fan", "set_speed", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actuations.WithLabelValues("fan", "set_speed", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("power", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("ledger")))
}

func TestHandlerServesText(t *testing.T) {
	m := New()
	m.SetFanOverride(true)
	m.SetDuty(12.5, 30, 41.2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "tent_fan_override 1"), text)
	assert.True(t, strings.Contains(text, `tent_humidifier_duty_percent{window="week"} 30`), text)
}
