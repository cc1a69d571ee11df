package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/tent-controller/internal/logic"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, 60*time.Second, cfg.SaveInterval)
	assert.Equal(t, "tent/controller", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 0.25, cfg.Energy.Price)
	assert.Equal(t, 7, cfg.Runtime.Weeks)
	assert.Equal(t, filepath.Join("data", "tent.db"), cfg.Database.SQLitePath)
	assert.Equal(t, filepath.Join("data", "runtime_history.json"), cfg.RuntimeFile())
	assert.Equal(t, filepath.Join("data", "energy_history.json"), cfg.EnergyFile())
	assert.Equal(t, 200.0, cfg.Alerts.PowerThresholdW)
	assert.Equal(t, 4*time.Hour, cfg.Alerts.TankCooldown)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "tent.yaml", `
interval: 10s
data_dir: /var/lib/tent
mqtt:
  broker: tcp://broker:1883
devices:
  esp32:
    url: http://10.0.0.5
  light_topic: tasmota_light
  heater_gpio:
    pin: 17
energy:
  kwh_price: 0.31
alerts:
  power_threshold_w: 350
  humidity_cooldown: 30m
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "http://10.0.0.5", cfg.Devices.ESP32.URL)
	assert.Equal(t, "tasmota_light", cfg.Devices.LightTopic)
	assert.Equal(t, 17, cfg.Devices.HeaterGPIO.Pin)
	assert.Equal(t, 0.31, cfg.Energy.Price)
	assert.Equal(t, 350.0, cfg.Alerts.PowerThresholdW)
	assert.Equal(t, 30*time.Minute, cfg.Alerts.HumidityCooldown)
	assert.Equal(t, 4*time.Hour, cfg.Alerts.TankCooldown, "unset keys keep defaults")
	assert.Equal(t, filepath.Join("/var/lib/tent", "tent.db"), cfg.Database.SQLitePath)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://env:1883")
	t.Setenv("ESP32_FAN_IP", "192.168.1.50")
	t.Setenv("KWH_PRICE", "0.4")
	t.Setenv("CURRENCY_SYMBOL", "£")

	cfg, err := Load(writeFile(t, "tent.yaml", "mqtt:\n  broker: tcp://file:1883\n"))
	require.NoError(t, err)

	assert.Equal(t, "tcp://env:1883", cfg.MQTT.Broker)
	assert.Equal(t, "http://192.168.1.50", cfg.Devices.ESP32.URL)
	assert.Equal(t, 0.4, cfg.Energy.Price)
	assert.Equal(t, "£", cfg.Energy.Currency)
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeFile(t, "tent.yaml", "interval: [\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short interval", func(c *Config) { c.Interval = 100 * time.Millisecond }},
		{"save faster than tick", func(c *Config) { c.SaveInterval = time.Second }},
		{"negative price", func(c *Config) { c.Energy.Price = -1 }},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"two heaters", func(c *Config) { c.Devices.HeaterTopic = "heater"; c.Devices.HeaterGPIO.Pin = 17 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSettingsDefaults(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, 75, s.Fan.DaySpeed)
	assert.Equal(t, 30, s.Fan.NightSpeed)
	assert.Equal(t, 10.0, s.Fan.OnThreshold)
	assert.Equal(t, 5.0, s.Fan.OffThreshold)
	assert.False(t, s.Heater.Enabled)
	assert.Equal(t, 20.0, s.Heater.NightTemp)
	assert.False(t, s.Light.Enabled)
	assert.Equal(t, "06:00", s.Light.OnTime)
	assert.Equal(t, "00:00", s.Light.OffTime)
	assert.NoError(t, s.Validate())
}

func TestSettingsStoreLoadPartialFile(t *testing.T) {
	path := writeFile(t, "settings.yaml", "heater:\n  enabled: true\n  night_temp: 18.5\n")
	store := NewSettingsStore(path, zap.NewNop())
	require.NoError(t, store.Load())

	s := store.Get()
	assert.True(t, s.Heater.Enabled)
	assert.Equal(t, 18.5, s.Heater.NightTemp)
	assert.Equal(t, 75, s.Fan.DaySpeed, "missing section keeps defaults")
}

func TestSettingsStoreLoadMissing(t *testing.T) {
	store := NewSettingsStore(filepath.Join(t.TempDir(), "settings.yaml"), zap.NewNop())
	require.NoError(t, store.Load())
	assert.Equal(t, DefaultSettings(), store.Get())
}

func TestSettingsStoreLoadInvalid(t *testing.T) {
	path := writeFile(t, "settings.yaml", "light:\n  on_time: \"99:99\"\n")
	store := NewSettingsStore(path, zap.NewNop())
	assert.Error(t, store.Load())
	assert.Equal(t, DefaultSettings(), store.Get())
}

func TestSettingsStoreUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "settings.yaml")
	store := NewSettingsStore(path, zap.NewNop())

	next := DefaultSettings()
	next.Light = logic.LightConfig{Enabled: true, OnTime: "22:00", OffTime: "06:00"}
	require.NoError(t, store.Update(next))
	assert.Equal(t, next, store.Get())

	reloaded := NewSettingsStore(path, zap.NewNop())
	require.NoError(t, reloaded.Load())
	assert.Equal(t, next, reloaded.Get())
}

func TestSettingsStoreUpdateRejectsInvalid(t *testing.T) {
	store := NewSettingsStore(filepath.Join(t.TempDir(), "settings.yaml"), zap.NewNop())

	bad := DefaultSettings()
	bad.Fan.DaySpeed = 150
	assert.Error(t, store.Update(bad))
	assert.Equal(t, DefaultSettings(), store.Get())
}
