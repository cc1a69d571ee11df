// Package config loads the daemon configuration file and the user-editable
// control settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/tent-controller/internal/alert"
)

// Config holds all daemon configuration.
type Config struct {
	Interval     time.Duration `yaml:"interval"`
	SaveInterval time.Duration `yaml:"save_interval"`
	DataDir      string        `yaml:"data_dir"`
	SettingsFile string        `yaml:"settings_file"`
	Timezone     string        `yaml:"timezone"`
	HTTPAddr     string        `yaml:"http_addr"`

	MQTT struct {
		Broker      string        `yaml:"broker"`
		ClientID    string        `yaml:"client_id"`
		Username    string        `yaml:"username"`
		Password    string        `yaml:"password"`
		TopicPrefix string        `yaml:"topic_prefix"`
		StaleAfter  time.Duration `yaml:"stale_after"`
	} `yaml:"mqtt"`

	Devices struct {
		Timeout time.Duration `yaml:"timeout"`
		ESP32   struct {
			URL      string `yaml:"url"`
			AuthCode string `yaml:"auth_code"`
		} `yaml:"esp32"`
		LightTopic      string `yaml:"light_topic"`
		HeaterTopic     string `yaml:"heater_topic"`
		MeterTopic      string `yaml:"meter_topic"`
		HumidifierTopic string `yaml:"humidifier_topic"`
		HeaterGPIO      struct {
			Chip string `yaml:"chip"`
			Pin  int    `yaml:"pin"`
		} `yaml:"heater_gpio"`
	} `yaml:"devices"`

	Energy struct {
		Price          float64 `yaml:"kwh_price"`
		Currency       string  `yaml:"currency"`
		BackfillCron   string  `yaml:"backfill_cron"`
		BackfillMonths int     `yaml:"backfill_months"`
		HistoryDays    int     `yaml:"history_days"`
	} `yaml:"energy"`

	Runtime struct {
		Weeks int `yaml:"weeks"`
	} `yaml:"runtime"`

	Alerts alert.Config `yaml:"alerts"`

	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{Alerts: alert.DefaultConfig()}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("ESP32_FAN_IP"); v != "" {
		cfg.Devices.ESP32.URL = "http://" + v
	}
	if v := os.Getenv("FAN_AUTH_CODE"); v != "" {
		cfg.Devices.ESP32.AuthCode = v
	}
	if v := os.Getenv("KWH_PRICE"); v != "" {
		if price, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Energy.Price = price
		}
	}
	if v := os.Getenv("CURRENCY_SYMBOL"); v != "" {
		cfg.Energy.Currency = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("TENT_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.SaveInterval == 0 {
		cfg.SaveInterval = 60 * time.Second
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.SettingsFile == "" {
		cfg.SettingsFile = filepath.Join(cfg.DataDir, "settings.yaml")
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "tent-controller"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "tent/controller"
	}
	if cfg.MQTT.StaleAfter == 0 {
		cfg.MQTT.StaleAfter = 5 * time.Minute
	}
	if cfg.Devices.Timeout == 0 {
		cfg.Devices.Timeout = 5 * time.Second
	}
	if cfg.Devices.ESP32.AuthCode == "" {
		cfg.Devices.ESP32.AuthCode = "4444"
	}
	if cfg.Devices.HeaterGPIO.Chip == "" {
		cfg.Devices.HeaterGPIO.Chip = "gpiochip0"
	}
	if cfg.Energy.Price == 0 {
		cfg.Energy.Price = 0.25
	}
	if cfg.Energy.Currency == "" {
		cfg.Energy.Currency = "€"
	}
	if cfg.Energy.BackfillCron == "" {
		cfg.Energy.BackfillCron = "0 15 3 * * *"
	}
	if cfg.Energy.BackfillMonths == 0 {
		cfg.Energy.BackfillMonths = 3
	}
	if cfg.Energy.HistoryDays == 0 {
		cfg.Energy.HistoryDays = 7
	}
	if cfg.Runtime.Weeks == 0 {
		cfg.Runtime.Weeks = 7
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = filepath.Join(cfg.DataDir, "tent.db")
	}
}

// RuntimeFile is the duty-cycle history path.
func (c *Config) RuntimeFile() string {
	return filepath.Join(c.DataDir, "runtime_history.json")
}

// EnergyFile is the energy ledger path.
func (c *Config) EnergyFile() string {
	return filepath.Join(c.DataDir, "energy_history.json")
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks the values Load cannot default.
func (c *Config) Validate() error {
	if c.Interval < time.Second {
		return fmt.Errorf("interval must be at least 1s, got %v", c.Interval)
	}
	if c.SaveInterval < c.Interval {
		return fmt.Errorf("save_interval %v shorter than interval %v", c.SaveInterval, c.Interval)
	}
	if c.Energy.Price < 0 {
		return fmt.Errorf("energy.kwh_price must not be negative")
	}
	if c.Energy.BackfillMonths < 0 {
		return fmt.Errorf("energy.backfill_months must not be negative")
	}
	if c.Runtime.Weeks < 1 {
		return fmt.Errorf("runtime.weeks must be positive")
	}
	if c.Devices.HeaterGPIO.Pin < 0 {
		return fmt.Errorf("devices.heater_gpio.pin must not be negative")
	}
	if c.Devices.HeaterTopic != "" && c.Devices.HeaterGPIO.Pin > 0 {
		return fmt.Errorf("devices.heater_topic and devices.heater_gpio are mutually exclusive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
