package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/tent-controller/internal/atomicfile"
	"github.com/sweeney/tent-controller/internal/logic"
)

// Settings are the control loop parameters a user may change at runtime.
type Settings struct {
	Fan    logic.FanConfig    `yaml:"fan" json:"fan"`
	Heater logic.HeaterConfig `yaml:"heater" json:"heater"`
	Light  logic.LightConfig  `yaml:"light" json:"light"`
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		Fan:    logic.DefaultFanConfig(),
		Heater: logic.DefaultHeaterConfig(),
		Light:  logic.DefaultLightConfig(),
	}
}

// Validate checks every section.
func (s Settings) Validate() error {
	return errors.Join(s.Fan.Validate(), s.Heater.Validate(), s.Light.Validate())
}

// SettingsStore holds the current settings. Reads return copies, so the tick
// worker sees one consistent value per tick while HTTP handlers update it.
type SettingsStore struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	settings Settings
}

// NewSettingsStore creates a store holding the defaults.
func NewSettingsStore(path string, logger *zap.Logger) *SettingsStore {
	return &SettingsStore{
		path:     path,
		logger:   logger.Named("settings"),
		settings: DefaultSettings(),
	}
}

// Load reads the settings file over the defaults. Sections or keys missing
// from the file keep their defaults. A missing file is not an error.
func (s *SettingsStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("no settings file, using defaults", zap.String("path", s.path))
			return nil
		}
		return fmt.Errorf("read settings: %w", err)
	}

	loaded := DefaultSettings()
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	s.mu.Lock()
	s.settings = loaded
	s.mu.Unlock()
	return nil
}

// Get returns the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update validates and replaces the settings, then saves them. The new
// settings stay in effect even if saving fails.
func (s *SettingsStore) Update(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = next
	s.mu.Unlock()

	s.logger.Info("settings updated",
		zap.Int("fan_day", next.Fan.DaySpeed),
		zap.Int("fan_night", next.Fan.NightSpeed),
		zap.Bool("heater", next.Heater.Enabled),
		zap.Bool("light_schedule", next.Light.Enabled))
	return s.Save()
}

// Save writes the current settings.
func (s *SettingsStore) Save() error {
	data, err := yaml.Marshal(s.Get())
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := atomicfile.Write(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
