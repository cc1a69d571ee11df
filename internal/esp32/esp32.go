// Package esp32 talks to the ESP32 board that drives the PWM exhaust fan and
// reads the DS18B20 temperature probes over its small HTTP API.
package esp32

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sweeney/tent-controller/internal/device"
)

// ErrUnauthorized is returned when the board rejects the auth hash.
var ErrUnauthorized = errors.New("esp32: invalid authentication code")

// DS18B20 error readings: -127 means the probe did not answer, 85 is the
// power-on reset value.
const (
	disconnectedC = -127.0
	powerOnResetC = 85.0
)

type statusResponse struct {
	Speed   int           `json:"speed"`
	RPM     int           `json:"rpm"`
	Sensors []sensorEntry `json:"sensors"`
}

type sensorEntry struct {
	Address     string   `json:"address"`
	Name        string   `json:"name"`
	Temperature *float64 `json:"temperature"`
	Valid       *bool    `json:"valid"`
}

type speedRequest struct {
	Speed    int    `json:"speed"`
	AuthHash string `json:"auth_hash"`
}

// Client is an HTTP client for one board. It implements device.FanDevice and
// device.TemperatureDevice.
type Client struct {
	BaseURL  string
	AuthHash string
	HTTP     *http.Client
}

// NewClient creates a client for baseURL (e.g. "http://192.168.1.50").
func NewClient(baseURL, authCode string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		AuthHash: HashCode(authCode),
		HTTP:     &http.Client{Timeout: timeout},
	}
}

// HashCode returns the hex SHA-256 of the board's auth code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func (c *Client) status(ctx context.Context) (statusResponse, error) {
	var out statusResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/status", nil)
	if err != nil {
		return out, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return out, fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("get status: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode status: %w", err)
	}
	return out, nil
}

// FanStatus reads the fan speed and tachometer.
func (c *Client) FanStatus(ctx context.Context) (device.FanStatus, error) {
	st, err := c.status(ctx)
	if err != nil {
		return device.FanStatus{}, err
	}
	return device.FanStatus{Speed: st.Speed, RPM: st.RPM}, nil
}

// TemperatureStatus reads every probe on the OneWire bus.
func (c *Client) TemperatureStatus(ctx context.Context) (device.TemperatureStatus, error) {
	st, err := c.status(ctx)
	if err != nil {
		return device.TemperatureStatus{}, err
	}
	out := device.TemperatureStatus{Sensors: make([]device.Sensor, 0, len(st.Sensors))}
	for _, s := range st.Sensors {
		out.Sensors = append(out.Sensors, toSensor(s))
	}
	return out, nil
}

func toSensor(s sensorEntry) device.Sensor {
	out := device.Sensor{Address: s.Address, Name: s.Name}
	if s.Temperature == nil {
		return out
	}
	out.Celsius = *s.Temperature
	out.Valid = s.Valid == nil || *s.Valid
	if out.Celsius == disconnectedC || out.Celsius == powerOnResetC {
		out.Valid = false
	}
	return out
}

// SetSpeed sets the fan speed in percent.
func (c *Client) SetSpeed(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("speed %d out of range 0-100", percent)
	}
	body, err := json.Marshal(speedRequest{Speed: percent, AuthHash: c.AuthHash})
	if err != nil {
		return fmt.Errorf("marshal speed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/speed", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("set speed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("set speed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
