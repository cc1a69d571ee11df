package esp32

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/tent-controller/internal/device"
)

const statusBody = `{
  "speed": 30, "rpm": 720, "rssi": -61, "uptime": 123456,
  "sensor_count": 4,
  "sensors": [
    {"address": "28-aa", "name": "canopy", "temperature": 21.5, "valid": true},
    {"address": "28-bb", "name": "floor", "temperature": -127, "valid": true},
    {"address": "28-cc", "name": "", "temperature": 85},
    {"address": "28-dd", "name": "outside", "temperature": 12.0, "valid": false},
    {"address": "28-ee", "name": "loose"}
  ]
}`

func newBoard(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "4444", time.Second)
}

func TestHashCode(t *testing.T) {
	assert.Equal(t, "79f06f8fde333461739f220090a23cb2a79f6d714bee100d0e4b4af249294619", HashCode("4444"))
}

func TestFanStatus(t *testing.T) {
	c := newBoard(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		_, _ = w.Write([]byte(statusBody))
	})

	st, err := c.FanStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, device.FanStatus{Speed: 30, RPM: 720}, st)
}

func TestTemperatureStatusMarksErrorReadings(t *testing.T) {
	c := newBoard(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(statusBody))
	})

	st, err := c.TemperatureStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, st.Sensors, 5)

	assert.Equal(t, device.Sensor{Address: "28-aa", Name: "canopy", Celsius: 21.5, Valid: true}, st.Sensors[0])
	assert.False(t, st.Sensors[1].Valid, "-127 is a disconnected probe")
	assert.False(t, st.Sensors[2].Valid, "85 is the reset value")
	assert.False(t, st.Sensors[3].Valid, "board flagged it invalid")
	assert.False(t, st.Sensors[4].Valid, "no temperature")
}

func TestStatusHTTPError(t *testing.T) {
	c := newBoard(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.FanStatus(context.Background())
	assert.Error(t, err)
}

func TestStatusBadJSON(t *testing.T) {
	c := newBoard(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	})

	_, err := c.TemperatureStatus(context.Background())
	assert.ErrorContains(t, err, "decode status")
}

func TestSetSpeedSendsHash(t *testing.T) {
	var got speedRequest
	c := newBoard(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/speed", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"speed":100}`))
	})

	require.NoError(t, c.SetSpeed(context.Background(), 100))
	assert.Equal(t, 100, got.Speed)
	assert.Equal(t, HashCode("4444"), got.AuthHash)
}

func TestSetSpeedForbidden(t *testing.T) {
	c := newBoard(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	assert.ErrorIs(t, c.SetSpeed(context.Background(), 50), ErrUnauthorized)
}

func TestSetSpeedRejectsRange(t *testing.T) {
	c := newBoard(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	assert.Error(t, c.SetSpeed(context.Background(), 101))
	assert.Error(t, c.SetSpeed(context.Background(), -1))
}

func TestCancelledContext(t *testing.T) {
	c := newBoard(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(statusBody))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FanStatus(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

var (
	_ device.FanDevice         = (*Client)(nil)
	_ device.TemperatureDevice = (*Client)(nil)
)
