package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/tent-controller/internal/config"
	"github.com/sweeney/tent-controller/internal/device"
	"github.com/sweeney/tent-controller/internal/duty"
	"github.com/sweeney/tent-controller/internal/energy"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string             `json:"event,omitempty"`
	Reason        string             `json:"reason,omitempty"`
	Ready         bool               `json:"ready"`
	Ticks         int64              `json:"ticks"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	StartTime     string             `json:"start_time"`
	Timestamp     string             `json:"timestamp"`
	LastTick      string             `json:"last_tick,omitempty"`
	MQTT          MQTTStatus         `json:"mqtt"`
	Devices       DevicesJSON        `json:"devices"`
	Fan           FanJSON            `json:"fan"`
	Heater        HeaterJSON         `json:"heater"`
	Runtime       duty.Metrics       `json:"runtime"`
	Energy        EnergyJSON         `json:"energy"`
	Notifications []NotificationJSON `json:"notifications"`
	Settings      config.Settings    `json:"settings"`
	Config        ConfigJSON         `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// DeviceJSON is one device's status. State is omitted when unavailable.
type DeviceJSON[T any] struct {
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
	State     *T     `json:"state,omitempty"`
}

// DevicesJSON lists every device slot.
type DevicesJSON struct {
	Light       DeviceJSON[LightJSON]       `json:"light"`
	Humidifier  DeviceJSON[HumidifierJSON]  `json:"humidifier"`
	Fan         DeviceJSON[FanStateJSON]    `json:"fan"`
	Heater      DeviceJSON[HeaterStateJSON] `json:"heater"`
	Temperature DeviceJSON[[]SensorJSON]    `json:"temperature"`
	Meter       DeviceJSON[MeterJSON]       `json:"meter"`
}

type LightJSON struct {
	On         bool `json:"on"`
	Brightness int  `json:"brightness"`
}

type HumidifierJSON struct {
	On        bool     `json:"on"`
	Working   bool     `json:"working"`
	TankEmpty bool     `json:"tank_empty"`
	Mode      string   `json:"mode,omitempty"`
	Humidity  *float64 `json:"humidity,omitempty"`
	Target    *float64 `json:"target,omitempty"`
}

type FanStateJSON struct {
	Speed int `json:"speed"`
	RPM   int `json:"rpm"`
}

type HeaterStateJSON struct {
	On bool `json:"on"`
}

type SensorJSON struct {
	Address     string  `json:"address"`
	Name        string  `json:"name,omitempty"`
	Temperature float64 `json:"temperature"`
	Valid       bool    `json:"valid"`
}

type MeterJSON struct {
	On       bool    `json:"on"`
	PowerW   float64 `json:"power_w"`
	TodayKWh float64 `json:"today_kwh"`
}

// FanJSON is the humidity override state.
type FanJSON struct {
	Mode     string `json:"mode"`
	Override bool   `json:"override"`
}

// HeaterJSON is the thermostat loop state.
type HeaterJSON struct {
	LastCheck string `json:"last_check,omitempty"`
	Skipped   string `json:"skipped,omitempty"`
}

// EnergyJSON summarises the ledger.
type EnergyJSON struct {
	Today   energy.Record `json:"today"`
	Month   energy.Record `json:"month"`
	Year    energy.Record `json:"year"`
	History []energy.Day  `json:"history"`
}

// NotificationJSON is one recent notification.
type NotificationJSON struct {
	Time  string `json:"time"`
	Tag   string `json:"tag"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	IntervalMs     int64   `json:"interval_ms"`
	SaveIntervalMs int64   `json:"save_interval_ms"`
	Broker         string  `json:"broker"`
	HTTPAddr       string  `json:"http_addr"`
	Timezone       string  `json:"timezone"`
	Price          float64 `json:"kwh_price"`
	Currency       string  `json:"currency"`
}

func deviceJSON[S, J any](s device.Status[S], conv func(S) J) DeviceJSON[J] {
	if !s.Available {
		return DeviceJSON[J]{Error: s.Reason}
	}
	v := conv(s.Value)
	return DeviceJSON[J]{Available: true, State: &v}
}

func buildDevices(d device.Snapshot) DevicesJSON {
	return DevicesJSON{
		Light: deviceJSON(d.Light, func(v device.LightStatus) LightJSON {
			return LightJSON{On: v.On, Brightness: v.Brightness}
		}),
		Humidifier: deviceJSON(d.Humidifier, func(v device.HumidifierStatus) HumidifierJSON {
			h := HumidifierJSON{On: v.On, Working: v.Working, TankEmpty: v.TankEmpty, Mode: v.Mode}
			if v.HasHumidity {
				h.Humidity = &v.Humidity
			}
			if v.HasTarget {
				h.Target = &v.Target
			}
			return h
		}),
		Fan: deviceJSON(d.Fan, func(v device.FanStatus) FanStateJSON {
			return FanStateJSON{Speed: v.Speed, RPM: v.RPM}
		}),
		Heater: deviceJSON(d.Heater, func(v device.HeaterStatus) HeaterStateJSON {
			return HeaterStateJSON{On: v.On}
		}),
		Temperature: deviceJSON(d.Temperature, func(v device.TemperatureStatus) []SensorJSON {
			out := make([]SensorJSON, 0, len(v.Sensors))
			for _, s := range v.Sensors {
				out = append(out, SensorJSON{Address: s.Address, Name: s.Name, Temperature: s.Celsius, Valid: s.Valid})
			}
			return out
		}),
		Meter: deviceJSON(d.Meter, func(v device.MeterStatus) MeterJSON {
			return MeterJSON{On: v.On, PowerW: v.PowerW, TodayKWh: v.TodayKWh}
		}),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	mode := string(snap.Control.FanMode)
	if mode == "" {
		mode = "UNKNOWN"
	}

	history := snap.Energy.History
	if history == nil {
		history = []energy.Day{}
	}

	notes := make([]NotificationJSON, 0, len(snap.Notifications))
	for _, n := range snap.Notifications {
		notes = append(notes, NotificationJSON{Time: formatTime(n.Time), Tag: string(n.Tag), Title: n.Title, Body: n.Body})
	}

	return StatusInner{
		Ready:         snap.Ticks > 0,
		Ticks:         snap.Ticks,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		LastTick:      formatTime(snap.Devices.Time),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Devices:       buildDevices(snap.Devices),
		Fan:           FanJSON{Mode: mode, Override: mode == "OVERRIDE"},
		Heater: HeaterJSON{
			LastCheck: formatTime(snap.Control.HeaterLastCheck),
			Skipped:   snap.Control.HeaterSkipped,
		},
		Runtime: snap.Runtime,
		Energy: EnergyJSON{
			Today:   snap.Energy.Today,
			Month:   snap.Energy.Month,
			Year:    snap.Energy.Year,
			History: history,
		},
		Notifications: notes,
		Settings:      snap.Settings,
		Config: ConfigJSON{
			IntervalMs:     snap.Config.IntervalMs,
			SaveIntervalMs: snap.Config.SaveIntervalMs,
			Broker:         snap.Config.Broker,
			HTTPAddr:       snap.Config.HTTPAddr,
			Timezone:       snap.Config.Timezone,
			Price:          snap.Config.Price,
			Currency:       snap.Config.Currency,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT status or system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
