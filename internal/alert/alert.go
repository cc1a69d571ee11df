// Package alert turns device snapshots into user notifications. Each rule
// debounces its own signal so a condition that persists across ticks yields
// at most one notification per transition or per cooldown period.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/sweeney/tent-controller/internal/device"
)

// Tag identifies the rule that produced a notification. Notifiers may use it
// to replace an earlier notification of the same kind.
type Tag string

const (
	TagLight       Tag = "light"
	TagPower       Tag = "power"
	TagTankEmpty   Tag = "tank_empty"
	TagHumidityLow Tag = "humidity_low"
)

// Notification is one message to deliver.
type Notification struct {
	Time  time.Time `json:"time"`
	Tag   Tag       `json:"tag"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, title, body, tag string) error
}

// Config holds rule thresholds.
type Config struct {
	PowerThresholdW  float64       `yaml:"power_threshold_w"`
	HumidityMargin   float64       `yaml:"humidity_margin"`
	TankCooldown     time.Duration `yaml:"tank_cooldown"`
	HumidityCooldown time.Duration `yaml:"humidity_cooldown"`
}

// DefaultConfig returns the rule defaults.
func DefaultConfig() Config {
	return Config{
		PowerThresholdW:  200,
		HumidityMargin:   10,
		TankCooldown:     4 * time.Hour,
		HumidityCooldown: 15 * time.Minute,
	}
}

// tristate is a remembered boolean that may be unknown.
type tristate int8

const (
	unknown tristate = iota
	off
	on
)

func tri(b bool) tristate {
	if b {
		return on
	}
	return off
}

// Debouncer holds per-rule state. It is not safe for concurrent use; the tick
// worker owns it.
type Debouncer struct {
	cfg Config

	lastLight     tristate
	abovePower    bool
	lastTankSent  time.Time
	lastHumidSent time.Time
}

// NewDebouncer creates a debouncer with no history.
func NewDebouncer(cfg Config) *Debouncer {
	return &Debouncer{cfg: cfg}
}

// Evaluate applies every rule to s, in a fixed order, and returns the
// notifications to deliver. Cooldowns restart whenever a notification is
// returned, whether or not the caller manages to deliver it.
func (d *Debouncer) Evaluate(s device.Snapshot, now time.Time) []Notification {
	var out []Notification
	add := func(tag Tag, title, body string) {
		out = append(out, Notification{Time: now, Tag: tag, Title: title, Body: body})
	}

	// Light edge: only between two known states.
	cur := unknown
	if s.Light.Available {
		cur = tri(s.Light.Value.On)
	}
	if d.lastLight != unknown && cur != unknown && cur != d.lastLight {
		if cur == on {
			add(TagLight, "Light on", "The grow light turned on.")
		} else {
			add(TagLight, "Light off", "The grow light turned off.")
		}
	}
	d.lastLight = cur

	// Power threshold: notify on the upward crossing only.
	if s.Meter.Available {
		above := s.Meter.Value.PowerW > d.cfg.PowerThresholdW
		if above && !d.abovePower {
			add(TagPower, "High power draw",
				fmt.Sprintf("Power draw is %.0f W, above %.0f W.", s.Meter.Value.PowerW, d.cfg.PowerThresholdW))
		}
		d.abovePower = above
	}

	if s.Humidifier.Available {
		h := s.Humidifier.Value

		if h.TankEmpty && cooledDown(d.lastTankSent, now, d.cfg.TankCooldown) {
			add(TagTankEmpty, "Water tank empty", "The humidifier tank needs refilling.")
			d.lastTankSent = now
		}

		if h.HasHumidity && h.HasTarget && h.Target-h.Humidity > d.cfg.HumidityMargin &&
			cooledDown(d.lastHumidSent, now, d.cfg.HumidityCooldown) {
			add(TagHumidityLow, "Humidity low",
				fmt.Sprintf("Humidity is %.0f%%, target %.0f%%.", h.Humidity, h.Target))
			d.lastHumidSent = now
		}
	}

	return out
}

func cooledDown(last, now time.Time, cooldown time.Duration) bool {
	return last.IsZero() || now.Sub(last) >= cooldown
}
