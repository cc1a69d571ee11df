// Package mqtt publishes controller status, lifecycle events and alerts to an
// MQTT broker, and provides device adapters for Tasmota-style sockets, meters
// and a humidifier bridge that live on the same broker.
package mqtt

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultPrefix is the default topic prefix for controller output.
const DefaultPrefix = "tent/controller"

// Topics are the controller's output topics.
type Topics struct {
	Status string
	System string
	Alerts string
}

// NewTopics derives the output topics from a prefix.
func NewTopics(prefix string) Topics {
	return Topics{
		Status: prefix + "/status",
		System: prefix + "/system",
		Alerts: prefix + "/alerts",
	}
}

// Publisher publishes controller output to MQTT.
type Publisher interface {
	// PublishStatus sends a pre-formatted status snapshot.
	// Returns error if publishing fails (should not crash the process).
	PublishStatus(payload []byte) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// PublishAlert sends a user notification.
	PublishAlert(event AlertEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Broker is the raw publish/subscribe surface the device adapters use.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// AlertEvent is one user notification.
type AlertEvent struct {
	Timestamp time.Time
	Title     string
	Body      string
	Tag       string
}

// AlertPayload is the MQTT payload for an alert.
type AlertPayload struct {
	Alert AlertPayloadInner `json:"alert"`
}

// AlertPayloadInner contains the alert details.
type AlertPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Tag       string `json:"tag,omitempty"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

// FormatAlertPayload creates the JSON payload for an alert.
func FormatAlertPayload(event AlertEvent) ([]byte, error) {
	return json.Marshal(AlertPayload{
		Alert: AlertPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Tag:       event.Tag,
			Title:     event.Title,
			Body:      event.Body,
		},
	})
}

// Notifier delivers alerts by publishing them. It satisfies alert.Notifier.
type Notifier struct {
	pub Publisher
	now func() time.Time
}

// NewNotifier creates a Notifier publishing through pub.
func NewNotifier(pub Publisher, now func() time.Time) *Notifier {
	return &Notifier{pub: pub, now: now}
}

// Notify publishes one alert.
func (n *Notifier) Notify(ctx context.Context, title, body, tag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.pub.PublishAlert(AlertEvent{Timestamp: n.now(), Title: title, Body: body, Tag: tag})
}
