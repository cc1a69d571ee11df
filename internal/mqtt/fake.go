package mqtt

import (
	"sort"
	"strings"
	"sync"
)

// FakePublisher records published output for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// StatusPayloads contains every status snapshot that was published.
	StatusPayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// Alerts contains all alerts that were published.
	Alerts []AlertEvent

	// PublishError, if set, will be returned by PublishStatus and PublishAlert.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishStatus records the status payload.
func (f *FakePublisher) PublishStatus(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.StatusPayloads = append(f.StatusPayloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// PublishAlert records the alert.
func (f *FakePublisher) PublishAlert(event AlertEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Alerts = append(f.Alerts, event)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded output and injected errors.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StatusPayloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Alerts = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}

// Message is one publish recorded by FakeBroker.
type Message struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  string
}

// FakeBroker is an in-memory Broker. Deliver feeds messages to subscribers.
type FakeBroker struct {
	mu       sync.Mutex
	handlers map[string]func(string, []byte)

	// Published contains every message sent through Publish.
	Published []Message

	// PublishError, if set, will be returned by Publish.
	PublishError error
}

// NewFakeBroker creates an empty FakeBroker.
func NewFakeBroker() *FakeBroker {
	return &FakeBroker{handlers: make(map[string]func(string, []byte))}
}

// Publish records the message.
func (b *FakeBroker) Publish(topic string, qos byte, retained bool, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PublishError != nil {
		return b.PublishError
	}
	b.Published = append(b.Published, Message{Topic: topic, QoS: qos, Retained: retained, Payload: string(payload)})
	return nil
}

// Subscribe registers handler for an exact topic.
func (b *FakeBroker) Subscribe(topic string, _ byte, handler func(string, []byte)) error {
	b.mu.Lock()
	b.handlers[topic] = handler
	b.mu.Unlock()
	return nil
}

// Deliver calls the handler subscribed to topic, if any, and reports whether
// one was found.
func (b *FakeBroker) Deliver(topic, payload string) bool {
	b.mu.Lock()
	h, ok := b.handlers[topic]
	b.mu.Unlock()
	if ok {
		h(topic, []byte(payload))
	}
	return ok
}

// Topics returns the subscribed topics joined by commas, for assertions.
func (b *FakeBroker) Topics() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.handlers))
	for t := range b.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
