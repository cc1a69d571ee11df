package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBufferSize is how many outgoing messages are kept while disconnected.
const DefaultBufferSize = 256

// Options configures a Client.
type Options struct {
	Broker     string
	ClientID   string
	Username   string
	Password   string
	Topics     Topics
	BufferSize int
}

type subscription struct {
	qos     byte
	handler func(topic string, payload []byte)
}

// Client is the real broker connection. It implements Publisher, Broker and
// ConnectionStatus. Messages published while disconnected are buffered and
// replayed in order after reconnection; subscriptions are restored too.
type Client struct {
	client paho.Client
	topics Topics
	logger *zap.Logger
	now    func() time.Time

	mu   sync.Mutex
	buf  *ringBuffer[bufferedMsg]
	subs map[string]subscription
}

// NewClient creates a client and starts connecting in the background. It
// waits briefly for the first connection but does not fail if the broker is
// down; output is buffered until it comes up.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	c := &Client{
		topics: opts.Topics,
		logger: logger.Named("mqtt"),
		now:    time.Now,
		buf:    newRingBuffer[bufferedMsg](opts.BufferSize),
		subs:   make(map[string]subscription),
	}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: c.now(), Event: "SHUTDOWN", Reason: "MQTT_DISCONNECT"})

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID + "-" + uuid.NewString()[:8]).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(opts.Topics.System, will, 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.logger.Warn("connection lost", zap.Error(err))
		})

	c.client = paho.NewClient(po)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		c.logger.Warn("broker not reachable yet, buffering", zap.String("broker", opts.Broker))
	} else if err := token.Error(); err != nil {
		c.logger.Warn("connect to broker", zap.String("broker", opts.Broker), zap.Error(err))
	}
	return c
}

func (c *Client) onConnect(pc paho.Client) {
	c.mu.Lock()
	pending := c.buf.drainAll()
	subs := make(map[string]subscription, len(c.subs))
	for topic, s := range c.subs {
		subs[topic] = s
	}
	c.mu.Unlock()

	c.logger.Info("connected", zap.Int("buffered", len(pending)), zap.Int("subscriptions", len(subs)))

	for topic, s := range subs {
		pc.Subscribe(topic, s.qos, wrap(s.handler))
	}
	for _, m := range pending {
		pc.Publish(m.topic, m.qos, m.retained, m.payload)
	}

	payload, _ := FormatSystemPayload(SystemEvent{Timestamp: c.now(), Event: "RECONNECTED"})
	pc.Publish(c.topics.System, 1, true, payload)
}

func wrap(h func(string, []byte)) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) {
		h(m.Topic(), m.Payload())
	}
}

// Publish sends payload, or buffers it while the connection is down.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		dropped := c.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		size := c.buf.capacity()
		c.mu.Unlock()
		if dropped {
			c.logger.Warn("buffer full, dropping oldest", zap.Int("capacity", size))
		}
		return nil
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. The subscription is remembered and
// renewed on every reconnect.
func (c *Client) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}
	token := c.client.Subscribe(topic, qos, wrap(handler))
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// PublishStatus sends the status snapshot, retained, QoS 0.
func (c *Client) PublishStatus(payload []byte) error {
	return c.Publish(c.topics.Status, 0, true, payload)
}

// PublishSystem sends a system lifecycle event, QoS 1.
func (c *Client) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return c.Publish(c.topics.System, 1, event.Retained, payload)
}

// PublishAlert sends an alert, QoS 1, not retained.
func (c *Client) PublishAlert(event AlertEvent) error {
	payload, err := FormatAlertPayload(event)
	if err != nil {
		return fmt.Errorf("format alert payload: %w", err)
	}
	return c.Publish(c.topics.Alerts, 1, false, payload)
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *Client) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
