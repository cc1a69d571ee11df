package mqtt

import (
	"fmt"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type doneToken struct{ err error }

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                 { return t.err }

func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// stubPaho records publishes. Methods the client never calls fall through to
// the nil embedded interface.
type stubPaho struct {
	paho.Client

	mu        sync.Mutex
	open      bool
	published []Message
	subs      []string
}

func (s *stubPaho) IsConnectionOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *stubPaho) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, Message{Topic: topic, QoS: qos, Payload: fmt.Sprintf("%s", payload)})
	return doneToken{}
}

func (s *stubPaho) Subscribe(topic string, _ byte, _ paho.MessageHandler) paho.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, topic)
	return doneToken{}
}

func newTestClient(pc *stubPaho, size int, logger *zap.Logger) *Client {
	return &Client{
		client: pc,
		topics: NewTopics("tent"),
		logger: logger,
		now:    func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) },
		buf:    newRingBuffer[bufferedMsg](size),
		subs:   make(map[string]subscription),
	}
}

func TestClientBuffersWhileDisconnected(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	pc := &stubPaho{}
	c := newTestClient(pc, 2, zap.New(core))

	for i := 1; i <= 4; i++ {
		require.NoError(t, c.Publish(fmt.Sprintf("t/%d", i), 1, false, []byte("x")))
	}
	assert.Empty(t, pc.published)

	overflow := logs.FilterMessage("buffer full, dropping oldest").All()
	require.Len(t, overflow, 1, "overflow logged once per outage")
	assert.Equal(t, int64(2), overflow[0].ContextMap()["capacity"])

	pc.open = true
	c.onConnect(pc)

	require.Len(t, pc.published, 3)
	assert.Equal(t, "t/3", pc.published[0].Topic)
	assert.Equal(t, "t/4", pc.published[1].Topic)
	assert.Equal(t, c.topics.System, pc.published[2].Topic)
	assert.Contains(t, pc.published[2].Payload, "RECONNECTED")
	assert.Zero(t, c.buf.len())
}

func TestClientPublishesWhenConnected(t *testing.T) {
	pc := &stubPaho{open: true}
	c := newTestClient(pc, 2, zap.NewNop())

	require.NoError(t, c.PublishStatus([]byte(`{"status":{}}`)))
	require.Len(t, pc.published, 1)
	assert.Equal(t, c.topics.Status, pc.published[0].Topic)
	assert.Zero(t, c.buf.len())
}

func TestClientRestoresSubscriptions(t *testing.T) {
	pc := &stubPaho{}
	c := newTestClient(pc, 2, zap.NewNop())

	require.NoError(t, c.Subscribe("stat/heater/POWER", 1, func(string, []byte) {}))
	assert.Empty(t, pc.subs, "not subscribed while offline")

	pc.open = true
	c.onConnect(pc)
	assert.Equal(t, []string{"stat/heater/POWER"}, pc.subs)
}
