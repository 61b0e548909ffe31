package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/flightrelay/internal/pkg/metrics"
	"github.com/autopeer-io/flightrelay/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/flightrelay/pkg/mqtt/topic"
)

type published struct {
	topic   string
	qos     int
	retain  bool
	payload []byte
}

type fakeClient struct {
	mu        sync.Mutex
	connected bool
	fail      error
	sent      []published
}

var _ mqtt.Client = (*fakeClient)(nil)

func (c *fakeClient) Start(context.Context) error { return nil }
func (c *fakeClient) Disconnect(context.Context)  {}
func (c *fakeClient) IsConnected() bool           { return c.connected }

func (c *fakeClient) messages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.sent...)
}

// start runs the notifier loop until the test ends.
func start(t *testing.T, n *MQTT) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = n.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (c *fakeClient) Publish(_ context.Context, topic string, qos int, retain bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.sent = append(c.sent, published{topic, qos, retain, payload})
	return nil
}

func TestNotifyPublishesResult(t *testing.T) {
	client := &fakeClient{connected: true}
	n := NewMQTT("drone-7", client, mqtttopic.NewTopicBuilder("flightrelay/v1"), time.Second)

	start(t, n)
	n.Notify(context.Background(), Result{Command: "ARM", OK: false, Message: "arming failed", DurationMs: 9500})

	require.Eventually(t, func() bool { return len(client.messages()) == 1 }, time.Second, 5*time.Millisecond)
	msg := client.messages()[0]
	assert.Equal(t, "flightrelay/v1/result/drone-7", msg.topic)
	assert.Equal(t, 1, msg.qos)
	assert.False(t, msg.retain)

	var got Result
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, "drone-7", got.VehicleID)
	assert.Equal(t, "ARM", got.Command)
	assert.Equal(t, "arming failed", got.Message)
}

func TestNotifyLinkIsRetained(t *testing.T) {
	client := &fakeClient{connected: true}
	n := NewMQTT("drone-7", client, mqtttopic.NewTopicBuilder("flightrelay/v1"), time.Second)

	n.NotifyLink(context.Background(), LinkStatus{Up: false})

	require.Len(t, client.sent, 1)
	assert.Equal(t, "flightrelay/v1/link/drone-7", client.sent[0].topic)
	assert.True(t, client.sent[0].retain)
}

func TestNotifyDropsWhenDisconnected(t *testing.T) {
	client := &fakeClient{}
	n := NewMQTT("drone-7", client, mqtttopic.NewTopicBuilder("flightrelay/v1"), time.Second)
	before := testutil.ToFloat64(metrics.NotifyFailuresTotal)
	start(t, n)

	n.Notify(context.Background(), Result{Command: "LAND", OK: true})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.NotifyFailuresTotal) == before+1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, client.messages())
}

func TestNotifyPublishErrorIsSwallowed(t *testing.T) {
	client := &fakeClient{connected: true, fail: errors.New("broker gone")}
	n := NewMQTT("drone-7", client, mqtttopic.NewTopicBuilder("flightrelay/v1"), time.Second)
	before := testutil.ToFloat64(metrics.NotifyFailuresTotal)
	start(t, n)

	n.Notify(context.Background(), Result{Command: "LAND", OK: true})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.NotifyFailuresTotal) == before+1
	}, time.Second, 5*time.Millisecond)
}

func TestNotifyDoesNotWaitForBroker(t *testing.T) {
	client := &fakeClient{connected: true}
	n := NewMQTT("drone-7", client, mqtttopic.NewTopicBuilder("flightrelay/v1"), time.Second)
	before := testutil.ToFloat64(metrics.NotifyFailuresTotal)

	// Nothing drains the queue: Notify must still return immediately.
	returned := make(chan struct{})
	go func() {
		for i := 0; i < resultQueueSize+1; i++ {
			n.Notify(context.Background(), Result{Command: "ARM", OK: true})
		}
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked")
	}
	assert.Empty(t, client.messages())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NotifyFailuresTotal))

	start(t, n)
	require.Eventually(t, func() bool { return len(client.messages()) == resultQueueSize }, time.Second, 5*time.Millisecond)
}

func TestResyncRepublishesLastLink(t *testing.T) {
	client := &fakeClient{}
	n := NewMQTT("drone-7", client, mqtttopic.NewTopicBuilder("flightrelay/v1"), time.Second)

	n.Resync(context.Background())
	n.NotifyLink(context.Background(), LinkStatus{Up: true})
	require.Empty(t, client.sent)

	client.connected = true
	n.Resync(context.Background())

	require.Len(t, client.sent, 1)
	assert.True(t, client.sent[0].retain)
	var got LinkStatus
	require.NoError(t, json.Unmarshal(client.sent[0].payload, &got))
	assert.True(t, got.Up)
	assert.Equal(t, "drone-7", got.VehicleID)
}

func TestLastWill(t *testing.T) {
	w := LastWill("drone-7", mqtttopic.NewTopicBuilder("flightrelay/v1"))

	assert.Equal(t, "flightrelay/v1/link/drone-7", w.Topic)
	assert.True(t, w.Retain)
	assert.Equal(t, byte(1), w.QoS)

	var got LinkStatus
	require.NoError(t, json.Unmarshal(w.Payload, &got))
	assert.False(t, got.Up)
	assert.Equal(t, "drone-7", got.VehicleID)
}
