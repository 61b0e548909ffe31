package notifier

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/autopeer-io/flightrelay/internal/pkg/metrics"
	"github.com/autopeer-io/flightrelay/pkg/log"
	"github.com/autopeer-io/flightrelay/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/flightrelay/pkg/mqtt/topic"
)

// MQTT publishes results as JSON on {root}/result/{vehicle} and link status
// as a retained message on {root}/link/{vehicle}.
type MQTT struct {
	vid     string
	mc      mqtt.Client
	topics  *mqtttopic.TopicBuilder
	timeout time.Duration

	// results is drained by Start so a slow broker never delays a reply.
	results chan Result

	mu       sync.Mutex
	lastLink *LinkStatus
}

// resultQueueSize bounds the results waiting for the broker.
const resultQueueSize = 64

var _ Notifier = (*MQTT)(nil)

// NewMQTT wraps an MQTT client. The client is started by Start.
func NewMQTT(vid string, client mqtt.Client, topics *mqtttopic.TopicBuilder, publishTimeout time.Duration) *MQTT {
	if publishTimeout <= 0 {
		publishTimeout = 2 * time.Second
	}
	return &MQTT{
		vid:     vid,
		mc:      client,
		topics:  topics,
		timeout: publishTimeout,
		results: make(chan Result, resultQueueSize),
	}
}

// Start connects to the broker and keeps the session until ctx is done.
// The broker being unreachable does not stop the relay; autopaho keeps
// retrying in the background.
func (n *MQTT) Start(ctx context.Context) error {
	if err := n.mc.Start(ctx); err != nil {
		return err
	}
	log.Info("[Notifier] MQTT notifier started", "vehicleID", n.vid, "topic", n.topics.Result(n.vid))

	for done := false; !done; {
		select {
		case r := <-n.results:
			n.publish(ctx, n.topics.Result(n.vid), false, r)
		case <-ctx.Done():
			done = true
		}
	}

	log.Info("[Notifier] Disconnecting MQTT client...")
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n.mc.Disconnect(stopCtx)
	return nil
}

// Notify queues r for publishing and returns at once. Results are dropped
// while the queue is full.
func (n *MQTT) Notify(_ context.Context, r Result) {
	if r.VehicleID == "" {
		r.VehicleID = n.vid
	}
	select {
	case n.results <- r:
	default:
		metrics.NotifyFailuresTotal.Inc()
		log.Warn("[Notifier] Result queue full, dropping result", "command", r.Command)
	}
}

// NotifyLink publishes s retained and remembers it for Resync.
func (n *MQTT) NotifyLink(ctx context.Context, s LinkStatus) {
	if s.VehicleID == "" {
		s.VehicleID = n.vid
	}
	n.mu.Lock()
	n.lastLink = &s
	n.mu.Unlock()

	n.publish(ctx, n.topics.Link(n.vid), true, s)
}

// Resync republishes the last link status. It is called on every broker
// connect so the retained state overrides a will left by an earlier session.
func (n *MQTT) Resync(ctx context.Context) {
	n.mu.Lock()
	last := n.lastLink
	n.mu.Unlock()

	if last == nil {
		return
	}
	n.publish(ctx, n.topics.Link(n.vid), true, *last)
}

// LastWill is the retained link-down message the broker publishes when the
// relay disappears without disconnecting.
func LastWill(vid string, topics *mqtttopic.TopicBuilder) *mqtt.Message {
	payload, _ := json.Marshal(LinkStatus{VehicleID: vid, Up: false})
	return &mqtt.Message{Topic: topics.Link(vid), Payload: payload, QoS: 1, Retain: true}
}

func (n *MQTT) publish(ctx context.Context, topic string, retain bool, v any) {
	if !n.mc.IsConnected() {
		metrics.NotifyFailuresTotal.Inc()
		log.Debug("[Notifier] Broker not connected, dropping message", "topic", topic)
		return
	}

	payload, err := json.Marshal(v)
	if err != nil {
		metrics.NotifyFailuresTotal.Inc()
		log.Error(err, "[Notifier] Failed to encode message", "topic", topic)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	if err := n.mc.Publish(ctx, topic, 1, retain, payload); err != nil {
		metrics.NotifyFailuresTotal.Inc()
		log.Error(err, "[Notifier] Publish failed", "topic", topic)
	}
}
