package mqtt

import (
	"context"
	"errors"
)

// ErrNotStarted is returned by calls made before Start.
var ErrNotStarted = errors.New("mqtt client not started")

// Client is a managed MQTT v5 session used for publishing. The connection is
// kept alive in the background and re-established after drops.
type Client interface {
	// Start dials the broker in the background and returns immediately.
	Start(ctx context.Context) error

	// Disconnect sends DISCONNECT and stops reconnecting.
	Disconnect(ctx context.Context)

	// Publish sends payload on topic. QoS 1 and 2 block until acknowledged or ctx is done.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// IsConnected reports whether the last connection attempt succeeded and has not dropped.
	IsConnected() bool
}

// Message is a publication prepared ahead of time, such as a last will.
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}
