package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ClientConfig holds the configuration for creating a new MQTT Client.
type ClientConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive in seconds. Default is 60.
	KeepAlive uint16

	// SessionExpiry in seconds, sent on CONNECT.
	SessionExpiry uint32

	// ConnectTimeout for a single connection attempt. Default is 5s.
	ConnectTimeout time.Duration

	// ReconnectBackoff is the pause between connection attempts. Default is 3s.
	ReconnectBackoff time.Duration

	// CleanStart indicates whether to start a clean session.
	CleanStart bool

	// InsecureSkipVerify disables TLS certificate verification for tls, ssl,
	// mqtts and wss brokers.
	InsecureSkipVerify bool

	// Will is published by the broker if the session ends without DISCONNECT.
	Will *Message

	// OnConnectionUp runs in its own goroutine after every successful connect.
	OnConnectionUp func()
}

func setDefaultConfig(cfg *ClientConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = 3 * time.Second
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60
	}
}

// Validate checks the broker URL and the will topic.
func (c *ClientConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.New("broker url must include a scheme and host")
	}
	if c.Will != nil {
		if c.Will.Topic == "" || strings.ContainsAny(c.Will.Topic, "+#") {
			return fmt.Errorf("will topic %q must be a non-empty topic name without wildcards", c.Will.Topic)
		}
		if c.Will.QoS > 2 {
			return fmt.Errorf("will qos must be 0, 1 or 2, got %d", c.Will.QoS)
		}
	}
	return nil
}

func usesTLS(u *url.URL) bool {
	switch u.Scheme {
	case "tls", "ssl", "mqtts", "wss":
		return true
	}
	return false
}
