// Package notifier publishes command outcomes and link status to observers
// outside the TCP session.
package notifier

import (
	"context"
	"time"
)

// Result describes one dispatched command.
type Result struct {
	VehicleID  string    `json:"vehicleId"`
	Command    string    `json:"command"`
	OK         bool      `json:"ok"`
	Message    string    `json:"message,omitempty"`
	Fatal      bool      `json:"fatal,omitempty"`
	DurationMs int64     `json:"durationMs"`
	Timestamp  time.Time `json:"timestamp"`
}

// LinkStatus describes a change of the vehicle link.
type LinkStatus struct {
	VehicleID string    `json:"vehicleId"`
	Up        bool      `json:"up"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives results. Implementations must not block for long and
// must not fail the caller.
type Notifier interface {
	Notify(ctx context.Context, r Result)
	NotifyLink(ctx context.Context, s LinkStatus)
}

// Nop discards everything.
type Nop struct{}

var _ Notifier = Nop{}

func (Nop) Notify(context.Context, Result)         {}
func (Nop) NotifyLink(context.Context, LinkStatus) {}
