package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*TimingOptions)(nil)

// PollOptions describes one bounded polling loop.
type PollOptions struct {
	Interval    time.Duration `json:"interval" mapstructure:"interval"`
	MaxAttempts int           `json:"max-attempts" mapstructure:"max-attempts"`
}

// TimingOptions holds the polling cadence and attempt caps of every vehicle wait.
type TimingOptions struct {
	Mode     PollOptions `json:"mode" mapstructure:"mode"`
	Arm      PollOptions `json:"arm" mapstructure:"arm"`
	Disarm   PollOptions `json:"disarm" mapstructure:"disarm"`
	Altitude PollOptions `json:"altitude" mapstructure:"altitude"`
}

// NewTimingOptions returns the default wait budgets.
func NewTimingOptions() *TimingOptions {
	return &TimingOptions{
		Mode:     PollOptions{Interval: 500 * time.Millisecond, MaxAttempts: 60},
		Arm:      PollOptions{Interval: 500 * time.Millisecond, MaxAttempts: 20},
		Disarm:   PollOptions{Interval: time.Second, MaxAttempts: 30},
		Altitude: PollOptions{Interval: time.Second, MaxAttempts: 120},
	}
}

// Validate rejects zero or negative intervals and attempt caps.
func (o *TimingOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	for name, p := range map[string]PollOptions{
		"mode":     o.Mode,
		"arm":      o.Arm,
		"disarm":   o.Disarm,
		"altitude": o.Altitude,
	} {
		if p.Interval <= 0 {
			errors = append(errors, fmt.Errorf("--timing.%s.interval must be positive", name))
		}
		if p.MaxAttempts <= 0 {
			errors = append(errors, fmt.Errorf("--timing.%s.max-attempts must be positive", name))
		}
	}

	return errors
}

// AddFlags adds flags for TimingOptions to the specified FlagSet.
func (o *TimingOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.Mode.Interval, "timing.mode.interval", o.Mode.Interval, "Poll interval while waiting for a mode change.")
	fs.IntVar(&o.Mode.MaxAttempts, "timing.mode.max-attempts", o.Mode.MaxAttempts, "Polls before a mode change is reported as timed out.")
	fs.DurationVar(&o.Arm.Interval, "timing.arm.interval", o.Arm.Interval, "Poll interval while waiting for the vehicle to arm.")
	fs.IntVar(&o.Arm.MaxAttempts, "timing.arm.max-attempts", o.Arm.MaxAttempts, "Polls before arming is reported as failed.")
	fs.DurationVar(&o.Disarm.Interval, "timing.disarm.interval", o.Disarm.Interval, "Poll interval while waiting for the vehicle to disarm.")
	fs.IntVar(&o.Disarm.MaxAttempts, "timing.disarm.max-attempts", o.Disarm.MaxAttempts, "Polls before disarming is reported as timed out.")
	fs.DurationVar(&o.Altitude.Interval, "timing.altitude.interval", o.Altitude.Interval, "Poll interval while climbing to the takeoff altitude.")
	fs.IntVar(&o.Altitude.MaxAttempts, "timing.altitude.max-attempts", o.Altitude.MaxAttempts, "Polls before the climb is reported as timed out.")
}
