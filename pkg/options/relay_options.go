package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*RelayOptions)(nil)

// RelayOptions configures the line-oriented TCP command server.
type RelayOptions struct {
	// Addr is the TCP bind address for client connections.
	Addr string `json:"addr" mapstructure:"addr"`

	// MaxLineBytes bounds a single request line, WAYPOINTS payloads included.
	MaxLineBytes int `json:"max-line-bytes" mapstructure:"max-line-bytes"`

	// TakeoffAltitude is the target altitude in meters for TAKEOFF and START_MISSION.
	TakeoffAltitude float64 `json:"takeoff-altitude" mapstructure:"takeoff-altitude"`

	// MaxMissionItems caps the number of records accepted in one WAYPOINTS payload.
	MaxMissionItems int `json:"max-mission-items" mapstructure:"max-mission-items"`
}

// NewRelayOptions creates a RelayOptions object with default parameters.
func NewRelayOptions() *RelayOptions {
	return &RelayOptions{
		Addr:            "0.0.0.0:6000",
		MaxLineBytes:    1 << 20,
		TakeoffAltitude: 10.0,
		MaxMissionItems: 512,
	}
}

// Validate checks the relay options.
func (o *RelayOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}
	if o.MaxLineBytes < 64 {
		errors = append(errors, fmt.Errorf("--relay.max-line-bytes must be at least 64, got %d", o.MaxLineBytes))
	}
	if o.TakeoffAltitude <= 0 {
		errors = append(errors, fmt.Errorf("--relay.takeoff-altitude must be positive, got %v", o.TakeoffAltitude))
	}
	if o.MaxMissionItems <= 0 {
		errors = append(errors, fmt.Errorf("--relay.max-mission-items must be positive, got %d", o.MaxMissionItems))
	}

	return errors
}

// AddFlags adds flags for RelayOptions to the specified FlagSet.
func (o *RelayOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Addr, "relay.addr", o.Addr, "The host:port the command server listens on.")
	fs.IntVar(&o.MaxLineBytes, "relay.max-line-bytes", o.MaxLineBytes, "Maximum size of a single request line.")
	fs.Float64Var(&o.TakeoffAltitude, "relay.takeoff-altitude", o.TakeoffAltitude, "Target altitude in meters for TAKEOFF and START_MISSION.")
	fs.IntVar(&o.MaxMissionItems, "relay.max-mission-items", o.MaxMissionItems, "Maximum number of items in an uploaded mission.")
}
