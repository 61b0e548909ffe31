package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*VehicleOptions)(nil)

const (
	VehicleDriverSim     = "sim"
	VehicleDriverMavlink = "mavlink"
)

// VehicleOptions selects and configures the vehicle link.
type VehicleOptions struct {
	// Driver is either "sim" (in-process simulated vehicle) or "mavlink".
	Driver string `json:"driver" mapstructure:"driver"`

	// Endpoint is the autopilot address, e.g. tcp:127.0.0.1:5763 or udp:0.0.0.0:14550.
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`

	// SystemID is the MAVLink system id this relay uses on the link.
	SystemID int `json:"system-id" mapstructure:"system-id"`

	// HeartbeatTimeout marks the link lost when no heartbeat arrives in time.
	HeartbeatTimeout time.Duration `json:"heartbeat-timeout" mapstructure:"heartbeat-timeout"`

	// ConnectTimeout bounds the wait for the first heartbeat at startup.
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`

	// ConnectRetry is the pause between connection attempts. Zero gives up
	// after the first failed attempt.
	ConnectRetry time.Duration `json:"connect-retry" mapstructure:"connect-retry"`

	// MissionTimeout bounds a single mission upload handshake.
	MissionTimeout time.Duration `json:"mission-timeout" mapstructure:"mission-timeout"`

	// SimModeLatency and SimClimbRate shape the simulated vehicle.
	SimModeLatency time.Duration `json:"sim-mode-latency" mapstructure:"sim-mode-latency"`
	SimClimbRate   float64       `json:"sim-climb-rate" mapstructure:"sim-climb-rate"`
}

// NewVehicleOptions returns defaults suitable for a local SITL instance.
func NewVehicleOptions() *VehicleOptions {
	return &VehicleOptions{
		Driver:           VehicleDriverSim,
		Endpoint:         "tcp:127.0.0.1:5763",
		SystemID:         255,
		HeartbeatTimeout: 5 * time.Second,
		ConnectTimeout:   60 * time.Second,
		ConnectRetry:     5 * time.Second,
		MissionTimeout:   15 * time.Second,
		SimModeLatency:   300 * time.Millisecond,
		SimClimbRate:     2.5,
	}
}

// Validate checks the vehicle options.
func (o *VehicleOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	switch o.Driver {
	case VehicleDriverSim, VehicleDriverMavlink:
	default:
		errors = append(errors, fmt.Errorf("--vehicle.driver must be %q or %q, got %q", VehicleDriverSim, VehicleDriverMavlink, o.Driver))
	}
	if o.SystemID < 1 || o.SystemID > 255 {
		errors = append(errors, fmt.Errorf("--vehicle.system-id must be within 1..255, got %d", o.SystemID))
	}
	if o.HeartbeatTimeout <= 0 {
		errors = append(errors, fmt.Errorf("--vehicle.heartbeat-timeout must be positive"))
	}
	if o.ConnectRetry < 0 {
		errors = append(errors, fmt.Errorf("--vehicle.connect-retry must not be negative"))
	}
	if o.SimClimbRate <= 0 {
		errors = append(errors, fmt.Errorf("--vehicle.sim-climb-rate must be positive"))
	}

	return errors
}

// AddFlags adds flags for VehicleOptions to the specified FlagSet.
func (o *VehicleOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Driver, "vehicle.driver", o.Driver, "Vehicle link driver: 'sim' or 'mavlink'.")
	fs.StringVar(&o.Endpoint, "vehicle.endpoint", o.Endpoint, "Autopilot endpoint: tcp:HOST:PORT, udp:HOST:PORT, udp-client:HOST:PORT or serial:DEVICE:BAUD.")
	fs.IntVar(&o.SystemID, "vehicle.system-id", o.SystemID, "MAVLink system id used by the relay.")
	fs.DurationVar(&o.HeartbeatTimeout, "vehicle.heartbeat-timeout", o.HeartbeatTimeout, "Declare the link lost after this long without a heartbeat.")
	fs.DurationVar(&o.ConnectTimeout, "vehicle.connect-timeout", o.ConnectTimeout, "Wait this long for the first heartbeat at startup.")
	fs.DurationVar(&o.ConnectRetry, "vehicle.connect-retry", o.ConnectRetry, "Pause between connection attempts; 0 disables retrying.")
	fs.DurationVar(&o.MissionTimeout, "vehicle.mission-timeout", o.MissionTimeout, "Timeout of a single mission upload handshake.")
	fs.DurationVar(&o.SimModeLatency, "vehicle.sim-mode-latency", o.SimModeLatency, "Simulated delay before a mode or arm request takes effect.")
	fs.Float64Var(&o.SimClimbRate, "vehicle.sim-climb-rate", o.SimClimbRate, "Simulated climb rate in meters per second.")
}
