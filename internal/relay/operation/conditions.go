package operation

import (
	"context"

	"github.com/autopeer-io/flightrelay/internal/relay/vehicle"
	"github.com/autopeer-io/flightrelay/internal/relay/wait"
)

// ModeReached holds once the vehicle reports the given mode.
func ModeReached(v vehicle.Vehicle, mode string) wait.Condition {
	return func(ctx context.Context) (bool, error) {
		current, err := v.Mode(ctx)
		return current == mode, err
	}
}

// ArmedIs holds once the vehicle's armed flag equals want.
func ArmedIs(v vehicle.Vehicle, want bool) wait.Condition {
	return func(ctx context.Context) (bool, error) {
		armed, err := v.Armed(ctx)
		return armed == want, err
	}
}

// AltitudeReached holds once the relative altitude is at least target meters.
func AltitudeReached(v vehicle.Vehicle, target float64) wait.Condition {
	return func(ctx context.Context) (bool, error) {
		alt, err := v.Altitude(ctx)
		return alt >= target, err
	}
}
