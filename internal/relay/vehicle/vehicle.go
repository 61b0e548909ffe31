package vehicle

import (
	"context"
	"errors"
	"fmt"

	"github.com/autopeer-io/flightrelay/internal/relay/core/model"
)

var (
	// ErrLinkLost is returned when the link to the autopilot is down.
	// No command can be served until it comes back.
	ErrLinkLost = errors.New("vehicle link lost")

	// ErrRejected is returned when the autopilot explicitly refuses a request.
	ErrRejected = errors.New("vehicle rejected request")
)

// Vehicle is the port between the relay core and the autopilot link.
// Getters report the most recent ground truth known to the link, which may
// lag the physical vehicle. Setters only issue requests; callers confirm the
// effect by polling.
type Vehicle interface {
	// Status getters.
	Mode(ctx context.Context) (string, error)
	Armed(ctx context.Context) (bool, error)
	Altitude(ctx context.Context) (float64, error)
	IsArmable(ctx context.Context) (bool, error)
	EKFOk(ctx context.Context) (bool, error)
	SystemStatus(ctx context.Context) (string, error)

	// Requests.
	SetMode(ctx context.Context, mode string) error
	SetArmed(ctx context.Context, armed bool) error
	Takeoff(ctx context.Context, altitude float64) error

	// Mission list. Items are staged locally by AddMissionItem and sent to
	// the vehicle by UploadMission.
	ClearMission(ctx context.Context) error
	AddMissionItem(ctx context.Context, item model.MissionItem) error
	UploadMission(ctx context.Context) error

	// Healthy reports whether the link is currently usable.
	Healthy() bool

	// Close releases the link.
	Close() error
}

// Snapshot reads every status field once. The result must not be reused for
// a later poll.
func Snapshot(ctx context.Context, v Vehicle) (model.VehicleState, error) {
	var (
		s   model.VehicleState
		err error
	)

	if s.Mode, err = v.Mode(ctx); err != nil {
		return s, fmt.Errorf("read mode: %w", err)
	}
	if s.Armed, err = v.Armed(ctx); err != nil {
		return s, fmt.Errorf("read armed: %w", err)
	}
	if s.IsArmable, err = v.IsArmable(ctx); err != nil {
		return s, fmt.Errorf("read armable: %w", err)
	}
	if s.EKFOk, err = v.EKFOk(ctx); err != nil {
		return s, fmt.Errorf("read ekf status: %w", err)
	}
	if s.SystemStatus, err = v.SystemStatus(ctx); err != nil {
		return s, fmt.Errorf("read system status: %w", err)
	}
	if s.AltitudeMeters, err = v.Altitude(ctx); err != nil {
		return s, fmt.Errorf("read altitude: %w", err)
	}

	return s, nil
}
