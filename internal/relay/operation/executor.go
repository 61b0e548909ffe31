// Package operation implements the multi-step vehicle procedures behind each
// relay command. Every procedure issues requests through vehicle.Vehicle and
// confirms their effect with bounded polling.
package operation

import (
	"context"
	"errors"
	"fmt"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/flightrelay/internal/relay/core/model"
	"github.com/autopeer-io/flightrelay/internal/relay/vehicle"
	"github.com/autopeer-io/flightrelay/internal/relay/wait"
	"github.com/autopeer-io/flightrelay/pkg/log"
)

// DefaultTakeoffAltitude is the climb target of TAKEOFF and START_MISSION.
const DefaultTakeoffAltitude = 10.0

// altitudeTolerance is the fraction of the target altitude accepted as reached.
const altitudeTolerance = 0.95

// Timing holds the polling policy of each wait.
type Timing struct {
	Mode     wait.Policy
	Arm      wait.Policy
	Disarm   wait.Policy
	Altitude wait.Policy
}

// Operation is one command's procedure.
type Operation interface {
	Name() string
	Execute(ctx context.Context) error
}

type opFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (o opFunc) Name() string                      { return o.name }
func (o opFunc) Execute(ctx context.Context) error { return o.fn(ctx) }

// Config configures an Executor.
type Config struct {
	Vehicle         vehicle.Vehicle
	Clock           clock.Clock
	Timing          Timing
	TakeoffAltitude float64
	Observer        PhaseObserver
}

// Executor runs procedures against one vehicle. Callers serialize access;
// Executor itself holds no lock.
type Executor struct {
	vehicle         vehicle.Vehicle
	clock           clock.Clock
	timing          Timing
	takeoffAltitude float64
	observer        PhaseObserver
}

// NewExecutor creates an Executor from cfg.
func NewExecutor(cfg Config) *Executor {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.TakeoffAltitude <= 0 {
		cfg.TakeoffAltitude = DefaultTakeoffAltitude
	}

	return &Executor{
		vehicle:         cfg.Vehicle,
		clock:           cfg.Clock,
		timing:          cfg.Timing,
		takeoffAltitude: cfg.TakeoffAltitude,
		observer:        cfg.Observer,
	}
}

// TakeoffAltitude is the configured default climb target.
func (e *Executor) TakeoffAltitude() float64 { return e.takeoffAltitude }

// SetModeOp switches to mode and waits for the vehicle to report it.
func (e *Executor) SetModeOp(mode string) Operation {
	return opFunc{name: "SET_MODE " + mode, fn: func(ctx context.Context) error { return e.SetMode(ctx, mode) }}
}

// ArmOp selects GUIDED and arms.
func (e *Executor) ArmOp() Operation { return opFunc{name: "ARM", fn: e.ArmWithMode} }

// DisarmOp disarms.
func (e *Executor) DisarmOp() Operation { return opFunc{name: "DISARM", fn: e.Disarm} }

// TakeoffOp climbs to the default altitude.
func (e *Executor) TakeoffOp() Operation {
	return opFunc{name: "TAKEOFF", fn: func(ctx context.Context) error { return e.Takeoff(ctx, e.takeoffAltitude) }}
}

// StartMissionOp launches the uploaded mission.
func (e *Executor) StartMissionOp() Operation {
	return opFunc{name: "START_MISSION", fn: e.StartMission}
}

// UploadMissionOp replaces the vehicle's mission with items.
func (e *Executor) UploadMissionOp(items []model.MissionItem) Operation {
	return opFunc{name: "UPLOAD_MISSION", fn: func(ctx context.Context) error { return e.UploadMission(ctx, items) }}
}

// SetMode requests mode and waits until the vehicle reports it.
func (e *Executor) SetMode(ctx context.Context, mode string) error {
	log.Info("[Operation] Setting mode", "mode", mode)

	err := NewLifecycle("mode "+mode, e.clock, e.observer).Run(ctx,
		func(ctx context.Context) error { return e.vehicle.SetMode(ctx, mode) },
		func(ctx context.Context) error {
			return wait.Until(ctx, e.clock, e.timing.Mode, ModeReached(e.vehicle, mode))
		},
	)
	if errors.Is(err, wait.ErrTimeout) {
		return fmt.Errorf("%w: %s not reached within %s", ErrModeChangeTimeout, mode, e.timing.Mode.Budget())
	}
	if err != nil {
		return fmt.Errorf("set mode %s: %w", mode, err)
	}
	return nil
}

// Arm requests arming and waits for the armed flag.
func (e *Executor) Arm(ctx context.Context) error {
	state, err := vehicle.Snapshot(ctx, e.vehicle)
	if err != nil {
		return fmt.Errorf("arm: %w", err)
	}
	log.Info("[Operation] Attempting to arm vehicle",
		"isArmable", state.IsArmable,
		"mode", state.Mode,
		"ekfOk", state.EKFOk,
		"systemStatus", state.SystemStatus,
	)

	err = NewLifecycle("arm", e.clock, e.observer).Run(ctx,
		func(ctx context.Context) error { return e.vehicle.SetArmed(ctx, true) },
		func(ctx context.Context) error {
			return wait.Until(ctx, e.clock, e.timing.Arm, ArmedIs(e.vehicle, true))
		},
	)
	if errors.Is(err, wait.ErrTimeout) {
		return fmt.Errorf("%w: vehicle not armed within %s, check pre-arm conditions or mode", ErrArmingFailed, e.timing.Arm.Budget())
	}
	if err != nil {
		return fmt.Errorf("arm: %w", err)
	}
	return nil
}

// Disarm requests disarming and waits for the armed flag to clear.
func (e *Executor) Disarm(ctx context.Context) error {
	log.Info("[Operation] Disarming vehicle")

	err := NewLifecycle("disarm", e.clock, e.observer).Run(ctx,
		func(ctx context.Context) error { return e.vehicle.SetArmed(ctx, false) },
		func(ctx context.Context) error {
			return wait.Until(ctx, e.clock, e.timing.Disarm, ArmedIs(e.vehicle, false))
		},
	)
	if errors.Is(err, wait.ErrTimeout) {
		return fmt.Errorf("%w: vehicle still armed after %s", ErrDisarmTimeout, e.timing.Disarm.Budget())
	}
	if err != nil {
		return fmt.Errorf("disarm: %w", err)
	}
	return nil
}

// ArmWithMode selects GUIDED and arms.
func (e *Executor) ArmWithMode(ctx context.Context) error {
	if err := e.SetMode(ctx, model.ModeGuided); err != nil {
		return err
	}
	return e.Arm(ctx)
}

// Takeoff selects GUIDED, arms and climbs to altitude meters.
func (e *Executor) Takeoff(ctx context.Context, altitude float64) error {
	log.Info("[Operation] Initiating takeoff", "altitude", altitude)

	if err := e.ArmWithMode(ctx); err != nil {
		return err
	}
	return e.climb(ctx, altitude)
}

// climb sends the takeoff request and waits for the target altitude. Once
// the request is out, shutdown no longer interrupts the wait.
func (e *Executor) climb(ctx context.Context, altitude float64) error {
	target := altitude * altitudeTolerance

	err := NewLifecycle("takeoff", e.clock, e.observer).Run(ctx,
		func(ctx context.Context) error { return e.vehicle.Takeoff(ctx, altitude) },
		func(ctx context.Context) error {
			return wait.Until(context.WithoutCancel(ctx), e.clock, e.timing.Altitude, AltitudeReached(e.vehicle, target))
		},
	)
	if errors.Is(err, wait.ErrTimeout) {
		return fmt.Errorf("%w: %.1fm not reached within %s", ErrAltitudeTimeout, target, e.timing.Altitude.Budget())
	}
	if err != nil {
		return fmt.Errorf("takeoff: %w", err)
	}
	return nil
}

// StartMission arms in GUIDED, climbs to the default altitude and hands
// control to the uploaded mission in AUTO.
func (e *Executor) StartMission(ctx context.Context) error {
	log.Info("[Operation] Starting uploaded mission")

	if err := e.ArmWithMode(ctx); err != nil {
		return err
	}

	mode, err := e.vehicle.Mode(ctx)
	if err != nil {
		return fmt.Errorf("start mission: %w", err)
	}
	armed, err := e.vehicle.Armed(ctx)
	if err != nil {
		return fmt.Errorf("start mission: %w", err)
	}
	if mode != model.ModeGuided || !armed {
		return fmt.Errorf("%w: takeoff needs GUIDED and armed, vehicle is %s armed=%t", ErrPreconditionNotMet, mode, armed)
	}

	if err := e.climb(ctx, e.takeoffAltitude); err != nil {
		return err
	}

	if err := e.SetMode(ctx, model.ModeAuto); err != nil {
		return err
	}
	log.Info("[Operation] Mission started")
	return nil
}

// UploadMission clears the vehicle's mission, stages items in order and
// uploads them. On failure the mission is cleared again so no partial plan
// is left behind.
func (e *Executor) UploadMission(ctx context.Context, items []model.MissionItem) error {
	log.Info("[Operation] Uploading mission", "items", len(items))

	if err := e.vehicle.ClearMission(ctx); err != nil {
		return fmt.Errorf("%w: clear: %w", ErrUploadFailed, err)
	}

	if err := e.stageAndUpload(ctx, items); err != nil {
		if clearErr := e.vehicle.ClearMission(context.WithoutCancel(ctx)); clearErr != nil {
			log.Error(clearErr, "[Operation] Failed to clear partial mission")
		}
		return fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	log.Info("[Operation] Mission uploaded", "items", len(items))
	return nil
}

func (e *Executor) stageAndUpload(ctx context.Context, items []model.MissionItem) error {
	for i, item := range items {
		if err := e.vehicle.AddMissionItem(ctx, item); err != nil {
			return fmt.Errorf("add item %d: %w", i, err)
		}
	}
	if err := e.vehicle.UploadMission(ctx); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	return nil
}
