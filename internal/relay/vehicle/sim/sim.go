// Package sim provides an in-process simulated vehicle for development and
// tests. It reacts to requests with a configurable latency and climbs or
// descends at a fixed rate, which is enough to exercise every wait of the
// relay without an autopilot.
package sim

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/flightrelay/internal/relay/core/model"
	"github.com/autopeer-io/flightrelay/internal/relay/vehicle"
	"github.com/autopeer-io/flightrelay/pkg/log"
)

// Options shapes the simulated vehicle.
type Options struct {
	// ModeLatency is the delay before a mode or arm request takes effect.
	ModeLatency time.Duration

	// ClimbRate is the vertical speed in meters per second.
	ClimbRate float64

	// Clock drives the simulation. Defaults to the real clock.
	Clock clock.PassiveClock
}

type pending[T any] struct {
	value T
	due   time.Time
}

// Vehicle is a simulated multicopter.
type Vehicle struct {
	clock       clock.PassiveClock
	modeLatency time.Duration
	climbRate   float64

	mu        sync.Mutex
	mode      string
	armed     bool
	altitude  float64
	targetAlt float64
	lastTick  time.Time
	nextMode  *pending[string]
	nextArmed *pending[bool]
	staged    []model.MissionItem
	mission   []model.MissionItem

	healthy atomic.Bool
}

var _ vehicle.Vehicle = (*Vehicle)(nil)

// New creates a disarmed vehicle on the ground in STABILIZE.
func New(opts Options) *Vehicle {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.ClimbRate <= 0 {
		opts.ClimbRate = 2.5
	}

	v := &Vehicle{
		clock:       opts.Clock,
		modeLatency: opts.ModeLatency,
		climbRate:   opts.ClimbRate,
		mode:        model.ModeStabilize,
		lastTick:    opts.Clock.Now(),
	}
	v.healthy.Store(true)

	log.Info("[Vehicle-Sim] Simulated vehicle ready", "mode", v.mode, "climbRate", v.climbRate, "modeLatency", v.modeLatency)
	return v
}

// SetHealthy simulates link loss and recovery.
func (v *Vehicle) SetHealthy(ok bool) {
	v.healthy.Store(ok)
}

// Mission returns a copy of the mission last uploaded to the vehicle.
func (v *Vehicle) Mission() []model.MissionItem {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.mission)
}

func (v *Vehicle) Healthy() bool { return v.healthy.Load() }

func (v *Vehicle) Close() error {
	v.healthy.Store(false)
	return nil
}

func (v *Vehicle) Mode(ctx context.Context) (string, error) {
	var mode string
	err := v.read(func() { mode = v.mode })
	return mode, err
}

func (v *Vehicle) Armed(ctx context.Context) (bool, error) {
	var armed bool
	err := v.read(func() { armed = v.armed })
	return armed, err
}

func (v *Vehicle) Altitude(ctx context.Context) (float64, error) {
	var alt float64
	err := v.read(func() { alt = v.altitude })
	return alt, err
}

func (v *Vehicle) IsArmable(ctx context.Context) (bool, error) {
	var armable bool
	err := v.read(func() { armable = v.armableLocked() })
	return armable, err
}

func (v *Vehicle) EKFOk(ctx context.Context) (bool, error) {
	return true, v.check()
}

func (v *Vehicle) SystemStatus(ctx context.Context) (string, error) {
	var status string
	err := v.read(func() {
		status = "STANDBY"
		if v.armed {
			status = "ACTIVE"
		}
	})
	return status, err
}

func (v *Vehicle) SetMode(ctx context.Context, mode string) error {
	if err := v.check(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.advanceLocked()

	switch mode {
	case model.ModeGuided, model.ModeAuto, model.ModeLand, model.ModeRTL, model.ModeStabilize, "LOITER", "ALT_HOLD":
	default:
		return fmt.Errorf("%w: unsupported mode %q", vehicle.ErrRejected, mode)
	}

	v.nextMode = &pending[string]{value: mode, due: v.clock.Now().Add(v.modeLatency)}
	log.Debug("[Vehicle-Sim] Mode change requested", "mode", mode)
	return nil
}

func (v *Vehicle) SetArmed(ctx context.Context, armed bool) error {
	if err := v.check(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.advanceLocked()

	v.nextArmed = &pending[bool]{value: armed, due: v.clock.Now().Add(v.modeLatency)}
	log.Debug("[Vehicle-Sim] Arm state requested", "armed", armed)
	return nil
}

func (v *Vehicle) Takeoff(ctx context.Context, altitude float64) error {
	if err := v.check(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.advanceLocked()

	if !v.armed || v.mode != model.ModeGuided {
		return fmt.Errorf("%w: takeoff needs an armed vehicle in GUIDED (mode=%s armed=%t)", vehicle.ErrRejected, v.mode, v.armed)
	}

	v.targetAlt = altitude
	log.Info("[Vehicle-Sim] Taking off", "altitude", altitude)
	return nil
}

func (v *Vehicle) ClearMission(ctx context.Context) error {
	if err := v.check(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.staged = nil
	v.mission = nil
	return nil
}

func (v *Vehicle) AddMissionItem(ctx context.Context, item model.MissionItem) error {
	if err := v.check(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.staged = append(v.staged, item)
	return nil
}

func (v *Vehicle) UploadMission(ctx context.Context) error {
	if err := v.check(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.mission = slices.Clone(v.staged)
	log.Info("[Vehicle-Sim] Mission stored", "items", len(v.mission))
	return nil
}

func (v *Vehicle) check() error {
	if !v.healthy.Load() {
		return vehicle.ErrLinkLost
	}
	return nil
}

func (v *Vehicle) read(fn func()) error {
	if err := v.check(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.advanceLocked()
	fn()
	return nil
}

func (v *Vehicle) armableLocked() bool {
	return v.mode != model.ModeLand && v.mode != model.ModeRTL
}

// advanceLocked applies requests that have come due and integrates altitude
// since the previous call.
func (v *Vehicle) advanceLocked() {
	now := v.clock.Now()

	if v.nextMode != nil && !now.Before(v.nextMode.due) {
		v.mode = v.nextMode.value
		v.nextMode = nil
	}

	if v.nextArmed != nil && !now.Before(v.nextArmed.due) {
		switch {
		case v.nextArmed.value && !v.armableLocked():
			log.Warn("[Vehicle-Sim] Arming refused", "mode", v.mode)
		case !v.nextArmed.value && v.altitude > 0.1:
			log.Warn("[Vehicle-Sim] Disarm refused while airborne", "altitude", v.altitude)
		default:
			v.armed = v.nextArmed.value
			if !v.armed {
				v.targetAlt = 0
			}
		}
		v.nextArmed = nil
	}

	dt := now.Sub(v.lastTick).Seconds()
	v.lastTick = now
	if dt <= 0 || !v.armed {
		return
	}

	step := v.climbRate * dt
	switch v.mode {
	case model.ModeLand, model.ModeRTL:
		v.altitude -= step
		if v.altitude <= 0 {
			v.altitude = 0
			v.targetAlt = 0
			v.armed = false
			log.Info("[Vehicle-Sim] Touched down and disarmed")
		}
	default:
		if v.altitude < v.targetAlt {
			v.altitude = min(v.altitude+step, v.targetAlt)
		}
	}
}
