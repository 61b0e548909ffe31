// Package vehicletest provides a scripted vehicle.Vehicle for tests.
package vehicletest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/autopeer-io/flightrelay/internal/relay/core/model"
	"github.com/autopeer-io/flightrelay/internal/relay/vehicle"
)

// Fake applies requests instantly unless told to ignore them, and records
// every request in order.
type Fake struct {
	mu sync.Mutex

	mode     string
	armed    bool
	altitude float64
	staged   []model.MissionItem
	mission  []model.MissionItem
	requests []string

	// IgnoreMode, IgnoreArm and IgnoreClimb accept requests without effect.
	IgnoreMode  bool
	IgnoreArm   bool
	IgnoreClimb bool

	// Fail maps a method name such as "SetMode" to the error it returns.
	Fail map[string]error

	// OnRequest runs after each request is recorded, outside the lock.
	OnRequest func(request string)

	unhealthy atomic.Bool
}

var _ vehicle.Vehicle = (*Fake)(nil)

// NewFake returns a disarmed fake in STABILIZE.
func NewFake() *Fake {
	return &Fake{mode: model.ModeStabilize, Fail: map[string]error{}}
}

// Requests returns the recorded requests.
func (f *Fake) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

// Mission returns the last uploaded mission.
func (f *Fake) Mission() []model.MissionItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.mission)
}

// Set overwrites the reported state.
func (f *Fake) Set(mode string, armed bool, altitude float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode, f.armed, f.altitude = mode, armed, altitude
}

// SetHealthy toggles the link.
func (f *Fake) SetHealthy(ok bool) { f.unhealthy.Store(!ok) }

func (f *Fake) Healthy() bool { return !f.unhealthy.Load() }
func (f *Fake) Close() error  { return nil }

func (f *Fake) fail(method string) error {
	if f.unhealthy.Load() {
		return vehicle.ErrLinkLost
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Fail[method]
}

func (f *Fake) request(method, request string, apply func()) error {
	if err := f.fail(method); err != nil {
		return err
	}

	f.mu.Lock()
	f.requests = append(f.requests, request)
	apply()
	hook := f.OnRequest
	f.mu.Unlock()

	if hook != nil {
		hook(request)
	}
	return nil
}

func (f *Fake) Mode(ctx context.Context) (string, error) {
	if err := f.fail("Mode"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode, nil
}

func (f *Fake) Armed(ctx context.Context) (bool, error) {
	if err := f.fail("Armed"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed, nil
}

func (f *Fake) Altitude(ctx context.Context) (float64, error) {
	if err := f.fail("Altitude"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.altitude, nil
}

func (f *Fake) IsArmable(ctx context.Context) (bool, error) {
	return true, f.fail("IsArmable")
}

func (f *Fake) EKFOk(ctx context.Context) (bool, error) {
	return true, f.fail("EKFOk")
}

func (f *Fake) SystemStatus(ctx context.Context) (string, error) {
	return "STANDBY", f.fail("SystemStatus")
}

func (f *Fake) SetMode(ctx context.Context, mode string) error {
	return f.request("SetMode", "SetMode "+mode, func() {
		if !f.IgnoreMode {
			f.mode = mode
		}
	})
}

func (f *Fake) SetArmed(ctx context.Context, armed bool) error {
	return f.request("SetArmed", fmt.Sprintf("SetArmed %t", armed), func() {
		if !f.IgnoreArm {
			f.armed = armed
		}
	})
}

func (f *Fake) Takeoff(ctx context.Context, altitude float64) error {
	return f.request("Takeoff", fmt.Sprintf("Takeoff %g", altitude), func() {
		if !f.IgnoreClimb {
			f.altitude = altitude
		}
	})
}

func (f *Fake) ClearMission(ctx context.Context) error {
	return f.request("ClearMission", "ClearMission", func() {
		f.staged = nil
		f.mission = nil
	})
}

func (f *Fake) AddMissionItem(ctx context.Context, item model.MissionItem) error {
	return f.request("AddMissionItem", "AddMissionItem", func() {
		f.staged = append(f.staged, item)
	})
}

func (f *Fake) UploadMission(ctx context.Context) error {
	return f.request("UploadMission", "UploadMission", func() {
		f.mission = slices.Clone(f.staged)
	})
}
