package operation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/flightrelay/internal/relay/core/model"
	"github.com/autopeer-io/flightrelay/internal/relay/vehicle"
	"github.com/autopeer-io/flightrelay/internal/relay/vehicle/sim"
	"github.com/autopeer-io/flightrelay/internal/relay/vehicle/vehicletest"
	"github.com/autopeer-io/flightrelay/internal/relay/wait"
)

var epoch = time.Unix(1_700_000_000, 0)

func testTiming() Timing {
	return Timing{
		Mode:     wait.Policy{Interval: 500 * time.Millisecond, MaxAttempts: 60},
		Arm:      wait.Policy{Interval: 500 * time.Millisecond, MaxAttempts: 20},
		Disarm:   wait.Policy{Interval: time.Second, MaxAttempts: 30},
		Altitude: wait.Policy{Interval: time.Second, MaxAttempts: 120},
	}
}

type phaseRecorder struct {
	mu     sync.Mutex
	phases map[string]string
}

func (r *phaseRecorder) ObservePhase(step, phase string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phases == nil {
		r.phases = map[string]string{}
	}
	r.phases[step] = phase
}

func (r *phaseRecorder) get(step string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phases[step]
}

func newExecutor(v vehicle.Vehicle, clk *testingclock.FakeClock, obs PhaseObserver) *Executor {
	return NewExecutor(Config{Vehicle: v, Clock: clk, Timing: testTiming(), Observer: obs})
}

// run executes fn while stepping the fake clock whenever a wait is parked.
func run(t *testing.T, clk *testingclock.FakeClock, step time.Duration, fn func() error) error {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	deadline := time.After(10 * time.Second)
	for {
		select {
		case err := <-done:
			return err
		case <-deadline:
			t.Fatal("operation did not finish")
			return nil
		default:
		}
		if clk.HasWaiters() {
			clk.Step(step)
		} else {
			time.Sleep(time.Millisecond)
		}
	}
}

func TestSetModeConfirmed(t *testing.T) {
	fake := vehicletest.NewFake()
	clk := testingclock.NewFakeClock(epoch)
	rec := &phaseRecorder{}

	err := newExecutor(fake, clk, rec).SetMode(context.Background(), model.ModeLand)

	require.NoError(t, err)
	assert.Equal(t, []string{"SetMode LAND"}, fake.Requests())
	assert.Equal(t, PhaseConfirmed, rec.get("mode LAND"))
}

func TestSetModeTimeout(t *testing.T) {
	fake := vehicletest.NewFake()
	fake.IgnoreMode = true
	clk := testingclock.NewFakeClock(epoch)
	rec := &phaseRecorder{}
	e := newExecutor(fake, clk, rec)

	err := run(t, clk, 500*time.Millisecond, func() error {
		return e.SetMode(context.Background(), model.ModeGuided)
	})

	require.ErrorIs(t, err, ErrModeChangeTimeout)
	assert.Equal(t, testTiming().Mode.Budget(), clk.Since(epoch))
	assert.Equal(t, PhaseTimedOut, rec.get("mode GUIDED"))
}

func TestArmFailsWithinBudget(t *testing.T) {
	fake := vehicletest.NewFake()
	fake.IgnoreArm = true
	clk := testingclock.NewFakeClock(epoch)
	e := newExecutor(fake, clk, nil)

	err := run(t, clk, 500*time.Millisecond, func() error {
		return e.Arm(context.Background())
	})

	require.ErrorIs(t, err, ErrArmingFailed)
	assert.LessOrEqual(t, clk.Since(epoch), 10*time.Second)
	assert.GreaterOrEqual(t, clk.Since(epoch), 9*time.Second)
}

func TestDisarmTimeout(t *testing.T) {
	fake := vehicletest.NewFake()
	fake.Set(model.ModeGuided, true, 0)
	fake.IgnoreArm = true
	clk := testingclock.NewFakeClock(epoch)
	e := newExecutor(fake, clk, nil)

	err := run(t, clk, time.Second, func() error {
		return e.Disarm(context.Background())
	})

	require.ErrorIs(t, err, ErrDisarmTimeout)
	assert.Equal(t, 29*time.Second, clk.Since(epoch))
}

func TestDisarm(t *testing.T) {
	fake := vehicletest.NewFake()
	fake.Set(model.ModeGuided, true, 0)

	err := newExecutor(fake, testingclock.NewFakeClock(epoch), nil).Disarm(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"SetArmed false"}, fake.Requests())
}

func TestArmWithMode(t *testing.T) {
	fake := vehicletest.NewFake()

	err := newExecutor(fake, testingclock.NewFakeClock(epoch), nil).ArmWithMode(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"SetMode GUIDED", "SetArmed true"}, fake.Requests())
}

func TestTakeoffSequence(t *testing.T) {
	fake := vehicletest.NewFake()
	rec := &phaseRecorder{}

	err := newExecutor(fake, testingclock.NewFakeClock(epoch), rec).Takeoff(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, []string{"SetMode GUIDED", "SetArmed true", "Takeoff 10"}, fake.Requests())
	assert.Equal(t, PhaseConfirmed, rec.get("takeoff"))
}

func TestTakeoffAbortsWhenArmingFails(t *testing.T) {
	fake := vehicletest.NewFake()
	fake.IgnoreArm = true
	clk := testingclock.NewFakeClock(epoch)
	e := newExecutor(fake, clk, nil)

	err := run(t, clk, 500*time.Millisecond, func() error {
		return e.Takeoff(context.Background(), 10)
	})

	require.ErrorIs(t, err, ErrArmingFailed)
	assert.NotContains(t, fake.Requests(), "Takeoff 10")
}

func TestTakeoffAltitudeTimeout(t *testing.T) {
	fake := vehicletest.NewFake()
	fake.IgnoreClimb = true
	clk := testingclock.NewFakeClock(epoch)
	rec := &phaseRecorder{}
	e := newExecutor(fake, clk, rec)

	err := run(t, clk, time.Second, func() error {
		return e.Takeoff(context.Background(), 10)
	})

	require.ErrorIs(t, err, ErrAltitudeTimeout)
	assert.Equal(t, PhaseTimedOut, rec.get("takeoff"))
}

func TestTakeoffClimbIgnoresCancellation(t *testing.T) {
	clk := testingclock.NewFakeClock(epoch)
	v := sim.New(sim.Options{ClimbRate: 2, Clock: clk})
	e := newExecutor(v, clk, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Takeoff(ctx, 10) }()

	// Mode and arm settle instantly, so the first parked wait is the climb.
	require.Eventually(t, clk.HasWaiters, 5*time.Second, time.Millisecond)
	cancel()

	err := run(t, clk, time.Second, func() error { return <-done })
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	alt, err := v.Altitude(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, alt, 9.5)
}

func TestStartMissionSequence(t *testing.T) {
	fake := vehicletest.NewFake()

	err := newExecutor(fake, testingclock.NewFakeClock(epoch), nil).StartMission(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"SetMode GUIDED", "SetArmed true", "Takeoff 10", "SetMode AUTO"}, fake.Requests())
}

func TestStartMissionPreconditionNotMet(t *testing.T) {
	fake := vehicletest.NewFake()
	fake.OnRequest = func(request string) {
		if request == "SetArmed true" {
			// Pilot override drops the vehicle out of GUIDED right after arming.
			fake.Set("LOITER", true, 0)
		}
	}

	err := newExecutor(fake, testingclock.NewFakeClock(epoch), nil).StartMission(context.Background())

	require.ErrorIs(t, err, ErrPreconditionNotMet)
	assert.NotContains(t, fake.Requests(), "Takeoff 10")
	assert.NotContains(t, fake.Requests(), "SetMode AUTO")
}

func TestUploadMission(t *testing.T) {
	fake := vehicletest.NewFake()
	items := []model.MissionItem{
		{Latitude: 1, Longitude: 1, Altitude: 10, Kind: model.ItemTakeoff},
		{Latitude: 2, Longitude: 2, Altitude: 20, Kind: model.ItemWaypoint},
		{Latitude: 3, Longitude: 3, Altitude: 0, Kind: model.ItemLand},
	}

	err := newExecutor(fake, testingclock.NewFakeClock(epoch), nil).UploadMission(context.Background(), items)

	require.NoError(t, err)
	assert.Equal(t, items, fake.Mission())
	assert.Equal(t, []string{"ClearMission", "AddMissionItem", "AddMissionItem", "AddMissionItem", "UploadMission"}, fake.Requests())
}

func TestUploadMissionFailureClearsAgain(t *testing.T) {
	fake := vehicletest.NewFake()
	cause := errors.New("no mission ack")
	fake.Fail["UploadMission"] = cause

	err := newExecutor(fake, testingclock.NewFakeClock(epoch), nil).UploadMission(context.Background(), []model.MissionItem{{Latitude: 1}})

	require.ErrorIs(t, err, ErrUploadFailed)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, fake.Mission())
	assert.Equal(t, []string{"ClearMission", "AddMissionItem", "ClearMission"}, fake.Requests())
}

func TestLinkLossSurfacesAsLinkLost(t *testing.T) {
	fake := vehicletest.NewFake()
	fake.SetHealthy(false)
	rec := &phaseRecorder{}

	err := newExecutor(fake, testingclock.NewFakeClock(epoch), rec).SetMode(context.Background(), model.ModeRTL)

	require.ErrorIs(t, err, vehicle.ErrLinkLost)
	assert.NotErrorIs(t, err, ErrModeChangeTimeout)
	assert.Equal(t, PhaseRejected, rec.get("mode RTL"))
}

func TestOperationNames(t *testing.T) {
	e := newExecutor(vehicletest.NewFake(), testingclock.NewFakeClock(epoch), nil)

	assert.Equal(t, "SET_MODE LAND", e.SetModeOp(model.ModeLand).Name())
	assert.Equal(t, "ARM", e.ArmOp().Name())
	assert.Equal(t, "DISARM", e.DisarmOp().Name())
	assert.Equal(t, "TAKEOFF", e.TakeoffOp().Name())
	assert.Equal(t, "START_MISSION", e.StartMissionOp().Name())
	assert.Equal(t, "UPLOAD_MISSION", e.UploadMissionOp(nil).Name())
	assert.Equal(t, DefaultTakeoffAltitude, e.TakeoffAltitude())
}
