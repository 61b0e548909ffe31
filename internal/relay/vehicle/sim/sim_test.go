package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/flightrelay/internal/relay/core/model"
	"github.com/autopeer-io/flightrelay/internal/relay/vehicle"
)

func newTestVehicle(t *testing.T) (*Vehicle, *testingclock.FakeClock) {
	t.Helper()
	clk := testingclock.NewFakeClock(time.Unix(0, 0))
	return New(Options{ModeLatency: time.Second, ClimbRate: 2, Clock: clk}), clk
}

func TestModeChangeAppliesAfterLatency(t *testing.T) {
	ctx := context.Background()
	v, clk := newTestVehicle(t)

	require.NoError(t, v.SetMode(ctx, model.ModeGuided))

	mode, err := v.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ModeStabilize, mode)

	clk.Step(time.Second)
	mode, err = v.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ModeGuided, mode)
}

func TestUnsupportedModeRejected(t *testing.T) {
	v, _ := newTestVehicle(t)
	err := v.SetMode(context.Background(), "FLIP")
	assert.ErrorIs(t, err, vehicle.ErrRejected)
}

func TestTakeoffClimbsToTarget(t *testing.T) {
	ctx := context.Background()
	v, clk := newTestVehicle(t)

	require.NoError(t, v.SetMode(ctx, model.ModeGuided))
	require.NoError(t, v.SetArmed(ctx, true))
	clk.Step(time.Second)

	armed, err := v.Armed(ctx)
	require.NoError(t, err)
	require.True(t, armed)

	require.NoError(t, v.Takeoff(ctx, 10))
	clk.Step(3 * time.Second)
	alt, err := v.Altitude(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, alt, 0.001)

	clk.Step(10 * time.Second)
	alt, err = v.Altitude(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, alt, 0.001)
}

func TestTakeoffRequiresArmedGuided(t *testing.T) {
	v, _ := newTestVehicle(t)
	err := v.Takeoff(context.Background(), 10)
	assert.ErrorIs(t, err, vehicle.ErrRejected)
}

func TestLandDescendsAndDisarms(t *testing.T) {
	ctx := context.Background()
	v, clk := newTestVehicle(t)

	require.NoError(t, v.SetMode(ctx, model.ModeGuided))
	require.NoError(t, v.SetArmed(ctx, true))
	clk.Step(time.Second)
	require.NoError(t, v.Takeoff(ctx, 4))
	clk.Step(2 * time.Second)

	require.NoError(t, v.SetMode(ctx, model.ModeLand))
	clk.Step(time.Second)
	_, err := v.Mode(ctx)
	require.NoError(t, err)

	clk.Step(5 * time.Second)
	alt, err := v.Altitude(ctx)
	require.NoError(t, err)
	assert.Zero(t, alt)

	armed, err := v.Armed(ctx)
	require.NoError(t, err)
	assert.False(t, armed)
}

func TestDisarmRefusedWhileAirborne(t *testing.T) {
	ctx := context.Background()
	v, clk := newTestVehicle(t)

	require.NoError(t, v.SetMode(ctx, model.ModeGuided))
	require.NoError(t, v.SetArmed(ctx, true))
	clk.Step(time.Second)
	require.NoError(t, v.Takeoff(ctx, 10))
	clk.Step(2 * time.Second)

	require.NoError(t, v.SetArmed(ctx, false))
	clk.Step(time.Second)

	armed, err := v.Armed(ctx)
	require.NoError(t, err)
	assert.True(t, armed)
}

func TestMissionUpload(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVehicle(t)

	items := []model.MissionItem{
		{Latitude: 1, Longitude: 2, Altitude: 10, Kind: model.ItemTakeoff},
		{Latitude: 3, Longitude: 4, Altitude: 20, Kind: model.ItemWaypoint},
	}

	require.NoError(t, v.ClearMission(ctx))
	for _, it := range items {
		require.NoError(t, v.AddMissionItem(ctx, it))
	}
	assert.Empty(t, v.Mission())

	require.NoError(t, v.UploadMission(ctx))
	assert.Equal(t, items, v.Mission())
}

func TestUnhealthyLinkFailsEveryCall(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVehicle(t)
	v.SetHealthy(false)

	assert.False(t, v.Healthy())

	_, err := v.Mode(ctx)
	assert.ErrorIs(t, err, vehicle.ErrLinkLost)
	assert.ErrorIs(t, v.SetArmed(ctx, true), vehicle.ErrLinkLost)
	assert.ErrorIs(t, v.UploadMission(ctx), vehicle.ErrLinkLost)

	_, err = vehicle.Snapshot(ctx, v)
	assert.ErrorIs(t, err, vehicle.ErrLinkLost)
}
