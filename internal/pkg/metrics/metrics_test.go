package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseObserver(t *testing.T) {
	c := StepPhaseTotal.WithLabelValues("arm", "timed_out")
	before := testutil.ToFloat64(c)

	PhaseObserver{}.ObservePhase("arm", "timed_out", time.Second)

	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestSetLinkUp(t *testing.T) {
	SetLinkUp(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(VehicleLinkUp))
	SetLinkUp(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(VehicleLinkUp))
}

func TestRegistryGathers(t *testing.T) {
	CommandsTotal.WithLabelValues("ARM", "ok").Inc()

	families, err := Registry.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "flightrelay_commands_total")
	assert.Contains(t, names, "flightrelay_vehicle_link_up")
}

func TestCommandDurationHelp(t *testing.T) {
	CommandDuration.WithLabelValues("LAND").Observe(0.2)

	families, err := Registry.Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() == "flightrelay_command_duration_seconds" {
			assert.Contains(t, f.GetHelp(), "lock wait")
			assert.NotContains(t, f.GetHelp(), "while holding")
			return
		}
	}
	t.Fatal("command duration histogram not registered")
}
