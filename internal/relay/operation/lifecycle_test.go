package operation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/flightrelay/internal/relay/wait"
)

func TestLifecyclePhases(t *testing.T) {
	ok := func(context.Context) error { return nil }
	refused := errors.New("refused")

	tests := []struct {
		name    string
		request func(context.Context) error
		await   func(context.Context) error
		want    string
	}{
		{"confirmed", ok, ok, PhaseConfirmed},
		{"request rejected", func(context.Context) error { return refused }, ok, PhaseRejected},
		{"timed out", ok, func(context.Context) error { return fmt.Errorf("%w after 3 attempts", wait.ErrTimeout) }, PhaseTimedOut},
		{"poll failed", ok, func(context.Context) error { return refused }, PhaseRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &phaseRecorder{}
			l := NewLifecycle("arm", nil, rec)

			_ = l.Run(context.Background(), tt.request, tt.await)

			assert.Equal(t, tt.want, l.Current())
			assert.Equal(t, tt.want, rec.get("arm"))
			assert.Empty(t, l.AvailableTransitions())
		})
	}
}

func TestLifecycleRecordsOutcomeAfterCancel(t *testing.T) {
	rec := &phaseRecorder{}
	l := NewLifecycle("mode GUIDED", nil, rec)
	ctx, cancel := context.WithCancel(context.Background())

	err := l.Run(ctx, func(context.Context) error { return nil }, func(context.Context) error {
		cancel()
		return context.Canceled
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PhaseRejected, rec.get("mode GUIDED"))
}

type elapsedRecorder struct {
	elapsed time.Duration
}

func (r *elapsedRecorder) ObservePhase(_, _ string, elapsed time.Duration) {
	r.elapsed = elapsed
}

func TestLifecycleMeasuresOnInjectedClock(t *testing.T) {
	clk := testingclock.NewFakeClock(epoch)
	rec := &elapsedRecorder{}
	l := NewLifecycle("takeoff", clk, rec)

	err := l.Run(context.Background(),
		func(context.Context) error { return nil },
		func(context.Context) error {
			clk.Step(42 * time.Second)
			return nil
		},
	)

	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, rec.elapsed)
}
