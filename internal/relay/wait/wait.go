// Package wait polls a condition on a fixed interval with a bounded number
// of attempts.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/utils/clock"
)

// ErrTimeout is returned when the condition stays unmet for every attempt.
var ErrTimeout = errors.New("condition not met")

// Policy bounds a wait.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

// Budget is the worst-case time spent sleeping between attempts.
func (p Policy) Budget() time.Duration {
	if p.MaxAttempts <= 1 {
		return 0
	}
	return time.Duration(p.MaxAttempts-1) * p.Interval
}

// Condition reports whether the awaited state holds. An error aborts the wait.
type Condition func(ctx context.Context) (bool, error)

// Until evaluates cond immediately and then once per Interval until it holds,
// it fails, ctx is done, or MaxAttempts evaluations came back false.
// A non-positive MaxAttempts means a single evaluation.
func Until(ctx context.Context, clk clock.Clock, p Policy, cond Condition) error {
	for attempt := 1; ; attempt++ {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if attempt >= p.MaxAttempts {
			return fmt.Errorf("%w after %d attempts", ErrTimeout, attempt)
		}

		t := clk.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C():
		}
	}
}
