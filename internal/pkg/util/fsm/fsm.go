// Package fsm holds helpers shared by the looplab/fsm state machines of the relay.
package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts a callback that can fail. A returned error is stored on
// the event and surfaces from FSM.Event.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// Fire applies event on a context detached from cancellation so a terminal
// transition is still recorded after the caller gave up.
// A NoTransitionError is not reported.
func Fire(ctx context.Context, m *fsm.FSM, event string, args ...any) error {
	err := m.Event(context.WithoutCancel(ctx), event, args...)

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return err
}
