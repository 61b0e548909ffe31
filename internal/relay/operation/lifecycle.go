package operation

import (
	"context"
	"errors"
	"time"

	"github.com/looplab/fsm"
	"k8s.io/utils/clock"

	fsmutil "github.com/autopeer-io/flightrelay/internal/pkg/util/fsm"
	"github.com/autopeer-io/flightrelay/internal/relay/wait"
	"github.com/autopeer-io/flightrelay/pkg/log"
)

// Phases of a single request/confirm step.
const (
	PhaseIdle      = "idle"
	PhaseRequested = "requested"
	PhaseWaiting   = "waiting"
	PhaseConfirmed = "confirmed"
	PhaseTimedOut  = "timed_out"
	PhaseRejected  = "rejected"
)

const (
	// EventRequest the request is about to be sent to the vehicle.
	EventRequest = "event_request"
	// EventAwait the vehicle accepted the request; polling starts.
	EventAwait = "event_await"
	// EventConfirm the awaited state was observed.
	EventConfirm = "event_confirm"
	// EventTimeout every poll came back unmet.
	EventTimeout = "event_timeout"
	// EventReject the request or a poll failed.
	EventReject = "event_reject"
)

// PhaseObserver receives the terminal phase of every step.
type PhaseObserver interface {
	ObservePhase(step, phase string, elapsed time.Duration)
}

// Lifecycle tracks one step such as "mode GUIDED" or "arm" from request to
// its terminal phase.
type Lifecycle struct {
	*fsm.FSM

	step     string
	clock    clock.PassiveClock
	started  time.Time
	observer PhaseObserver
}

// NewLifecycle builds a lifecycle in the idle phase. Elapsed times are
// measured on clk.
func NewLifecycle(step string, clk clock.PassiveClock, observer PhaseObserver) *Lifecycle {
	if clk == nil {
		clk = clock.RealClock{}
	}
	l := &Lifecycle{step: step, clock: clk, observer: observer}

	events := fsm.Events{
		{Name: EventRequest, Src: []string{PhaseIdle}, Dst: PhaseRequested},
		{Name: EventAwait, Src: []string{PhaseRequested}, Dst: PhaseWaiting},
		{Name: EventConfirm, Src: []string{PhaseWaiting}, Dst: PhaseConfirmed},
		{Name: EventTimeout, Src: []string{PhaseWaiting}, Dst: PhaseTimedOut},
		{Name: EventReject, Src: []string{PhaseRequested, PhaseWaiting}, Dst: PhaseRejected},
	}

	callbacks := fsm.Callbacks{
		"enter_" + PhaseRequested: fsmutil.WrapEvent(l.actionEnterRequested),
		"enter_" + PhaseConfirmed: fsmutil.WrapEvent(l.actionEnterTerminal),
		"enter_" + PhaseTimedOut:  fsmutil.WrapEvent(l.actionEnterTerminal),
		"enter_" + PhaseRejected:  fsmutil.WrapEvent(l.actionEnterTerminal),
	}

	l.FSM = fsm.NewFSM(PhaseIdle, events, callbacks)
	return l
}

func (l *Lifecycle) actionEnterRequested(ctx context.Context, e *fsm.Event) error {
	l.started = l.clock.Now()
	log.Debug("[Operation] Step requested", "step", l.step)
	return nil
}

func (l *Lifecycle) actionEnterTerminal(ctx context.Context, e *fsm.Event) error {
	elapsed := l.clock.Since(l.started)

	if e.Dst == PhaseConfirmed {
		log.Info("[Operation] Step confirmed", "step", l.step, "elapsed", elapsed)
	} else {
		var cause error
		if len(e.Args) > 0 {
			cause, _ = e.Args[0].(error)
		}
		log.Warn("[Operation] Step failed", "step", l.step, "phase", e.Dst, "elapsed", elapsed, "error", cause)
	}

	if l.observer != nil {
		l.observer.ObservePhase(l.step, e.Dst, elapsed)
	}
	return nil
}

// Run drives the lifecycle: request, then await. The outcome of await picks
// the terminal phase. The returned error is the step's own error.
func (l *Lifecycle) Run(ctx context.Context, request, await func(context.Context) error) error {
	l.fire(ctx, EventRequest)

	if err := request(ctx); err != nil {
		l.fire(ctx, EventReject, err)
		return err
	}
	l.fire(ctx, EventAwait)

	err := await(ctx)
	switch {
	case err == nil:
		l.fire(ctx, EventConfirm)
	case errors.Is(err, wait.ErrTimeout):
		l.fire(ctx, EventTimeout, err)
	default:
		l.fire(ctx, EventReject, err)
	}
	return err
}

// fire applies an event. Transition errors only mean a broken event table.
func (l *Lifecycle) fire(ctx context.Context, event string, args ...any) {
	if err := fsmutil.Fire(ctx, l.FSM, event, args...); err != nil {
		log.Error(err, "[Operation] Invalid lifecycle transition", "step", l.step, "event", event, "phase", l.Current())
	}
}
