// Package dispatcher maps request lines to operations and runs them one at
// a time against the vehicle.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/autopeer-io/flightrelay/internal/pkg/metrics"
	"github.com/autopeer-io/flightrelay/internal/relay/core/model"
	"github.com/autopeer-io/flightrelay/internal/relay/mission"
	"github.com/autopeer-io/flightrelay/internal/relay/notifier"
	"github.com/autopeer-io/flightrelay/internal/relay/operation"
	"github.com/autopeer-io/flightrelay/internal/relay/vehicle"
	"github.com/autopeer-io/flightrelay/pkg/log"
)

// ErrUnknownCommand is returned for tokens missing from the registry.
var ErrUnknownCommand = errors.New("unknown command")

const (
	unknownCommandMessage  = "Unknown command"
	missionUploadedMessage = "Mission uploaded"
)

// Dispatcher owns the execution lock: at most one operation touches the
// vehicle at any time, across all connections.
type Dispatcher struct {
	mu sync.Mutex

	executor *operation.Executor
	parser   *mission.Parser
	registry *Registry
	notifier notifier.Notifier
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithRegistry replaces the default command set.
func WithRegistry(r *Registry) Option {
	return func(d *Dispatcher) { d.registry = r }
}

// WithNotifier publishes every result.
func WithNotifier(n notifier.Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithParser sets the mission parser.
func WithParser(p *mission.Parser) Option {
	return func(d *Dispatcher) { d.parser = p }
}

// New creates a Dispatcher running operations on executor.
func New(executor *operation.Executor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		executor: executor,
		parser:   mission.NewParser(mission.DefaultMaxItems),
		registry: NewRegistry(DefaultEntries()...),
		notifier: notifier.Nop{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry exposes the command set.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch runs cmd and converts every failure, panics included, into a
// result. It never returns a Go error.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd model.Command) model.CommandResult {
	start := time.Now()
	label := cmd.Name

	op, successMsg, err := d.resolve(cmd)
	if errors.Is(err, ErrUnknownCommand) {
		label = "UNKNOWN"
	}

	var res model.CommandResult
	if err == nil {
		err = d.execute(ctx, op)
	}
	if err != nil {
		res = failure(err)
	} else {
		res = model.Success(successMsg)
	}

	d.record(ctx, label, res, time.Since(start))
	return res
}

func (d *Dispatcher) resolve(cmd model.Command) (operation.Operation, string, error) {
	switch cmd.Kind {
	case model.CommandUploadMission:
		items, err := d.parser.Parse(cmd.Payload)
		if err != nil {
			return nil, "", err
		}
		return d.executor.UploadMissionOp(items), missionUploadedMessage, nil
	default:
		entry, ok := d.registry.Lookup(cmd.Name)
		if !ok {
			return nil, "", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
		}
		return entry.Factory(d.executor), "", nil
	}
}

// execute holds the execution lock for the whole operation.
func (d *Dispatcher) execute(ctx context.Context, op operation.Operation) (err error) {
	queued := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	metrics.LockWait.Observe(time.Since(queued).Seconds())

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error in %s: %v", op.Name(), r)
			log.Error(err, "[Dispatcher] Operation panicked", "operation", op.Name())
		}
	}()

	log.Debug("[Dispatcher] Executing", "operation", op.Name())
	return op.Execute(ctx)
}

func failure(err error) model.CommandResult {
	msg := err.Error()
	if errors.Is(err, ErrUnknownCommand) {
		msg = unknownCommandMessage
	}
	res := model.Failure(msg)
	res.Fatal = errors.Is(err, vehicle.ErrLinkLost)
	return res
}

func (d *Dispatcher) record(ctx context.Context, label string, res model.CommandResult, elapsed time.Duration) {
	outcome := "ok"
	switch {
	case res.Fatal:
		outcome = "fatal"
	case !res.OK:
		outcome = "error"
	}

	metrics.CommandsTotal.WithLabelValues(label, outcome).Inc()
	metrics.CommandDuration.WithLabelValues(label).Observe(elapsed.Seconds())

	if res.OK {
		log.Info("[Dispatcher] Command succeeded", "command", label, "elapsed", elapsed)
	} else {
		log.Warn("[Dispatcher] Command failed", "command", label, "error", res.Message, "fatal", res.Fatal, "elapsed", elapsed)
	}

	d.notifier.Notify(ctx, notifier.Result{
		Command:    label,
		OK:         res.OK,
		Message:    res.Message,
		Fatal:      res.Fatal,
		DurationMs: elapsed.Milliseconds(),
		Timestamp:  time.Now(),
	})
}
