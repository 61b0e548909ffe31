package vehicle

import (
	"context"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/flightrelay/pkg/log"
)

// Watcher polls Healthy and reports every change of the link status.
type Watcher struct {
	v        Vehicle
	clock    clock.WithTicker
	interval time.Duration
	onChange []func(ctx context.Context, up bool)
}

// NewWatcher creates a Watcher polling v every interval.
func NewWatcher(v Vehicle, clk clock.WithTicker, interval time.Duration, onChange ...func(ctx context.Context, up bool)) *Watcher {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Watcher{v: v, clock: clk, interval: interval, onChange: onChange}
}

// Start reports the initial status, then watches until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	up := w.v.Healthy()
	w.report(ctx, up)

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if now := w.v.Healthy(); now != up {
				up = now
				w.report(ctx, up)
			}
		}
	}
}

func (w *Watcher) report(ctx context.Context, up bool) {
	if up {
		log.Info("[Vehicle] Link up")
	} else {
		log.Warn("[Vehicle] Link down")
	}
	for _, fn := range w.onChange {
		fn(ctx, up)
	}
}
