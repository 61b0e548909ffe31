package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every relay metric and is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// VehicleLinkUp is 1 while the vehicle link is healthy.
	VehicleLinkUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flightrelay_vehicle_link_up",
			Help: "The vehicle link status (1=Up, 0=Down).",
		},
	)

	// ConnectionsActive counts open TCP client connections.
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flightrelay_connections_active",
			Help: "Number of open client connections.",
		},
	)

	// CommandsTotal counts dispatched commands.
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightrelay_commands_total",
			Help: "Total number of dispatched commands.",
		},
		[]string{"command", "outcome"}, // outcome: ok/error/fatal
	)

	// CommandDuration records the time from receiving a command to its result.
	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flightrelay_command_duration_seconds",
			Help:    "Time from dispatching a command to its result, including payload parsing and lock wait.",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"command"},
	)

	// LockWait records how long commands queued for the execution lock.
	LockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flightrelay_lock_wait_seconds",
			Help:    "Time a command waited for the execution lock.",
			Buckets: []float64{.001, .01, .1, .5, 1, 5, 10, 30, 60, 120},
		},
	)

	// StepPhaseTotal counts terminal phases of request/confirm steps.
	StepPhaseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightrelay_step_phase_total",
			Help: "Terminal phase of each vehicle request/confirm step.",
		},
		[]string{"step", "phase"}, // phase: confirmed/timed_out/rejected
	)

	// NotifyFailuresTotal counts results that could not be published.
	NotifyFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flightrelay_notify_failures_total",
			Help: "Total number of command results that failed to publish.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		VehicleLinkUp,
		ConnectionsActive,
		CommandsTotal,
		CommandDuration,
		LockWait,
		StepPhaseTotal,
		NotifyFailuresTotal,
	)
}

// PhaseObserver feeds step outcomes into StepPhaseTotal.
type PhaseObserver struct{}

func (PhaseObserver) ObservePhase(step, phase string, _ time.Duration) {
	StepPhaseTotal.WithLabelValues(step, phase).Inc()
}

// SetLinkUp records the vehicle link status.
func SetLinkUp(up bool) {
	if up {
		VehicleLinkUp.Set(1)
		return
	}
	VehicleLinkUp.Set(0)
}
