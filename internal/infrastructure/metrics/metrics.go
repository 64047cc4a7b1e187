package metrics

import (
	"strings"

	"usbnic-failover/internal/domain/entities"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds only this tool's series. The default registry would add go_* and
// process_* series that clash with node_exporter's own.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// state machine
	StateTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usbnic_state_transitions_total",
			Help: "Total number of failover state machine transitions",
		},
		[]string{"operation", "state"},
	)

	BridgeSwaps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usbnic_bridge_swaps_total",
			Help: "Total number of bridge uplink rewrites",
		},
		[]string{"direction"}, // to_failover, to_target, restore, revert
	)

	ResolveAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usbnic_resolve_attempts_total",
			Help: "Total number of device identity resolution attempts",
		},
		[]string{"outcome"}, // found, not_found, error
	)

	GateChecks = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usbnic_gate_checks_total",
			Help: "Total number of connectivity gate evaluations",
		},
		[]string{"result"}, // ready, timeout
	)

	// last run
	LastRunOutcome = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "usbnic_last_run_outcome",
			Help: "Terminal state of the last run (1 for the state reached)",
		},
		[]string{"operation", "state"},
	)

	LastRunDuration = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "usbnic_last_run_duration_seconds",
			Help: "Duration of the last run",
		},
		[]string{"operation"},
	)

	LastRunTimestamp = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "usbnic_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		},
		[]string{"operation"},
	)

	ErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usbnic_errors_total",
			Help: "Total number of errors encountered",
		},
		[]string{"error_type"}, // precondition, external, verification, ...
	)

	AgentInfo = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "usbnic_info",
			Help: "Tool information",
		},
		[]string{"version", "os_type"},
	)
)

// RecordTransition records a state machine transition
func RecordTransition(operation string, state entities.FailoverState) {
	StateTransitions.WithLabelValues(operation, string(state)).Inc()
}

// RecordSwap records a bridge uplink rewrite
func RecordSwap(direction string) {
	BridgeSwaps.WithLabelValues(direction).Inc()
}

// RecordResolveAttempt records one identity resolution
func RecordResolveAttempt(found bool, err error) {
	switch {
	case err != nil:
		ResolveAttempts.WithLabelValues("error").Inc()
	case found:
		ResolveAttempts.WithLabelValues("found").Inc()
	default:
		ResolveAttempts.WithLabelValues("not_found").Inc()
	}
}

// RecordGateCheck records a connectivity gate result
func RecordGateCheck(ready bool) {
	if ready {
		GateChecks.WithLabelValues("ready").Inc()
		return
	}
	GateChecks.WithLabelValues("timeout").Inc()
}

// RecordRun records the terminal state, duration and finish time of a run
func RecordRun(rc *entities.RunContext) {
	LastRunOutcome.Reset()
	LastRunOutcome.WithLabelValues(rc.Operation, string(rc.State)).Set(1)
	LastRunDuration.WithLabelValues(rc.Operation).Set(rc.Duration().Seconds())
	if !rc.FinishedAt.IsZero() {
		LastRunTimestamp.WithLabelValues(rc.Operation).Set(float64(rc.FinishedAt.Unix()))
	}
}

// RecordError records an error by its domain error type
func RecordError(errorType string) {
	if errorType == "" {
		errorType = "unknown"
	}
	ErrorsTotal.WithLabelValues(strings.ToLower(errorType)).Inc()
}

// SetAgentInfo sets the tool information
func SetAgentInfo(version, osType string) {
	AgentInfo.WithLabelValues(version, osType).Set(1)
}

// WriteTextfile writes all series for the node_exporter textfile collector.
// The file is written atomically.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
