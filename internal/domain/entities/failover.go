package entities

import (
	"time"
)

// FailoverState is a state of the failover state machine
type FailoverState string

const (
	StateStart                      FailoverState = "start"
	StateVerifyFailoverPath         FailoverState = "verify_failover_path"
	StateSwapToFailover             FailoverState = "swap_to_failover"
	StateVerifyFailoverConnectivity FailoverState = "verify_failover_connectivity"
	StateRunRiskyOperation          FailoverState = "run_risky_operation"
	StateReResolveTarget            FailoverState = "re_resolve_target"
	StateSwapToTarget               FailoverState = "swap_to_target"
	StateVerifyConnectivity         FailoverState = "verify_connectivity"
	StateRestoreOriginal            FailoverState = "restore_original"
	StateRevertToFailover           FailoverState = "revert_to_failover"

	// terminal states
	StateDone            FailoverState = "done"
	StateAbortedNoSwap   FailoverState = "aborted_no_swap"
	StateAbortedRestored FailoverState = "aborted_restored"
	StateAbortedReverted FailoverState = "aborted_reverted"
)

// IsTerminal reports whether no further transition can follow s
func (s FailoverState) IsTerminal() bool {
	switch s {
	case StateDone, StateAbortedNoSwap, StateAbortedRestored, StateAbortedReverted:
		return true
	}
	return false
}

// FailoverPlan is built per run and records what is needed to revert.
type FailoverPlan struct {
	Bridge            string
	OriginalUplink    string
	FailoverInterface string
	TargetInterface   string
	PinnedAddress     string
	BackupPath        string
	Swapped           bool
	SwitchBack        bool
	Skipped           bool
}

// StateTransition is one entry of the run history
type StateTransition struct {
	State  FailoverState
	At     time.Time
	Detail string
}

// DiagnosticSnapshot is gathered at failure time for the operator
type DiagnosticSnapshot struct {
	CollectedAt time.Time
	USBTopology string
	USBDevice   string
	LinkSummary string
	Interfaces  []string
	Errors      []string
}

// IsEmpty reports whether nothing was collected
func (d DiagnosticSnapshot) IsEmpty() bool {
	return d.USBTopology == "" && d.USBDevice == "" && d.LinkSummary == "" && len(d.Interfaces) == 0
}

// RunContext is threaded through the orchestrator instead of process-wide state
type RunContext struct {
	Operation   string
	Identity    DeviceIdentity
	Plan        FailoverPlan
	State       FailoverState
	History     []StateTransition
	Diagnostics *DiagnosticSnapshot
	Warnings    []string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// NewRunContext creates a run context in the start state
func NewRunContext(operation string, identity DeviceIdentity, bridge string, now time.Time) *RunContext {
	rc := &RunContext{
		Operation: operation,
		Identity:  identity,
		Plan:      FailoverPlan{Bridge: bridge},
		StartedAt: now,
	}
	rc.Transition(StateStart, now, "")
	return rc
}

// Transition records a move to state
func (rc *RunContext) Transition(state FailoverState, at time.Time, detail string) {
	rc.State = state
	rc.History = append(rc.History, StateTransition{State: state, At: at, Detail: detail})
	if state.IsTerminal() {
		rc.FinishedAt = at
	}
}

// Warn appends an operator facing warning
func (rc *RunContext) Warn(msg string) {
	rc.Warnings = append(rc.Warnings, msg)
}

// Succeeded reports whether the run reached Done
func (rc *RunContext) Succeeded() bool {
	return rc.State == StateDone
}

// Visited reports whether the run passed through state
func (rc *RunContext) Visited(state FailoverState) bool {
	for _, t := range rc.History {
		if t.State == state {
			return true
		}
	}
	return false
}

// Count returns how many times the run entered state
func (rc *RunContext) Count(state FailoverState) int {
	n := 0
	for _, t := range rc.History {
		if t.State == state {
			n++
		}
	}
	return n
}

// Duration returns the elapsed run time, or zero while still running
func (rc *RunContext) Duration() time.Duration {
	if rc.FinishedAt.IsZero() {
		return 0
	}
	return rc.FinishedAt.Sub(rc.StartedAt)
}
