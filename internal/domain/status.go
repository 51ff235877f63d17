package domain

import "strings"

// Status is the execution status of a single run-tree node.
type Status string

const (
	StatusReady     Status = "READY"
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusKilled    Status = "KILLED"
	StatusSkipped   Status = "SKIPPED"
	StatusDisabled  Status = "DISABLED"
	StatusPaused    Status = "PAUSED"
)

// InitialStatus is the status every node carries right after materialization.
const InitialStatus = StatusReady

// ParseStatus maps free-form status values to canonical statuses.
func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(value))) {
	case StatusReady:
		return StatusReady, true
	case StatusQueued:
		return StatusQueued, true
	case StatusRunning:
		return StatusRunning, true
	case StatusSucceeded:
		return StatusSucceeded, true
	case StatusFailed:
		return StatusFailed, true
	case StatusKilled:
		return StatusKilled, true
	case StatusSkipped:
		return StatusSkipped, true
	case StatusDisabled:
		return StatusDisabled, true
	case StatusPaused:
		return StatusPaused, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further transition is expected from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusKilled, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsSettled reports whether s no longer holds up its parent flow.
// Disabled nodes are settled: they are skipped when their turn comes.
func (s Status) IsSettled() bool {
	return s.IsTerminal() || s == StatusDisabled
}

// IsActive reports whether the node has been handed to the engine and has not finished.
func (s Status) IsActive() bool {
	return s == StatusQueued || s == StatusRunning
}

// IsStarted reports whether the node has left its pre-scheduling states.
func (s Status) IsStarted() bool {
	switch s {
	case StatusReady, StatusDisabled, StatusPaused, "":
		return false
	default:
		return true
	}
}

// IsFailure reports whether s counts as a failure for failure-action policies.
func (s Status) IsFailure() bool {
	return s == StatusFailed
}

// CanTransitionStatus enforces the node status machine.
//
//	READY -> QUEUED -> RUNNING -> SUCCEEDED | FAILED | KILLED | SKIPPED
//	READY | QUEUED -> DISABLED | PAUSED | SKIPPED
//	PAUSED -> READY | QUEUED | RUNNING
//	DISABLED -> READY | SKIPPED
//	any non-terminal -> KILLED
func CanTransitionStatus(current, next Status) bool {
	if current == "" || next == "" {
		return false
	}
	if current == next {
		return true
	}
	if current.IsTerminal() {
		return false
	}
	if next == StatusKilled {
		return true
	}
	switch current {
	case StatusReady:
		switch next {
		case StatusQueued, StatusDisabled, StatusPaused, StatusSkipped:
			return true
		}
	case StatusQueued:
		switch next {
		case StatusRunning, StatusDisabled, StatusPaused, StatusSkipped:
			return true
		}
	case StatusRunning:
		switch next {
		case StatusSucceeded, StatusFailed, StatusSkipped:
			return true
		}
	case StatusPaused:
		switch next {
		case StatusReady, StatusQueued, StatusRunning:
			return true
		}
	case StatusDisabled:
		switch next {
		case StatusReady, StatusSkipped:
			return true
		}
	}
	return false
}
