package state

import (
	"github.com/animus-labs/runstate/internal/domain"
	"github.com/animus-labs/runstate/internal/execution/runtree"
)

// DeriveFlowStatus computes the aggregate status of a flow node from its
// children under the failure action. It does not modify the tree. Leaves have
// no aggregate; their current status is returned unchanged.
func DeriveFlowStatus(flow *runtree.Node, action domain.FailureAction) domain.Status {
	if !flow.IsFlow() {
		return flow.Status()
	}
	children := flow.Children()
	if len(children) == 0 {
		return domain.StatusSucceeded
	}

	var failed, killed, active, started, unsettled bool
	for _, child := range children {
		status := child.Status()
		switch {
		case status.IsFailure():
			failed = true
		case status == domain.StatusKilled:
			killed = true
		}
		if status.IsActive() {
			active = true
		}
		if status.IsStarted() {
			started = true
		}
		if !status.IsSettled() {
			unsettled = true
		}
	}

	if failed {
		switch action.Effective() {
		case domain.FailureActionCancelAll:
			return domain.StatusFailed
		case domain.FailureActionFinishAllPossible:
			if unsettled {
				return domain.StatusRunning
			}
			return domain.StatusFailed
		default:
			if active {
				return domain.StatusRunning
			}
			return domain.StatusFailed
		}
	}

	if !unsettled {
		if killed {
			return domain.StatusKilled
		}
		return domain.StatusSucceeded
	}
	if started {
		return domain.StatusRunning
	}
	return flow.Status()
}

// HasFailure reports whether any direct child of flow has failed.
func HasFailure(flow *runtree.Node) bool {
	for _, child := range flow.Children() {
		if child.Status().IsFailure() {
			return true
		}
	}
	return false
}

// Blocked returns the children of flow that can no longer run because a
// predecessor failed or was killed, directly or through another blocked child.
func Blocked(flow *runtree.Node) map[string]struct{} {
	blocked := map[string]struct{}{}
	children := flow.Children()
	for changed := true; changed; {
		changed = false
		for _, child := range children {
			if _, ok := blocked[child.ID()]; ok {
				continue
			}
			for _, pred := range child.InNodes() {
				predNode, ok := flow.Child(pred)
				if !ok {
					continue
				}
				_, predBlocked := blocked[pred]
				status := predNode.Status()
				if status.IsFailure() || status == domain.StatusKilled || predBlocked {
					blocked[child.ID()] = struct{}{}
					changed = true
					break
				}
			}
		}
	}
	return blocked
}
