package state

import (
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/runstate/internal/domain"
	"github.com/animus-labs/runstate/internal/execution/runtree"
)

// Schedulable returns the children of flow the engine may start next: READY
// children whose predecessors all finished without failing. After a failure
// only FINISH_ALL_POSSIBLE keeps scheduling, and only children that are not
// blocked by the failure.
func Schedulable(flow *runtree.Node, action domain.FailureAction) []*runtree.Node {
	if !flow.IsFlow() || frozen(flow.Status()) {
		return nil
	}
	if HasFailure(flow) && action.Effective() != domain.FailureActionFinishAllPossible {
		return nil
	}
	blocked := Blocked(flow)
	out := []*runtree.Node{}
	for _, child := range flow.Children() {
		if child.Status() != domain.StatusReady {
			continue
		}
		if _, ok := blocked[child.ID()]; ok {
			continue
		}
		if predecessorsDone(flow, child) {
			out = append(out, child)
		}
	}
	return out
}

func predecessorsDone(flow, child *runtree.Node) bool {
	for _, pred := range child.InNodes() {
		predNode, ok := flow.Child(pred)
		if !ok {
			return false
		}
		switch predNode.Status() {
		case domain.StatusSucceeded, domain.StatusSkipped, domain.StatusDisabled:
		default:
			return false
		}
	}
	return true
}

// ApplyDisabledJobs moves every READY node named in the run's disabled set to
// DISABLED at time at. Names may be nested ids such as "jobb:innerJobA".
// Unknown names are returned so the caller can report them.
func ApplyDisabledJobs(run *runtree.Run, at time.Time) ([]string, error) {
	missing := []string{}
	for _, id := range run.Options.DisabledJobs() {
		node, ok := run.Lookup(id)
		if !ok || strings.TrimSpace(id) == "" {
			missing = append(missing, id)
			continue
		}
		if node.Status() != domain.StatusReady {
			continue
		}
		if err := node.Transition(domain.StatusDisabled, at); err != nil {
			return missing, fmt.Errorf("disable %q: %w", id, err)
		}
	}
	return missing, nil
}
