package state

import (
	"fmt"
	"time"

	"github.com/animus-labs/runstate/internal/domain"
	"github.com/animus-labs/runstate/internal/execution/runtree"
)

// Reconcile applies the run's failure action to every flow node, children
// before parents, and writes each flow's derived status at time at:
//
//   - CANCEL_ALL kills every non-terminal node under a flow with a failed child;
//   - not-started children whose predecessors failed or were killed are skipped;
//   - flows entering RUNNING get a start time, flows reaching a terminal
//     status get an end time.
//
// Flows that are terminal, paused, or disabled keep their status. Reconcile
// returns the nested ids of every node it changed.
func Reconcile(run *runtree.Run, at time.Time) ([]string, error) {
	r := &reconciler{action: run.Options.FailureAction.Effective(), at: at}
	if err := r.flow(run.Root()); err != nil {
		return r.changed, err
	}
	return r.changed, nil
}

type reconciler struct {
	action  domain.FailureAction
	at      time.Time
	changed []string
}

func (r *reconciler) flow(flow *runtree.Node) error {
	if frozen(flow.Status()) {
		return nil
	}
	for _, child := range flow.Children() {
		if child.IsFlow() {
			if err := r.flow(child); err != nil {
				return err
			}
		}
	}

	if r.action == domain.FailureActionCancelAll && HasFailure(flow) {
		for _, child := range flow.Children() {
			if err := r.kill(child); err != nil {
				return err
			}
		}
	}

	blocked := Blocked(flow)
	for _, child := range flow.Children() {
		if _, ok := blocked[child.ID()]; !ok {
			continue
		}
		if child.Status().IsStarted() || child.Status().IsTerminal() {
			continue
		}
		if err := r.set(child, domain.StatusSkipped); err != nil {
			return err
		}
	}

	derived := DeriveFlowStatus(flow, r.action)
	if derived == flow.Status() {
		return nil
	}
	return r.set(flow, derived)
}

func (r *reconciler) kill(n *runtree.Node) error {
	if n.Status().IsTerminal() {
		return nil
	}
	for _, child := range n.Children() {
		if err := r.kill(child); err != nil {
			return err
		}
	}
	return r.set(n, domain.StatusKilled)
}

func (r *reconciler) set(n *runtree.Node, status domain.Status) error {
	prev := n.Status()
	if err := n.SetStatus(status, r.at); err != nil {
		return fmt.Errorf("reconcile %q: %w", n.NestedID(), err)
	}
	if status == domain.StatusRunning && n.StartTime().IsZero() {
		if err := n.SetStartTime(r.at, r.at); err != nil {
			return err
		}
	}
	if status.IsTerminal() && !prev.IsTerminal() && prev.IsStarted() {
		if err := n.SetEndTime(r.at, r.at); err != nil {
			return err
		}
	}
	r.changed = append(r.changed, n.NestedID())
	return nil
}

func frozen(status domain.Status) bool {
	return status.IsTerminal() || status == domain.StatusPaused || status == domain.StatusDisabled
}
