package domain

import (
	"fmt"
	"strings"
)

// FailureAction decides what happens to the rest of a flow after a child fails.
type FailureAction string

const (
	FailureActionFinishCurrentlyRunning FailureAction = "FINISH_CURRENTLY_RUNNING"
	FailureActionCancelAll              FailureAction = "CANCEL_ALL"
	FailureActionFinishAllPossible      FailureAction = "FINISH_ALL_POSSIBLE"
)

// DefaultFailureAction applies when options leave the policy unset.
const DefaultFailureAction = FailureActionFinishCurrentlyRunning

// ParseFailureAction maps a policy token to a FailureAction. Empty input yields the default.
func ParseFailureAction(value string) (FailureAction, error) {
	switch FailureAction(strings.ToUpper(strings.TrimSpace(value))) {
	case "":
		return DefaultFailureAction, nil
	case FailureActionFinishCurrentlyRunning:
		return FailureActionFinishCurrentlyRunning, nil
	case FailureActionCancelAll:
		return FailureActionCancelAll, nil
	case FailureActionFinishAllPossible:
		return FailureActionFinishAllPossible, nil
	default:
		return "", fmt.Errorf("unsupported failure action %q", value)
	}
}

// Effective returns the action, substituting the default for the zero value.
func (a FailureAction) Effective() FailureAction {
	if a == "" {
		return DefaultFailureAction
	}
	return a
}

// NotificationList is an address list that remembers whether it was set explicitly.
// A list that was never set inherits the addresses declared by the workflow definition;
// resolving that default happens outside this package.
type NotificationList struct {
	Addresses  []string
	Overridden bool
}

// Set replaces the addresses and marks the list overridden, even when addrs is empty.
func (l *NotificationList) Set(addrs []string) {
	l.Addresses = cloneStrings(addrs)
	l.Overridden = true
}

// ExecutionOptions is the per-run policy attached to the root of a run tree.
type ExecutionOptions struct {
	ConcurrentOption     string
	FailureAction        FailureAction
	SuccessEmails        NotificationList
	FailureEmails        NotificationList
	PipelineLevel        int
	PipelineRunID        string
	NotifyOnFirstFailure bool
	NotifyOnLastFailure  bool

	disabledJobs []string
	parameters   map[string]string
}

// SetSuccessEmails overrides the success notification list.
func (o *ExecutionOptions) SetSuccessEmails(addrs []string) {
	o.SuccessEmails.Set(addrs)
}

// SetFailureEmails overrides the failure notification list.
func (o *ExecutionOptions) SetFailureEmails(addrs []string) {
	o.FailureEmails.Set(addrs)
}

// DisabledJobs returns the disabled job ids in insertion order.
func (o ExecutionOptions) DisabledJobs() []string {
	return cloneStrings(o.disabledJobs)
}

// SetDisabledJobs replaces the disabled set. Blank and repeated ids are dropped.
func (o *ExecutionOptions) SetDisabledJobs(ids []string) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	o.disabledJobs = out
}

// IsJobDisabled reports whether id is in the disabled set.
func (o ExecutionOptions) IsJobDisabled(id string) bool {
	for _, disabled := range o.disabledJobs {
		if disabled == id {
			return true
		}
	}
	return false
}

// Parameters returns a copy of the run-scoped parameter overrides.
func (o ExecutionOptions) Parameters() map[string]string {
	return cloneParams(o.parameters)
}

// Parameter returns a single override.
func (o ExecutionOptions) Parameter(key string) (string, bool) {
	v, ok := o.parameters[key]
	return v, ok
}

// SetParameters replaces the parameter overrides.
func (o *ExecutionOptions) SetParameters(params map[string]string) {
	o.parameters = cloneParams(params)
}

// SetParameter sets one override.
func (o *ExecutionOptions) SetParameter(key, value string) {
	if o.parameters == nil {
		o.parameters = map[string]string{}
	}
	o.parameters[key] = value
}

// Clone returns a deep copy.
func (o ExecutionOptions) Clone() ExecutionOptions {
	out := o
	out.SuccessEmails.Addresses = cloneStrings(o.SuccessEmails.Addresses)
	out.FailureEmails.Addresses = cloneStrings(o.FailureEmails.Addresses)
	out.disabledJobs = cloneStrings(o.disabledJobs)
	out.parameters = cloneParams(o.parameters)
	return out
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneParams(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
