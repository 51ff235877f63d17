package runtree

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"weak"

	"github.com/animus-labs/runstate/internal/domain"
)

// Kind tags a node as a leaf job or a flow that owns children.
type Kind string

const (
	KindLeaf Kind = "leaf"
	KindFlow Kind = "flow"
)

// NestedIDSeparator joins ancestor ids in a nested id such as "jobb:innerJobA".
const NestedIDSeparator = ":"

var (
	ErrStaleUpdate       = errors.New("update time is older than the node's last update")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSealed            = errors.New("run tree structure is fixed")
	ErrNotFlow           = errors.New("node is not a flow")
	ErrDuplicateChild    = errors.New("duplicate child id")
	ErrAlreadyAttached   = errors.New("node already has a parent")
)

// State is the mutable scalar part of a node.
type State struct {
	Status     domain.Status
	StartTime  time.Time
	EndTime    time.Time
	UpdateTime time.Time
	Attempt    int
}

// Spec holds the structural fields of a node, fixed once the tree is sealed.
type Spec struct {
	JobSource   string
	PropsSource string
	InNodes     []string
	OutNodes    []string
}

// Node is one vertex of a run tree. Leaf nodes stand for single jobs; flow
// nodes own an insertion-ordered set of children, each of which may itself be
// a flow.
type Node struct {
	kind Kind
	id   string

	state State

	jobSource   string
	propsSource string
	inNodes     []string
	outNodes    []string

	// parent does not keep the owning flow alive; the flow owns the child.
	parent weak.Pointer[Node]
	sealed bool

	flow *flowBody
}

type flowBody struct {
	subflowID string
	order     []string
	children  map[string]*Node
}

// NewLeaf returns an unattached leaf node in the initial status.
func NewLeaf(id string, spec Spec) *Node {
	return &Node{
		kind:        KindLeaf,
		id:          id,
		state:       State{Status: domain.InitialStatus},
		jobSource:   spec.JobSource,
		propsSource: spec.PropsSource,
		inNodes:     edgeSet(spec.InNodes),
		outNodes:    edgeSet(spec.OutNodes),
	}
}

// NewFlow returns an unattached, childless flow node expanded from subflowID.
func NewFlow(id, subflowID string, spec Spec) *Node {
	n := NewLeaf(id, spec)
	n.kind = KindFlow
	n.flow = &flowBody{
		subflowID: subflowID,
		children:  map[string]*Node{},
	}
	return n
}

func (n *Node) ID() string { return n.id }
func (n *Node) Kind() Kind { return n.kind }
func (n *Node) IsFlow() bool { return n.kind == KindFlow }

func (n *Node) Status() domain.Status { return n.state.Status }
func (n *Node) StartTime() time.Time { return n.state.StartTime }
func (n *Node) EndTime() time.Time { return n.state.EndTime }
func (n *Node) UpdateTime() time.Time { return n.state.UpdateTime }
func (n *Node) Attempt() int { return n.state.Attempt }
func (n *Node) State() State { return n.state }
func (n *Node) JobSource() string { return n.jobSource }
func (n *Node) PropsSource() string { return n.propsSource }
func (n *Node) InNodes() []string { return slices.Clone(n.inNodes) }
func (n *Node) OutNodes() []string { return slices.Clone(n.outNodes) }
func (n *Node) HasInNode(id string) bool {
	_, ok := slices.BinarySearch(n.inNodes, id)
	return ok
}

// Parent returns the owning flow, or nil for the root.
func (n *Node) Parent() *Node {
	return n.parent.Value()
}

// SubflowID returns the workflow name a flow node was expanded from; empty for leaves.
func (n *Node) SubflowID() string {
	if n.flow == nil {
		return ""
	}
	return n.flow.subflowID
}

// Children returns the children of a flow node in insertion order.
func (n *Node) Children() []*Node {
	if n.flow == nil {
		return nil
	}
	out := make([]*Node, 0, len(n.flow.order))
	for _, id := range n.flow.order {
		out = append(out, n.flow.children[id])
	}
	return out
}

// Len returns the number of children.
func (n *Node) Len() int {
	if n.flow == nil {
		return 0
	}
	return len(n.flow.order)
}

// Child looks a direct child up by id. Leaves have no children.
func (n *Node) Child(id string) (*Node, bool) {
	if n.flow == nil {
		return nil, false
	}
	child, ok := n.flow.children[id]
	return child, ok
}

// NestedID joins the ids from just below the root down to n.
func (n *Node) NestedID() string {
	parts := []string{}
	for cur := n; cur != nil && cur.Parent() != nil; cur = cur.Parent() {
		parts = append(parts, cur.id)
	}
	slices.Reverse(parts)
	return strings.Join(parts, NestedIDSeparator)
}

// Resolve follows a nested id relative to n.
func (n *Node) Resolve(nestedID string) (*Node, bool) {
	cur := n
	for _, part := range strings.Split(nestedID, NestedIDSeparator) {
		next, ok := cur.Child(part)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// AddChild attaches child under flow n.
func (n *Node) AddChild(child *Node) error {
	if n.flow == nil {
		return fmt.Errorf("add %q to %q: %w", child.id, n.id, ErrNotFlow)
	}
	if n.sealed {
		return fmt.Errorf("add %q to %q: %w", child.id, n.id, ErrSealed)
	}
	if child.Parent() != nil {
		return fmt.Errorf("add %q to %q: %w", child.id, n.id, ErrAlreadyAttached)
	}
	if _, exists := n.flow.children[child.id]; exists {
		return fmt.Errorf("add %q to %q: %w", child.id, n.id, ErrDuplicateChild)
	}
	child.parent = weak.Make(n)
	n.flow.children[child.id] = child
	n.flow.order = append(n.flow.order, child.id)
	return nil
}

// RestoreState overwrites every scalar field without the update-time check.
// It is only allowed while the tree is being assembled.
func (n *Node) RestoreState(s State) error {
	if n.sealed {
		return fmt.Errorf("restore %q: %w", n.id, ErrSealed)
	}
	n.state = normalizeState(s)
	return nil
}

// SetStatus records a status change made at time at.
func (n *Node) SetStatus(status domain.Status, at time.Time) error {
	return n.mutate(at, func(s *State) { s.Status = status })
}

// Transition is SetStatus restricted to the transitions domain.CanTransitionStatus allows.
func (n *Node) Transition(status domain.Status, at time.Time) error {
	if !domain.CanTransitionStatus(n.state.Status, status) {
		return fmt.Errorf("%s: %s -> %s: %w", n.id, n.state.Status, status, ErrInvalidTransition)
	}
	return n.SetStatus(status, at)
}

func (n *Node) SetStartTime(t, at time.Time) error {
	return n.mutate(at, func(s *State) { s.StartTime = normalizeTime(t) })
}

func (n *Node) SetEndTime(t, at time.Time) error {
	return n.mutate(at, func(s *State) { s.EndTime = normalizeTime(t) })
}

func (n *Node) SetAttempt(attempt int, at time.Time) error {
	return n.mutate(at, func(s *State) { s.Attempt = attempt })
}

// ApplyState overwrites every scalar field with a state observed on another
// copy of the same run. The incoming update time must not be older than ours.
func (n *Node) ApplyState(s State) error {
	s = normalizeState(s)
	if s.UpdateTime.Before(n.state.UpdateTime) {
		return fmt.Errorf("apply %q: %w", n.id, ErrStaleUpdate)
	}
	n.state = s
	return nil
}

func (n *Node) mutate(at time.Time, apply func(*State)) error {
	at = normalizeTime(at)
	if at.Before(n.state.UpdateTime) {
		return fmt.Errorf("%s: %s before %s: %w", n.id, at.Format(time.RFC3339Nano), n.state.UpdateTime.Format(time.RFC3339Nano), ErrStaleUpdate)
	}
	apply(&n.state)
	n.state.UpdateTime = at
	return nil
}

// Walk visits n and its descendants depth-first, parents before children.
// Returning a non-nil error stops the walk.
func Walk(n *Node, fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, child := range n.Children() {
		if err := Walk(child, fn); err != nil {
			return err
		}
	}
	return nil
}

// LatestUpdate returns the newest update time in the subtree rooted at n.
func LatestUpdate(n *Node) time.Time {
	latest := n.state.UpdateTime
	for _, child := range n.Children() {
		if t := LatestUpdate(child); t.After(latest) {
			latest = t
		}
	}
	return latest
}

func edgeSet(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func normalizeState(s State) State {
	s.StartTime = normalizeTime(s.StartTime)
	s.EndTime = normalizeTime(s.EndTime)
	s.UpdateTime = normalizeTime(s.UpdateTime)
	return s
}
