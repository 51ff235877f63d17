package delta

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/animus-labs/runstate/internal/domain"
	"github.com/animus-labs/runstate/internal/execution/runtree"
)

// NodeDelta is the partial record of one node. ID is always present. The
// scalar fields are present, as a group, only when the node itself changed;
// Status is never empty in that case, so it doubles as the presence marker.
// Nodes lists the children that changed or have changed descendants and is
// omitted when there are none.
type NodeDelta struct {
	ID         string      `json:"id"`
	Status     string      `json:"status,omitempty"`
	StartTime  string      `json:"startTime,omitempty"`
	EndTime    string      `json:"endTime,omitempty"`
	UpdateTime string      `json:"updateTime,omitempty"`
	Attempt    int         `json:"attempt,omitempty"`
	Nodes      []NodeDelta `json:"nodes,omitempty"`
}

// HasState reports whether the entry carries the node's scalar fields.
func (d NodeDelta) HasState() bool {
	return d.Status != ""
}

// Len returns the number of entries below d, at any depth.
func (d NodeDelta) Len() int {
	total := 0
	for _, child := range d.Nodes {
		total += 1 + child.Len()
	}
	return total
}

// Produce returns the changes in the subtree rooted at n whose update time is
// after since. The boolean is false when nothing in the subtree changed.
func Produce(n *runtree.Node, since time.Time) (NodeDelta, bool) {
	d := NodeDelta{ID: n.ID()}
	changed := false
	if n.UpdateTime().After(since) {
		setState(&d, n.State())
		changed = true
	}
	switch n.Kind() {
	case runtree.KindFlow:
		for _, child := range n.Children() {
			if childDelta, ok := Produce(child, since); ok {
				d.Nodes = append(d.Nodes, childDelta)
			}
		}
		if len(d.Nodes) > 0 {
			changed = true
		}
	case runtree.KindLeaf:
	}
	return d, changed
}

// ProduceRun always returns the root entry, so that "no changes" is a root
// entry without Nodes rather than an absent record.
func ProduceRun(run *runtree.Run, since time.Time) NodeDelta {
	d, _ := Produce(run.Root(), since)
	return d
}

// Apply merges d into local, whose id must equal d.ID. The delta is checked
// against the whole local subtree before anything is written, so a
// *ProtocolError leaves local untouched.
func Apply(local *runtree.Node, d NodeDelta) error {
	if local.ID() != d.ID {
		return &ProtocolError{Path: local.ID(), Reason: fmt.Sprintf("root id %q does not match delta id %q", local.ID(), d.ID)}
	}
	if err := check(local, d, local.ID()); err != nil {
		return err
	}
	return apply(local, d, local.ID())
}

// ApplyRun merges d into the root of run.
func ApplyRun(run *runtree.Run, d NodeDelta) error {
	return Apply(run.Root(), d)
}

func check(local *runtree.Node, d NodeDelta, path string) error {
	if d.HasState() {
		state, err := toState(d)
		if err != nil {
			return &ProtocolError{Path: path, Reason: err.Error()}
		}
		if state.UpdateTime.Before(local.UpdateTime()) {
			return &ProtocolError{Path: path, Reason: "delta is older than the local node"}
		}
	}
	if len(d.Nodes) > 0 && !local.IsFlow() {
		return &ProtocolError{Path: path, Reason: "delta lists children for a leaf node"}
	}
	seen := make(map[string]struct{}, len(d.Nodes))
	for _, childDelta := range d.Nodes {
		childPath := path + runtree.NestedIDSeparator + childDelta.ID
		if _, dup := seen[childDelta.ID]; dup {
			return &ProtocolError{Path: childPath, Reason: "entry listed more than once"}
		}
		seen[childDelta.ID] = struct{}{}
		child, ok := local.Child(childDelta.ID)
		if !ok {
			return &ProtocolError{Path: childPath, Reason: "no local node with this id"}
		}
		if err := check(child, childDelta, childPath); err != nil {
			return err
		}
	}
	return nil
}

func apply(local *runtree.Node, d NodeDelta, path string) error {
	if d.HasState() {
		state, err := toState(d)
		if err != nil {
			return &ProtocolError{Path: path, Reason: err.Error()}
		}
		if err := local.ApplyState(state); err != nil {
			if errors.Is(err, runtree.ErrStaleUpdate) {
				return &ProtocolError{Path: path, Reason: err.Error()}
			}
			return err
		}
	}
	for _, childDelta := range d.Nodes {
		child, ok := local.Child(childDelta.ID)
		if !ok {
			return &ProtocolError{Path: path + runtree.NestedIDSeparator + childDelta.ID, Reason: "no local node with this id"}
		}
		if err := apply(child, childDelta, path+runtree.NestedIDSeparator+childDelta.ID); err != nil {
			return err
		}
	}
	return nil
}

func setState(d *NodeDelta, s runtree.State) {
	d.Status = string(s.Status)
	d.StartTime = runtree.FormatTime(s.StartTime)
	d.EndTime = runtree.FormatTime(s.EndTime)
	d.UpdateTime = runtree.FormatTime(s.UpdateTime)
	d.Attempt = s.Attempt
}

func toState(d NodeDelta) (runtree.State, error) {
	var err error
	status, ok := domain.ParseStatus(d.Status)
	if !ok {
		return runtree.State{}, fmt.Errorf("unknown status %q", d.Status)
	}
	state := runtree.State{Status: status, Attempt: d.Attempt}
	if state.StartTime, err = runtree.ParseTime(d.StartTime); err != nil {
		return runtree.State{}, err
	}
	if state.EndTime, err = runtree.ParseTime(d.EndTime); err != nil {
		return runtree.State{}, err
	}
	if state.UpdateTime, err = runtree.ParseTime(d.UpdateTime); err != nil {
		return runtree.State{}, err
	}
	return state, nil
}

// Marshal serializes d to JSON.
func Marshal(d NodeDelta) ([]byte, error) {
	return json.Marshal(d)
}

// Unmarshal parses JSON produced by Marshal.
func Unmarshal(raw []byte) (NodeDelta, error) {
	var d NodeDelta
	if err := json.Unmarshal(raw, &d); err != nil {
		return NodeDelta{}, fmt.Errorf("parse delta: %w", err)
	}
	return d, nil
}
