package runtree

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/runstate/internal/domain"
)

var ErrDanglingEdge = errors.New("edge does not resolve to a sibling")

// Run is the root of a run tree: a flow node with no parent plus the
// identifiers and options of one run attempt.
type Run struct {
	root *Node

	RunID            string
	ProjectID        string
	ProjectVersion   int
	SubmitTime       time.Time
	SubmitUser       string
	ExecutionPath    string
	ScheduleID       string
	Attempt          int
	DelayedExecution time.Duration
	Options          domain.ExecutionOptions
}

// NewRun verifies the tree rooted at root and fixes its structure. After
// NewRun returns, only scalar node state may change.
func NewRun(root *Node, meta domain.RunMetadata) (*Run, error) {
	if root == nil {
		return nil, errors.New("root is required")
	}
	if !root.IsFlow() {
		return nil, fmt.Errorf("root %q: %w", root.id, ErrNotFlow)
	}
	if root.Parent() != nil {
		return nil, fmt.Errorf("root %q: %w", root.id, ErrAlreadyAttached)
	}
	if err := verify(root); err != nil {
		return nil, err
	}
	_ = Walk(root, func(n *Node) error {
		n.sealed = true
		return nil
	})
	return &Run{
		root:           root,
		RunID:          strings.TrimSpace(meta.RunID),
		ProjectID:      strings.TrimSpace(meta.ProjectID),
		ProjectVersion: meta.ProjectVersion,
		SubmitTime:     normalizeTime(meta.SubmitTime),
		SubmitUser:     meta.SubmitUser,
		ExecutionPath:  meta.ExecutionPath,
		ScheduleID:     meta.ScheduleID,
	}, nil
}

// Root returns the root flow node.
func (r *Run) Root() *Node {
	return r.root
}

// FlowID returns the name of the workflow the run was materialized from.
func (r *Run) FlowID() string {
	return r.root.SubflowID()
}

// Lookup resolves a nested id such as "jobb:innerJobA" from the root. The
// empty id resolves to the root itself.
func (r *Run) Lookup(nestedID string) (*Node, bool) {
	if strings.TrimSpace(nestedID) == "" {
		return r.root, true
	}
	return r.root.Resolve(nestedID)
}

// Metadata returns the submission fields of the run.
func (r *Run) Metadata() domain.RunMetadata {
	return domain.RunMetadata{
		RunID:          r.RunID,
		ProjectID:      r.ProjectID,
		ProjectVersion: r.ProjectVersion,
		SubmitUser:     r.SubmitUser,
		SubmitTime:     r.SubmitTime,
		ExecutionPath:  r.ExecutionPath,
		ScheduleID:     r.ScheduleID,
	}
}

func verify(flow *Node) error {
	for _, child := range flow.Children() {
		if child.Parent() != flow {
			return fmt.Errorf("child %q of %q: parent mismatch", child.id, flow.id)
		}
		for _, id := range child.inNodes {
			if _, ok := flow.Child(id); !ok {
				return fmt.Errorf("%q in-edge %q: %w", child.NestedID(), id, ErrDanglingEdge)
			}
		}
		for _, id := range child.outNodes {
			if _, ok := flow.Child(id); !ok {
				return fmt.Errorf("%q out-edge %q: %w", child.NestedID(), id, ErrDanglingEdge)
			}
		}
		if child.IsFlow() {
			if err := verify(child); err != nil {
				return err
			}
		}
	}
	return nil
}
