package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// WorkflowDefinition is the static DAG a run tree is materialized from.
type WorkflowDefinition struct {
	Name  string
	Jobs  []WorkflowJob
	Edges []WorkflowEdge
}

// WorkflowJob is one entry of a workflow. A job with a non-empty Flow
// references another workflow by name instead of carrying executable logic.
type WorkflowJob struct {
	Name        string
	Type        string
	Source      string
	PropsSource string
	Flow        string
	DependsOn   []string
}

type WorkflowEdge struct {
	From string
	To   string
}

// IsSubflow reports whether the job embeds another workflow.
func (j WorkflowJob) IsSubflow() bool {
	return strings.TrimSpace(j.Flow) != ""
}

// JobNameSet returns the set of job names declared in the workflow.
func (w WorkflowDefinition) JobNameSet() map[string]struct{} {
	names := make(map[string]struct{}, len(w.Jobs))
	for _, job := range w.Jobs {
		if strings.TrimSpace(job.Name) == "" {
			continue
		}
		names[job.Name] = struct{}{}
	}
	return names
}

// DependencyEdges returns explicit edges followed by the edges implied by
// each job's DependsOn list, without duplicates.
func (w WorkflowDefinition) DependencyEdges() []WorkflowEdge {
	seen := make(map[WorkflowEdge]struct{}, len(w.Edges))
	out := make([]WorkflowEdge, 0, len(w.Edges))
	add := func(edge WorkflowEdge) {
		edge.From = strings.TrimSpace(edge.From)
		edge.To = strings.TrimSpace(edge.To)
		if _, ok := seen[edge]; ok {
			return
		}
		seen[edge] = struct{}{}
		out = append(out, edge)
	}
	for _, edge := range w.Edges {
		add(edge)
	}
	for _, job := range w.Jobs {
		for _, dep := range job.DependsOn {
			add(WorkflowEdge{From: dep, To: job.Name})
		}
	}
	return out
}

// ValidateBasicShape performs lightweight structural checks without resolving references.
func (w WorkflowDefinition) ValidateBasicShape() error {
	if strings.TrimSpace(w.Name) == "" {
		return errors.New("workflow name is required")
	}
	if len(w.Jobs) == 0 {
		return fmt.Errorf("workflow %q must contain at least one job", w.Name)
	}
	for i, job := range w.Jobs {
		if strings.TrimSpace(job.Name) == "" {
			return fmt.Errorf("workflow %q job[%d] name is required", w.Name, i)
		}
	}
	return nil
}

// RunMetadata describes the submission a run tree is materialized for.
type RunMetadata struct {
	RunID          string
	ProjectID      string
	ProjectVersion int
	SubmitUser     string
	SubmitTime     time.Time
	ExecutionPath  string
	ScheduleID     string
}
