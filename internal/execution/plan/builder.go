package plan

import (
	"fmt"
	"strings"

	"github.com/animus-labs/runstate/internal/domain"
	"github.com/animus-labs/runstate/internal/execution/runtree"
	"github.com/animus-labs/runstate/internal/execution/specvalidator"
)

// DefinitionProvider supplies static workflow definitions by name.
type DefinitionProvider interface {
	Workflow(name string) (domain.WorkflowDefinition, bool)
}

// BuildRun materializes the workflow flowID into a run tree. Every node starts
// in domain.InitialStatus, edges are copied from the definition, and jobs that
// reference another workflow are expanded into nested flow nodes carrying the
// job's name as id and the referenced workflow's name as subflow id.
//
// A definition that cannot be resolved yields a *specvalidator.StructuralError
// and no tree.
func BuildRun(provider DefinitionProvider, flowID string, meta domain.RunMetadata) (*runtree.Run, error) {
	flowID = strings.TrimSpace(flowID)
	if flowID == "" {
		return nil, fmt.Errorf("flow id is required")
	}
	if strings.TrimSpace(meta.ProjectID) == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if err := specvalidator.ValidateWorkflow(provider, flowID); err != nil {
		return nil, err
	}

	root, err := expand(provider, flowID, flowID, runtree.Spec{})
	if err != nil {
		return nil, err
	}
	run, err := runtree.NewRun(root, meta)
	if err != nil {
		return nil, &specvalidator.StructuralError{Flow: flowID, Issues: []string{err.Error()}}
	}
	return run, nil
}

func expand(provider DefinitionProvider, id, workflow string, spec runtree.Spec) (*runtree.Node, error) {
	def, ok := provider.Workflow(workflow)
	if !ok {
		return nil, &specvalidator.StructuralError{
			Flow:   workflow,
			Issues: []string{fmt.Sprintf("workflow %q not found", workflow)},
		}
	}
	flow := runtree.NewFlow(id, def.Name, spec)

	in, out := adjacency(def)
	for _, job := range def.Jobs {
		childSpec := runtree.Spec{
			JobSource:   job.Source,
			PropsSource: job.PropsSource,
			InNodes:     in[job.Name],
			OutNodes:    out[job.Name],
		}
		child := runtree.NewLeaf(job.Name, childSpec)
		if job.IsSubflow() {
			var err error
			child, err = expand(provider, job.Name, strings.TrimSpace(job.Flow), childSpec)
			if err != nil {
				return nil, err
			}
		}
		if err := flow.AddChild(child); err != nil {
			return nil, &specvalidator.StructuralError{Flow: def.Name, Issues: []string{err.Error()}}
		}
	}
	return flow, nil
}

func adjacency(def domain.WorkflowDefinition) (map[string][]string, map[string][]string) {
	in := make(map[string][]string, len(def.Jobs))
	out := make(map[string][]string, len(def.Jobs))
	for _, edge := range def.DependencyEdges() {
		out[edge.From] = append(out[edge.From], edge.To)
		in[edge.To] = append(in[edge.To], edge.From)
	}
	return in, out
}
