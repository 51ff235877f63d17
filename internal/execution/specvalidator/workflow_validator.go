package specvalidator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/animus-labs/runstate/internal/domain"
)

// Provider supplies static workflow definitions by name.
type Provider interface {
	Workflow(name string) (domain.WorkflowDefinition, bool)
}

// ValidateWorkflow checks flowID and every workflow it embeds, transitively:
// job names must be unique, edges must join two declared jobs without forming
// a cycle, and every sub-workflow reference must resolve without recursing
// into a workflow that is already being expanded.
func ValidateWorkflow(provider Provider, flowID string) error {
	issues := &StructuralError{Flow: flowID}
	if provider == nil {
		issues.Add("definition provider is required")
		return issues.OrNil()
	}
	v := &validator{
		provider: provider,
		issues:   issues,
		checked:  map[string]struct{}{},
	}
	if _, ok := provider.Workflow(flowID); !ok {
		issues.Add(fmt.Sprintf("workflow %q not found", flowID))
		return issues.OrNil()
	}
	v.visit(flowID, nil)
	return issues.OrNil()
}

type validator struct {
	provider Provider
	issues   *StructuralError
	checked  map[string]struct{}
}

func (v *validator) visit(name string, stack []string) {
	for _, open := range stack {
		if open == name {
			v.issues.Add(fmt.Sprintf("sub-workflow cycle: %s -> %s", strings.Join(stack, " -> "), name))
			return
		}
	}
	def, ok := v.provider.Workflow(name)
	if !ok {
		return
	}
	stack = append(stack, name)
	if _, done := v.checked[name]; !done {
		v.checked[name] = struct{}{}
		v.checkShape(def)
	}
	for _, job := range def.Jobs {
		if !job.IsSubflow() {
			continue
		}
		ref := strings.TrimSpace(job.Flow)
		if _, ok := v.provider.Workflow(ref); !ok {
			v.issues.Add(fmt.Sprintf("workflow %q job %q references unknown workflow %q", name, job.Name, ref))
			continue
		}
		v.visit(ref, stack)
	}
}

func (v *validator) checkShape(def domain.WorkflowDefinition) {
	if err := def.ValidateBasicShape(); err != nil {
		v.issues.Add(err.Error())
	}

	names := make(map[string]struct{}, len(def.Jobs))
	for i, job := range def.Jobs {
		name := strings.TrimSpace(job.Name)
		if name == "" {
			continue
		}
		if name != job.Name {
			v.issues.Add(fmt.Sprintf("workflow %q job[%d] name %q has surrounding whitespace", def.Name, i, job.Name))
		}
		if strings.Contains(name, ":") {
			v.issues.Add(fmt.Sprintf("workflow %q job name %q must not contain ':'", def.Name, name))
		}
		if _, exists := names[name]; exists {
			v.issues.Add(fmt.Sprintf("workflow %q duplicate job name %q", def.Name, name))
		}
		names[name] = struct{}{}
	}

	adj := make(map[string][]string, len(names))
	for _, edge := range def.DependencyEdges() {
		if edge.From == "" || edge.To == "" {
			v.issues.Add(fmt.Sprintf("workflow %q edges must specify from and to", def.Name))
			continue
		}
		if edge.From == edge.To {
			v.issues.Add(fmt.Sprintf("workflow %q edge %q has self-edge", def.Name, edge.From))
			continue
		}
		if _, ok := names[edge.From]; !ok {
			v.issues.Add(fmt.Sprintf("workflow %q edge from %q not found", def.Name, edge.From))
			continue
		}
		if _, ok := names[edge.To]; !ok {
			v.issues.Add(fmt.Sprintf("workflow %q edge to %q not found", def.Name, edge.To))
			continue
		}
		adj[edge.From] = append(adj[edge.From], edge.To)
	}

	if hasCycle(adj, names) {
		v.issues.Add(fmt.Sprintf("workflow %q dependency graph contains a cycle", def.Name))
	}
}

func hasCycle(adj map[string][]string, nodes map[string]struct{}) bool {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(nodes))
	var visit func(string) bool
	visit = func(node string) bool {
		switch state[node] {
		case visiting:
			return true
		case done:
			return false
		}
		state[node] = visiting
		for _, next := range adj[node] {
			if visit(next) {
				return true
			}
		}
		state[node] = done
		return false
	}

	ordered := make([]string, 0, len(nodes))
	for node := range nodes {
		ordered = append(ordered, node)
	}
	sort.Strings(ordered)
	for _, node := range ordered {
		if state[node] == unvisited {
			if visit(node) {
				return true
			}
		}
	}
	return false
}
