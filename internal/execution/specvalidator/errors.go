package specvalidator

import "strings"

// StructuralError aggregates the defects that keep a workflow definition from
// being materialized. It is fatal to that materialization attempt.
type StructuralError struct {
	Flow   string
	Issues []string
}

func (e *StructuralError) Error() string {
	prefix := "workflow structure invalid"
	if e.Flow != "" {
		prefix = "workflow " + e.Flow + " structure invalid"
	}
	if len(e.Issues) == 0 {
		return prefix
	}
	return prefix + ": " + strings.Join(e.Issues, "; ")
}

func (e *StructuralError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *StructuralError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}
