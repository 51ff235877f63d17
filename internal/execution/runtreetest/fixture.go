// Package runtreetest builds run trees for tests.
package runtreetest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/animus-labs/runstate/internal/definition"
	"github.com/animus-labs/runstate/internal/domain"
	"github.com/animus-labs/runstate/internal/execution/plan"
	"github.com/animus-labs/runstate/internal/execution/runtree"
)

// EmbeddedFlow is the root workflow of EmbeddedCatalog.
const EmbeddedFlow = "jobe"

// InnerFlow is the workflow embedded by jobb, jobc, and jobd.
const InnerFlow = "innerFlow"

// EmbeddedCatalog returns joba -> {jobb, jobc, jobd} -> jobe where jobb, jobc,
// and jobd each embed innerFlow: innerJobA -> {innerJobB, innerJobC} -> innerFlow.
func EmbeddedCatalog(t testing.TB) *definition.Catalog {
	t.Helper()
	catalog, err := definition.NewCatalog(
		domain.WorkflowDefinition{
			Name: EmbeddedFlow,
			Jobs: []domain.WorkflowJob{
				{Name: "joba", Type: "command", Source: "joba.job"},
				{Name: "jobb", Source: "jobb.job", Flow: InnerFlow, DependsOn: []string{"joba"}},
				{Name: "jobc", Source: "jobc.job", Flow: InnerFlow, DependsOn: []string{"joba"}},
				{Name: "jobd", Source: "jobd.job", Flow: InnerFlow, DependsOn: []string{"joba"}},
				{Name: "jobe", Type: "command", Source: "jobe.job", PropsSource: "shared.properties", DependsOn: []string{"jobb", "jobc", "jobd"}},
			},
		},
		domain.WorkflowDefinition{
			Name: InnerFlow,
			Jobs: []domain.WorkflowJob{
				{Name: "innerJobA", Type: "command", Source: "inner/innerJobA.job"},
				{Name: "innerJobB", Type: "command", Source: "inner/innerJobB.job", DependsOn: []string{"innerJobA"}},
				{Name: "innerJobC", Type: "command", Source: "inner/innerJobC.job", DependsOn: []string{"innerJobA"}},
				{Name: "innerFlow", Type: "command", Source: "inner/innerFlow.job", DependsOn: []string{"innerJobB", "innerJobC"}},
			},
		},
	)
	require.NoError(t, err)
	return catalog
}

// Metadata returns the run metadata used by EmbeddedRun.
func Metadata() domain.RunMetadata {
	return domain.RunMetadata{
		RunID:          "101",
		ProjectID:      "11",
		ProjectVersion: 123,
		SubmitUser:     "testUser",
		SubmitTime:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		ExecutionPath:  "/executions/101",
		ScheduleID:     "sched-7",
	}
}

// EmbeddedRun materializes EmbeddedFlow.
func EmbeddedRun(t testing.TB) *runtree.Run {
	t.Helper()
	run, err := plan.BuildRun(EmbeddedCatalog(t), EmbeddedFlow, Metadata())
	require.NoError(t, err)
	return run
}

// MustLookup resolves a nested id or fails the test.
func MustLookup(t testing.TB, run *runtree.Run, nestedID string) *runtree.Node {
	t.Helper()
	node, ok := run.Lookup(nestedID)
	require.Truef(t, ok, "node %q not found", nestedID)
	return node
}

// Touch sets status, start, and end time of n at time at, the way the engine
// reports a finished job.
func Touch(t testing.TB, n *runtree.Node, status domain.Status, at time.Time) {
	t.Helper()
	require.NoError(t, n.SetEndTime(at, at))
	require.NoError(t, n.SetStatus(status, at))
	require.NoError(t, n.SetStartTime(at.Add(-time.Second), at))
}
