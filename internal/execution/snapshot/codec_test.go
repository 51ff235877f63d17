package snapshot_test

import (
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/animus-labs/runstate/internal/domain"
	"github.com/animus-labs/runstate/internal/execution/runtree"
	"github.com/animus-labs/runstate/internal/execution/runtreetest"
	"github.com/animus-labs/runstate/internal/execution/snapshot"
)

func populatedRun(t *testing.T) *runtree.Run {
	t.Helper()
	run := runtreetest.EmbeddedRun(t)
	run.Attempt = 2
	run.DelayedExecution = 5 * time.Second

	opts := &run.Options
	opts.ConcurrentOption = "pipeline"
	opts.FailureAction = domain.FailureActionCancelAll
	opts.SetSuccessEmails([]string{"ok1@example.com", "ok2@example.com"})
	opts.SetFailureEmails([]string{})
	opts.PipelineLevel = 2
	opts.PipelineRunID = "98"
	opts.NotifyOnFirstFailure = true
	opts.SetDisabledJobs([]string{"jobd", "jobb:innerJobC"})
	opts.SetParameters(map[string]string{"flow.num.job": "3", "env": "prod"})

	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	runtreetest.Touch(t, runtreetest.MustLookup(t, run, "joba"), domain.StatusSucceeded, at)
	inner := runtreetest.MustLookup(t, run, "jobb:innerJobA")
	require.NoError(t, inner.SetStatus(domain.StatusRunning, at.Add(time.Minute)))
	require.NoError(t, inner.SetAttempt(1, at.Add(time.Minute)))
	return run
}

func TestRoundTripPreservesEverything(t *testing.T) {
	run := populatedRun(t)

	raw, err := snapshot.Marshal(run)
	require.NoError(t, err)
	decoded, err := snapshot.Unmarshal(raw)
	require.NoError(t, err)

	if diff := cmp.Diff(snapshot.Encode(run), snapshot.Encode(decoded)); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, run.Metadata(), decoded.Metadata())
	require.Equal(t, 2, decoded.Attempt)
	require.Equal(t, 5*time.Second, decoded.DelayedExecution)
	require.Equal(t, domain.FailureActionCancelAll, decoded.Options.FailureAction)
	require.True(t, decoded.Options.SuccessEmails.Overridden)
	require.True(t, decoded.Options.FailureEmails.Overridden)
	require.Empty(t, decoded.Options.FailureEmails.Addresses)
	require.Equal(t, []string{"jobd", "jobb:innerJobC"}, decoded.Options.DisabledJobs())
	v, _ := decoded.Options.Parameter("flow.num.job")
	require.Equal(t, "3", v)

	inner := runtreetest.MustLookup(t, decoded, "jobb:innerJobA")
	require.Equal(t, domain.StatusRunning, inner.Status())
	require.Equal(t, 1, inner.Attempt())
	require.Equal(t, "jobb", inner.Parent().ID())

	flow := runtreetest.MustLookup(t, decoded, "jobc")
	require.Equal(t, runtree.KindFlow, flow.Kind())
	require.Equal(t, runtreetest.InnerFlow, flow.SubflowID())
}

func TestDecodedTreeIsSealed(t *testing.T) {
	decoded, err := snapshot.Decode(snapshot.Encode(populatedRun(t)))
	require.NoError(t, err)
	require.ErrorIs(t, decoded.Root().AddChild(runtree.NewLeaf("late", runtree.Spec{})), runtree.ErrSealed)
}

func TestUnsetOptionsStayUnset(t *testing.T) {
	run := runtreetest.EmbeddedRun(t)
	decoded, err := snapshot.Decode(snapshot.Encode(run))
	require.NoError(t, err)
	require.False(t, decoded.Options.SuccessEmails.Overridden)
	require.False(t, decoded.Options.FailureEmails.Overridden)
	require.Equal(t, domain.FailureAction(""), decoded.Options.FailureAction)
	require.Equal(t, domain.DefaultFailureAction, decoded.Options.FailureAction.Effective())
}

func TestWireShape(t *testing.T) {
	raw, err := snapshot.Marshal(populatedRun(t))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.EqualValues(t, snapshot.SchemaVersion, doc["schemaVersion"])
	require.Equal(t, "jobe", doc["id"])
	require.Equal(t, "flow", doc["kind"])
	require.Equal(t, "jobe", doc["subflowId"])
	require.Equal(t, "101", doc["runId"])

	opts := doc["options"].(map[string]any)
	require.Equal(t, "CANCEL_ALL", opts["failureAction"])
	require.Equal(t, true, opts["successEmailsOverridden"])

	nodes := doc["nodes"].([]any)
	require.Len(t, nodes, 5)
	joba := nodes[0].(map[string]any)
	require.Equal(t, "leaf", joba["kind"])
	require.Equal(t, "SUCCEEDED", joba["status"])
	require.Equal(t, "2024-03-01T12:30:00Z", joba["endTime"])
	require.Equal(t, "", nodes[4].(map[string]any)["startTime"], "unset times are empty")
	require.NotContains(t, joba, "nodes")
	require.NotContains(t, joba, "subflowId")
}

func TestRoundTripKeepsEdgeTimes(t *testing.T) {
	run := runtreetest.EmbeddedRun(t)
	run.SubmitTime = time.Date(2024, 3, 1, 14, 0, 0, 123456789, time.FixedZone("UTC+2", 2*60*60))
	run.DelayedExecution = 1500 * time.Microsecond

	epoch := time.Unix(0, 0)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	joba := runtreetest.MustLookup(t, run, "joba")
	require.NoError(t, joba.SetStartTime(epoch, at))
	require.NoError(t, joba.SetStatus(domain.StatusQueued, at.Add(250*time.Nanosecond)))

	raw, err := snapshot.Marshal(run)
	require.NoError(t, err)
	decoded, err := snapshot.Unmarshal(raw)
	require.NoError(t, err)

	if diff := cmp.Diff(snapshot.Encode(run), snapshot.Encode(decoded)); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	require.True(t, run.SubmitTime.Equal(decoded.SubmitTime))
	require.Equal(t, 1500*time.Microsecond, decoded.DelayedExecution)

	decodedA := runtreetest.MustLookup(t, decoded, "joba")
	require.False(t, decodedA.StartTime().IsZero(), "the epoch is not the unset time")
	require.True(t, epoch.Equal(decodedA.StartTime()))
	require.Equal(t, joba.UpdateTime(), decodedA.UpdateTime())
}

func TestDecodeRejectsMalformedRecords(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*snapshot.RunRecord)
		path   string
	}{
		{
			name:   "future schema",
			mutate: func(r *snapshot.RunRecord) { r.SchemaVersion = snapshot.SchemaVersion + 1 },
		},
		{
			name:   "leaf root",
			mutate: func(r *snapshot.RunRecord) { r.Kind = "leaf" },
			path:   "jobe",
		},
		{
			name:   "unknown status",
			mutate: func(r *snapshot.RunRecord) { r.Nodes[0].Status = "RETRIED" },
			path:   "jobe:joba",
		},
		{
			name:   "missing kind",
			mutate: func(r *snapshot.RunRecord) { r.Nodes[1].Nodes[0].Kind = "" },
			path:   "jobe:jobb:innerJobA",
		},
		{
			name:   "leaf with children",
			mutate: func(r *snapshot.RunRecord) { r.Nodes[0].Nodes = []snapshot.NodeRecord{{ID: "x", Kind: "leaf", Status: "READY"}} },
			path:   "jobe:joba",
		},
		{
			name:   "missing id",
			mutate: func(r *snapshot.RunRecord) { r.Nodes[4].ID = "" },
		},
		{
			name: "duplicate child",
			mutate: func(r *snapshot.RunRecord) {
				r.Nodes[1].Nodes = append(r.Nodes[1].Nodes, r.Nodes[1].Nodes[0])
			},
			path: "jobe:jobb",
		},
		{
			name:   "dangling edge",
			mutate: func(r *snapshot.RunRecord) { r.Nodes[4].InNodes = append(r.Nodes[4].InNodes, "ghost") },
			path:   "jobe",
		},
		{
			name:   "malformed time",
			mutate: func(r *snapshot.RunRecord) { r.Nodes[1].Nodes[0].UpdateTime = "1709294400000" },
			path:   "jobe:jobb:innerJobA",
		},
		{
			name:   "malformed submit time",
			mutate: func(r *snapshot.RunRecord) { r.SubmitTime = "soon" },
			path:   "submitTime",
		},
		{
			name:   "bad failure action",
			mutate: func(r *snapshot.RunRecord) { r.Options.FailureAction = "RETRY" },
			path:   "options.failureAction",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := snapshot.Encode(populatedRun(t))
			tt.mutate(&rec)

			run, err := snapshot.Decode(rec)
			require.Nil(t, run)
			var serr *snapshot.SerializationError
			require.True(t, errors.As(err, &serr), "got %v", err)
			if tt.path != "" {
				require.Equal(t, tt.path, serr.Path)
			}
		})
	}
}

func TestUnmarshalRejectsInvalidJSON(t *testing.T) {
	_, err := snapshot.Unmarshal([]byte(`{"id":`))
	var serr *snapshot.SerializationError
	require.ErrorAs(t, err, &serr)
}
