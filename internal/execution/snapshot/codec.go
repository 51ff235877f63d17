package snapshot

import (
	"fmt"
	"slices"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/animus-labs/runstate/internal/domain"
	"github.com/animus-labs/runstate/internal/execution/runtree"
)

// Encode captures every field of run, recursively, including options.
func Encode(run *runtree.Run) RunRecord {
	opts := run.Options
	return RunRecord{
		SchemaVersion:    SchemaVersion,
		NodeRecord:       EncodeNode(run.Root()),
		RunID:            run.RunID,
		ProjectID:        run.ProjectID,
		ProjectVersion:   run.ProjectVersion,
		SubmitTime:       runtree.FormatTime(run.SubmitTime),
		SubmitUser:       run.SubmitUser,
		ExecutionPath:    run.ExecutionPath,
		ScheduleID:       run.ScheduleID,
		RunAttempt:       run.Attempt,
		DelayedExecution: int64(run.DelayedExecution),
		Options: OptionsRecord{
			ConcurrentOption:        opts.ConcurrentOption,
			DisabledJobs:            opts.DisabledJobs(),
			FailureAction:           string(opts.FailureAction),
			SuccessEmails:           slices.Clone(nonNil(opts.SuccessEmails.Addresses)),
			SuccessEmailsOverridden: opts.SuccessEmails.Overridden,
			FailureEmails:           slices.Clone(nonNil(opts.FailureEmails.Addresses)),
			FailureEmailsOverridden: opts.FailureEmails.Overridden,
			PipelineLevel:           opts.PipelineLevel,
			PipelineRunID:           opts.PipelineRunID,
			NotifyOnFirstFailure:    opts.NotifyOnFirstFailure,
			NotifyOnLastFailure:     opts.NotifyOnLastFailure,
			Parameters:              opts.Parameters(),
		},
	}
}

// EncodeNode captures n and its subtree.
func EncodeNode(n *runtree.Node) NodeRecord {
	state := n.State()
	rec := NodeRecord{
		ID:          n.ID(),
		Kind:        string(n.Kind()),
		Status:      string(state.Status),
		StartTime:   runtree.FormatTime(state.StartTime),
		EndTime:     runtree.FormatTime(state.EndTime),
		UpdateTime:  runtree.FormatTime(state.UpdateTime),
		Attempt:     state.Attempt,
		JobSource:   n.JobSource(),
		PropsSource: n.PropsSource(),
		InNodes:     n.InNodes(),
		OutNodes:    n.OutNodes(),
	}
	switch n.Kind() {
	case runtree.KindFlow:
		rec.SubflowID = n.SubflowID()
		children := n.Children()
		rec.Nodes = make([]NodeRecord, 0, len(children))
		for _, child := range children {
			rec.Nodes = append(rec.Nodes, EncodeNode(child))
		}
	case runtree.KindLeaf:
	}
	return rec
}

// Decode rebuilds a run from rec. Any defect aborts decoding with a
// *SerializationError and no tree.
func Decode(rec RunRecord) (*runtree.Run, error) {
	if rec.SchemaVersion < 0 || rec.SchemaVersion > SchemaVersion {
		return nil, serializationErrorf("", "unsupported schemaVersion %d", rec.SchemaVersion)
	}
	if rec.Kind != string(runtree.KindFlow) {
		return nil, serializationErrorf(rec.ID, "root kind must be %q, got %q", runtree.KindFlow, rec.Kind)
	}
	root, err := decodeNode(rec.NodeRecord, "")
	if err != nil {
		return nil, err
	}
	submitTime, err := runtree.ParseTime(rec.SubmitTime)
	if err != nil {
		return nil, &SerializationError{Path: "submitTime", Reason: err.Error()}
	}
	opts, err := decodeOptions(rec.Options)
	if err != nil {
		return nil, err
	}
	run, err := runtree.NewRun(root, domain.RunMetadata{
		RunID:          rec.RunID,
		ProjectID:      rec.ProjectID,
		ProjectVersion: rec.ProjectVersion,
		SubmitUser:     rec.SubmitUser,
		SubmitTime:     submitTime,
		ExecutionPath:  rec.ExecutionPath,
		ScheduleID:     rec.ScheduleID,
	})
	if err != nil {
		return nil, &SerializationError{Path: rec.ID, Reason: err.Error()}
	}
	run.Attempt = rec.RunAttempt
	run.DelayedExecution = time.Duration(rec.DelayedExecution)
	run.Options = opts
	return run, nil
}

func decodeNode(rec NodeRecord, parentPath string) (*runtree.Node, error) {
	path := joinPath(parentPath, rec.ID)
	if strings.TrimSpace(rec.ID) == "" {
		return nil, serializationErrorf(path, "id is required")
	}
	status, ok := domain.ParseStatus(rec.Status)
	if !ok {
		return nil, serializationErrorf(path, "unknown status %q", rec.Status)
	}
	spec := runtree.Spec{
		JobSource:   rec.JobSource,
		PropsSource: rec.PropsSource,
		InNodes:     rec.InNodes,
		OutNodes:    rec.OutNodes,
	}

	var node *runtree.Node
	switch runtree.Kind(rec.Kind) {
	case runtree.KindLeaf:
		if len(rec.Nodes) > 0 || rec.SubflowID != "" {
			return nil, serializationErrorf(path, "leaf record carries flow fields")
		}
		node = runtree.NewLeaf(rec.ID, spec)
	case runtree.KindFlow:
		node = runtree.NewFlow(rec.ID, rec.SubflowID, spec)
		for _, childRec := range rec.Nodes {
			child, err := decodeNode(childRec, path)
			if err != nil {
				return nil, err
			}
			if err := node.AddChild(child); err != nil {
				return nil, &SerializationError{Path: path, Reason: err.Error()}
			}
		}
	case "":
		return nil, serializationErrorf(path, "kind is required")
	default:
		return nil, serializationErrorf(path, "unknown kind %q", rec.Kind)
	}

	state := runtree.State{Status: status, Attempt: rec.Attempt}
	for _, field := range []struct {
		name string
		raw  string
		dst  *time.Time
	}{
		{"startTime", rec.StartTime, &state.StartTime},
		{"endTime", rec.EndTime, &state.EndTime},
		{"updateTime", rec.UpdateTime, &state.UpdateTime},
	} {
		t, err := runtree.ParseTime(field.raw)
		if err != nil {
			return nil, serializationErrorf(path, "%s: %v", field.name, err)
		}
		*field.dst = t
	}
	if err := node.RestoreState(state); err != nil {
		return nil, &SerializationError{Path: path, Reason: err.Error()}
	}
	return node, nil
}

func decodeOptions(rec OptionsRecord) (domain.ExecutionOptions, error) {
	var action domain.FailureAction
	if rec.FailureAction != "" {
		parsed, err := domain.ParseFailureAction(rec.FailureAction)
		if err != nil {
			return domain.ExecutionOptions{}, &SerializationError{Path: "options.failureAction", Reason: err.Error()}
		}
		action = parsed
	}
	opts := domain.ExecutionOptions{
		ConcurrentOption: rec.ConcurrentOption,
		FailureAction:    action,
		SuccessEmails: domain.NotificationList{
			Addresses:  slices.Clone(nonNil(rec.SuccessEmails)),
			Overridden: rec.SuccessEmailsOverridden,
		},
		FailureEmails: domain.NotificationList{
			Addresses:  slices.Clone(nonNil(rec.FailureEmails)),
			Overridden: rec.FailureEmailsOverridden,
		},
		PipelineLevel:        rec.PipelineLevel,
		PipelineRunID:        rec.PipelineRunID,
		NotifyOnFirstFailure: rec.NotifyOnFirstFailure,
		NotifyOnLastFailure:  rec.NotifyOnLastFailure,
	}
	opts.SetDisabledJobs(rec.DisabledJobs)
	opts.SetParameters(rec.Parameters)
	return opts, nil
}

// Marshal encodes run and serializes the record to JSON.
func Marshal(run *runtree.Run) ([]byte, error) {
	return json.Marshal(Encode(run))
}

// Unmarshal parses JSON produced by Marshal and decodes it.
func Unmarshal(raw []byte) (*runtree.Run, error) {
	var rec RunRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, &SerializationError{Reason: "parse: " + err.Error()}
	}
	return Decode(rec)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func joinPath(parent, id string) string {
	if parent == "" {
		return id
	}
	return parent + runtree.NestedIDSeparator + id
}

func serializationErrorf(path, format string, args ...any) error {
	return &SerializationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
