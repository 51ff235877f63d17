package snapshot

// SchemaVersion is the record layout written by Encode. Decode accepts it and
// records that predate versioning (schemaVersion 0).
const SchemaVersion = 1

// NodeRecord is the wire form of one run-tree node. Kind selects the variant:
// flow records carry Nodes and SubflowID, leaf records carry neither. Times
// are RFC 3339 with nanoseconds; "" means unset.
type NodeRecord struct {
	ID          string       `json:"id"`
	Kind        string       `json:"kind"`
	Status      string       `json:"status"`
	StartTime   string       `json:"startTime"`
	EndTime     string       `json:"endTime"`
	UpdateTime  string       `json:"updateTime"`
	Attempt     int          `json:"attempt"`
	JobSource   string       `json:"jobSource,omitempty"`
	PropsSource string       `json:"propsSource,omitempty"`
	InNodes     []string     `json:"inNodes"`
	OutNodes    []string     `json:"outNodes"`
	Nodes       []NodeRecord `json:"nodes,omitempty"`
	SubflowID   string       `json:"subflowId,omitempty"`
}

// RunRecord is the wire form of a whole run: the root flow node plus run identifiers.
type RunRecord struct {
	SchemaVersion int `json:"schemaVersion"`
	NodeRecord
	RunID            string        `json:"runId"`
	ProjectID        string        `json:"projectId"`
	ProjectVersion   int           `json:"projectVersion"`
	SubmitTime       string        `json:"submitTime"`
	SubmitUser       string        `json:"submitUser"`
	ExecutionPath    string        `json:"executionPath"`
	ScheduleID       string        `json:"scheduleId,omitempty"`
	RunAttempt       int           `json:"runAttempt"`
	// DelayedExecution is in nanoseconds.
	DelayedExecution int64         `json:"delayedExecution"`
	Options          OptionsRecord `json:"options"`
}

// OptionsRecord is the wire form of domain.ExecutionOptions.
type OptionsRecord struct {
	ConcurrentOption        string            `json:"concurrentOption"`
	DisabledJobs            []string          `json:"disabledJobs"`
	FailureAction           string            `json:"failureAction"`
	SuccessEmails           []string          `json:"successEmails"`
	SuccessEmailsOverridden bool              `json:"successEmailsOverridden"`
	FailureEmails           []string          `json:"failureEmails"`
	FailureEmailsOverridden bool              `json:"failureEmailsOverridden"`
	PipelineLevel           int               `json:"pipelineLevel"`
	PipelineRunID           string            `json:"pipelineRunId,omitempty"`
	NotifyOnFirstFailure    bool              `json:"notifyOnFirstFailure"`
	NotifyOnLastFailure     bool              `json:"notifyOnLastFailure"`
	Parameters              map[string]string `json:"parameters"`
}
