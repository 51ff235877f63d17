package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/animus-labs/runstate/internal/domain"
	"github.com/animus-labs/runstate/internal/execution/delta"
	"github.com/animus-labs/runstate/internal/execution/plan"
	"github.com/animus-labs/runstate/internal/execution/runtree"
	"github.com/animus-labs/runstate/internal/execution/snapshot"
	"github.com/animus-labs/runstate/internal/execution/state"
	"github.com/animus-labs/runstate/internal/platform/auditlog"
	"github.com/animus-labs/runstate/internal/repo"
)

var (
	ErrRunNotFound  = errors.New("run not found")
	ErrNodeNotFound = errors.New("node not found")
	ErrRunExists    = errors.New("run already tracked")
)

// SnapshotArchiver keeps a copy of encoded snapshots outside the database.
type SnapshotArchiver interface {
	Save(ctx context.Context, projectID, runID string, payload []byte) (string, error)
}

type Config struct {
	Snapshots repo.SnapshotRepository
	Archive   SnapshotArchiver
	Audit     auditlog.Appender
	// Actor is recorded on audit events; defaults to "runstate".
	Actor  string
	Logger *slog.Logger
	Clock  func() time.Time
}

// Tracker owns live run trees. Each run has its own lock: engine updates
// take it exclusively, snapshots and deltas share it for the whole traversal.
type Tracker struct {
	mu   sync.RWMutex
	runs map[string]*entry

	snapshots repo.SnapshotRepository
	archive   SnapshotArchiver
	audit     auditlog.Appender
	actor     string
	logger    *slog.Logger
	clock     func() time.Time
}

type entry struct {
	mu   sync.RWMutex
	run  *runtree.Run
	last time.Time
}

func NewTracker(cfg Config) *Tracker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	actor := strings.TrimSpace(cfg.Actor)
	if actor == "" {
		actor = "runstate"
	}
	return &Tracker{
		runs:      map[string]*entry{},
		snapshots: cfg.Snapshots,
		archive:   cfg.Archive,
		audit:     cfg.Audit,
		actor:     actor,
		logger:    logger,
		clock:     clock,
	}
}

// Start materializes flowID, applies opts and its disabled jobs, and begins
// tracking the run. An empty meta.RunID is replaced by a generated id.
func (t *Tracker) Start(provider plan.DefinitionProvider, flowID string, meta domain.RunMetadata, opts domain.ExecutionOptions) (*runtree.Run, error) {
	if strings.TrimSpace(meta.RunID) == "" {
		meta.RunID = uuid.NewString()
	}
	if meta.SubmitTime.IsZero() {
		meta.SubmitTime = t.clock()
	}
	run, err := plan.BuildRun(provider, flowID, meta)
	if err != nil {
		return nil, err
	}
	run.Options = opts.Clone()

	missing, err := state.ApplyDisabledJobs(run, meta.SubmitTime)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		t.logger.Warn("disabled jobs not found in run", "run_id", run.RunID, "flow", flowID, "jobs", missing)
	}
	if err := t.Add(run); err != nil {
		return nil, err
	}
	t.logger.Info("run started", "run_id", run.RunID, "project_id", run.ProjectID, "flow", flowID)
	return run, nil
}

// Add tracks an already built run, for example one decoded from a snapshot.
// The caller must not touch run afterwards except through the tracker.
func (t *Tracker) Add(run *runtree.Run) error {
	if run == nil || run.RunID == "" {
		return errors.New("run with id is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.runs[run.RunID]; exists {
		return fmt.Errorf("%s: %w", run.RunID, ErrRunExists)
	}
	t.runs[run.RunID] = &entry{run: run, last: runtree.LatestUpdate(run.Root())}
	liveRunsGauge.Set(float64(len(t.runs)))
	return nil
}

// Remove stops tracking runID.
func (t *Tracker) Remove(runID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.runs[runID]
	delete(t.runs, runID)
	liveRunsGauge.Set(float64(len(t.runs)))
	return ok
}

// RunIDs returns the tracked run ids in sorted order.
func (t *Tracker) RunIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.runs))
	for id := range t.runs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (t *Tracker) get(runID string) (*entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	return e, nil
}

// UpdateFunc mutates one node. at is the update time to pass to the node
// setters; it is strictly later than any earlier update of the same run.
type UpdateFunc func(node *runtree.Node, at time.Time) error

// Update runs fn against the node at nestedID, then reconciles the flow
// statuses of the whole run at the same instant. A change of the root status
// is written to the audit log when one is configured.
func (t *Tracker) Update(ctx context.Context, runID, nestedID string, fn UpdateFunc) error {
	e, err := t.get(runID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	run := e.run
	node, ok := run.Lookup(nestedID)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%s in run %s: %w", nestedID, runID, ErrNodeNotFound)
	}
	at := e.tick(t.clock())
	before := run.Root().Status()
	if err := fn(node, at); err != nil {
		e.mu.Unlock()
		return err
	}
	nodeUpdateCounter.WithLabelValues(string(node.Status())).Inc()
	if _, err := state.Reconcile(run, at); err != nil {
		e.mu.Unlock()
		return err
	}
	after := run.Root().Status()
	projectID := run.ProjectID
	flowID := run.FlowID()
	e.mu.Unlock()

	if before != after {
		runTransitionCounter.WithLabelValues(string(after)).Inc()
		t.logger.Info("run status changed", "run_id", runID, "from", before, "to", after)
		if err := t.appendTransition(ctx, projectID, runID, flowID, before, after, at); err != nil {
			t.logger.Error("audit run transition", "run_id", runID, "err", err)
		}
	}
	return nil
}

// SetStatus is Update with a checked status transition.
func (t *Tracker) SetStatus(ctx context.Context, runID, nestedID string, status domain.Status) error {
	return t.Update(ctx, runID, nestedID, func(node *runtree.Node, at time.Time) error {
		prev := node.Status()
		if err := node.Transition(status, at); err != nil {
			return err
		}
		if status == domain.StatusRunning && node.StartTime().IsZero() {
			if err := node.SetStartTime(at, at); err != nil {
				return err
			}
		}
		if status.IsTerminal() && prev.IsStarted() && !prev.IsTerminal() {
			return node.SetEndTime(at, at)
		}
		return nil
	})
}

// tick returns a time strictly after every update already in the run, so
// that a delta taken at the previous watermark always sees the new change.
func (e *entry) tick(now time.Time) time.Time {
	at := now.UTC()
	if !at.After(e.last) {
		at = e.last.Add(time.Nanosecond)
	}
	e.last = at
	return at
}

// Snapshot encodes the whole run.
func (t *Tracker) Snapshot(_ context.Context, runID string) ([]byte, error) {
	e, err := t.get(runID)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return snapshot.Marshal(e.run)
}

// Delta returns the changes after since together with the watermark to pass
// as since on the next call.
func (t *Tracker) Delta(_ context.Context, runID string, since time.Time) (delta.NodeDelta, time.Time, error) {
	e, err := t.get(runID)
	if err != nil {
		return delta.NodeDelta{}, time.Time{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	d := delta.ProduceRun(e.run, since)
	deltaEntriesHistogram.Observe(float64(d.Len()))
	watermark := runtree.LatestUpdate(e.run.Root())
	if watermark.Before(since) {
		watermark = since
	}
	return d, watermark, nil
}

// View calls fn with the run under the read lock. fn must not retain run or
// change it.
func (t *Tracker) View(runID string, fn func(run *runtree.Run)) error {
	e, err := t.get(runID)
	if err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn(e.run)
	return nil
}

// Persist writes the current snapshot of runID to the snapshot repository and
// the archive, whichever are configured.
func (t *Tracker) Persist(ctx context.Context, runID string) (repo.SnapshotRecord, error) {
	e, err := t.get(runID)
	if err != nil {
		return repo.SnapshotRecord{}, err
	}

	e.mu.RLock()
	payload, err := snapshot.Marshal(e.run)
	record := repo.SnapshotRecord{
		RunID:      e.run.RunID,
		ProjectID:  e.run.ProjectID,
		FlowID:     e.run.FlowID(),
		Status:     e.run.Root().Status(),
		UpdateTime: runtree.LatestUpdate(e.run.Root()),
		Payload:    payload,
	}
	e.mu.RUnlock()
	if err != nil {
		return repo.SnapshotRecord{}, err
	}
	record.SavedAt = t.clock().UTC()

	if t.snapshots != nil {
		saved, err := t.snapshots.Save(ctx, record)
		if err != nil {
			persistCounter.WithLabelValues("postgres", "error").Inc()
			return repo.SnapshotRecord{}, err
		}
		persistCounter.WithLabelValues("postgres", "ok").Inc()
		record = saved
	}
	if t.archive != nil {
		key, err := t.archive.Save(ctx, record.ProjectID, record.RunID, payload)
		if err != nil {
			persistCounter.WithLabelValues("objectstore", "error").Inc()
			return repo.SnapshotRecord{}, err
		}
		persistCounter.WithLabelValues("objectstore", "ok").Inc()
		t.logger.Debug("snapshot archived", "run_id", runID, "key", key)
	}
	return record, nil
}

// Restore loads the stored snapshot of runID and starts tracking it.
func (t *Tracker) Restore(ctx context.Context, projectID, runID string) (*runtree.Run, error) {
	if t.snapshots == nil {
		return nil, errors.New("snapshot repository is not configured")
	}
	record, err := t.snapshots.Get(ctx, projectID, runID)
	if err != nil {
		return nil, err
	}
	run, err := snapshot.Unmarshal(record.Payload)
	if err != nil {
		return nil, err
	}
	if err := t.Add(run); err != nil {
		return nil, err
	}
	return run, nil
}

func (t *Tracker) appendTransition(ctx context.Context, projectID, runID, flowID string, from, to domain.Status, at time.Time) error {
	if t.audit == nil {
		return nil
	}
	return t.audit.Append(ctx, auditlog.Event{
		OccurredAt:   at,
		Actor:        t.actor,
		Action:       "run." + strings.ToLower(string(to)),
		ResourceType: "run",
		ResourceID:   runID,
		Payload: map[string]any{
			"project_id": projectID,
			"run_id":     runID,
			"flow_id":    flowID,
			"from":       string(from),
			"to":         string(to),
		},
	})
}
