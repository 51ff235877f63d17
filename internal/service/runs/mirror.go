package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/animus-labs/runstate/internal/domain"
	"github.com/animus-labs/runstate/internal/execution/delta"
	"github.com/animus-labs/runstate/internal/execution/runtree"
	"github.com/animus-labs/runstate/internal/execution/snapshot"
)

// Source serves the state of a remote run. *Tracker implements it.
type Source interface {
	Snapshot(ctx context.Context, runID string) ([]byte, error)
	Delta(ctx context.Context, runID string, since time.Time) (delta.NodeDelta, time.Time, error)
}

// Mirror keeps a local copy of one remote run by polling deltas. A delta that
// does not fit the copy makes the mirror drop it and load a full snapshot.
type Mirror struct {
	source Source
	runID  string
	logger *slog.Logger

	mu    sync.RWMutex
	run   *runtree.Run
	since time.Time
}

func NewMirror(source Source, runID string, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{source: source, runID: runID, logger: logger.With("run_id", runID)}
}

// Sync brings the copy up to date and returns the number of node entries the
// source reported. The first call loads a snapshot.
func (m *Mirror) Sync(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run == nil {
		return 0, m.reload(ctx)
	}
	d, watermark, err := m.source.Delta(ctx, m.runID, m.since)
	if err != nil {
		return 0, fmt.Errorf("fetch delta: %w", err)
	}
	if err := delta.ApplyRun(m.run, d); err != nil {
		var perr *delta.ProtocolError
		if !errors.As(err, &perr) {
			return 0, err
		}
		mirrorResyncCounter.Inc()
		m.logger.Warn("delta does not fit local copy, reloading snapshot", "path", perr.Path, "reason", perr.Reason)
		return 0, m.reload(ctx)
	}
	m.since = watermark
	return d.Len(), nil
}

func (m *Mirror) reload(ctx context.Context) error {
	raw, err := m.source.Snapshot(ctx, m.runID)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}
	run, err := snapshot.Unmarshal(raw)
	if err != nil {
		return err
	}
	m.run = run
	m.since = runtree.LatestUpdate(run.Root())
	return nil
}

// Poll calls Sync every interval until the run is terminal or ctx is done.
// Sync errors are logged and retried on the next tick.
func (m *Mirror) Poll(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := m.Sync(ctx); err != nil {
			m.logger.Error("mirror sync", "err", err)
		}
		if m.Status().IsTerminal() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Status returns the root status of the copy, or "" before the first sync.
func (m *Mirror) Status() domain.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.run == nil {
		return ""
	}
	return m.run.Root().Status()
}

// View calls fn with the local copy under the read lock. It reports false
// before the first successful sync.
func (m *Mirror) View(fn func(run *runtree.Run)) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.run == nil {
		return false
	}
	fn(m.run)
	return true
}
