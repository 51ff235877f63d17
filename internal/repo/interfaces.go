package repo

import (
	"context"
	"errors"
	"time"

	"github.com/animus-labs/runstate/internal/domain"
)

var ErrNotFound = errors.New("not found")

// SnapshotRecord is a stored run snapshot. Payload holds the encoded run
// tree; the other fields are copied out of it for lookups.
type SnapshotRecord struct {
	SnapshotID string
	RunID      string
	ProjectID  string
	FlowID     string
	Status     domain.Status
	UpdateTime time.Time
	Payload    []byte
	SavedAt    time.Time
}

type SnapshotFilter struct {
	ProjectID string
	Status    domain.Status
	Limit     int
}

// SnapshotRepository keeps the latest snapshot per run.
type SnapshotRepository interface {
	Save(ctx context.Context, record SnapshotRecord) (SnapshotRecord, error)
	Get(ctx context.Context, projectID, runID string) (SnapshotRecord, error)
	List(ctx context.Context, filter SnapshotFilter) ([]SnapshotRecord, error)
	Delete(ctx context.Context, projectID, runID string) error
}
