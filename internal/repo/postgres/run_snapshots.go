package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/animus-labs/runstate/internal/domain"
	"github.com/animus-labs/runstate/internal/repo"
)

type SnapshotStore struct {
	db DB
}

const (
	upsertSnapshotQuery = `INSERT INTO run_snapshots (
		snapshot_id,
		run_id,
		project_id,
		flow_id,
		status,
		update_time,
		payload,
		saved_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	ON CONFLICT (project_id, run_id) DO UPDATE SET
		flow_id = EXCLUDED.flow_id,
		status = EXCLUDED.status,
		update_time = EXCLUDED.update_time,
		payload = EXCLUDED.payload,
		saved_at = EXCLUDED.saved_at
	RETURNING snapshot_id, run_id, project_id, flow_id, status, update_time, payload, saved_at`

	selectSnapshotQuery = `SELECT snapshot_id, run_id, project_id, flow_id, status, update_time, payload, saved_at
	 FROM run_snapshots
	 WHERE project_id = $1 AND run_id = $2`

	deleteSnapshotQuery = `DELETE FROM run_snapshots WHERE project_id = $1 AND run_id = $2`
)

func NewSnapshotStore(db DB) *SnapshotStore {
	if db == nil {
		return nil
	}
	return &SnapshotStore{db: db}
}

// Save inserts the snapshot of a run or replaces the one already stored for it.
// The snapshot id of the first save is kept.
func (s *SnapshotStore) Save(ctx context.Context, record repo.SnapshotRecord) (repo.SnapshotRecord, error) {
	if s == nil || s.db == nil {
		return repo.SnapshotRecord{}, fmt.Errorf("snapshot store not initialized")
	}
	record.ProjectID = strings.TrimSpace(record.ProjectID)
	record.RunID = strings.TrimSpace(record.RunID)
	if record.ProjectID == "" {
		return repo.SnapshotRecord{}, fmt.Errorf("project id is required")
	}
	if record.RunID == "" {
		return repo.SnapshotRecord{}, fmt.Errorf("run id is required")
	}
	if len(record.Payload) == 0 {
		return repo.SnapshotRecord{}, fmt.Errorf("payload is required")
	}
	if strings.TrimSpace(record.SnapshotID) == "" {
		record.SnapshotID = uuid.NewString()
	}

	var updateTime sql.NullTime
	if !record.UpdateTime.IsZero() {
		updateTime = sql.NullTime{Time: record.UpdateTime.UTC(), Valid: true}
	}

	row := s.db.QueryRowContext(
		ctx,
		upsertSnapshotQuery,
		record.SnapshotID,
		record.RunID,
		record.ProjectID,
		record.FlowID,
		string(record.Status),
		updateTime,
		record.Payload,
		normalizeTime(record.SavedAt),
	)
	out, err := scanSnapshot(row)
	if err != nil {
		return repo.SnapshotRecord{}, fmt.Errorf("upsert snapshot: %w", err)
	}
	return out, nil
}

func (s *SnapshotStore) Get(ctx context.Context, projectID, runID string) (repo.SnapshotRecord, error) {
	if s == nil || s.db == nil {
		return repo.SnapshotRecord{}, fmt.Errorf("snapshot store not initialized")
	}
	projectID = strings.TrimSpace(projectID)
	runID = strings.TrimSpace(runID)
	if projectID == "" {
		return repo.SnapshotRecord{}, fmt.Errorf("project id is required")
	}
	if runID == "" {
		return repo.SnapshotRecord{}, fmt.Errorf("run id is required")
	}
	out, err := scanSnapshot(s.db.QueryRowContext(ctx, selectSnapshotQuery, projectID, runID))
	if err != nil {
		return repo.SnapshotRecord{}, handleNotFound(err)
	}
	return out, nil
}

func (s *SnapshotStore) List(ctx context.Context, filter repo.SnapshotFilter) ([]repo.SnapshotRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("snapshot store not initialized")
	}
	projectID := strings.TrimSpace(filter.ProjectID)
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}

	query := strings.Builder{}
	query.WriteString(`SELECT snapshot_id, run_id, project_id, flow_id, status, update_time, payload, saved_at
	 FROM run_snapshots
	 WHERE project_id = $1`)
	args := []any{projectID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query.WriteString(fmt.Sprintf(" AND status = $%d", len(args)))
	}
	args = append(args, normalizeLimit(filter.Limit))
	query.WriteString(fmt.Sprintf(" ORDER BY saved_at DESC, run_id LIMIT $%d", len(args)))

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := []repo.SnapshotRecord{}
	for rows.Next() {
		record, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return out, nil
}

func (s *SnapshotStore) Delete(ctx context.Context, projectID, runID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("snapshot store not initialized")
	}
	res, err := s.db.ExecContext(ctx, deleteSnapshotQuery, strings.TrimSpace(projectID), strings.TrimSpace(runID))
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (repo.SnapshotRecord, error) {
	var (
		record     repo.SnapshotRecord
		status     string
		updateTime sql.NullTime
	)
	if err := row.Scan(
		&record.SnapshotID,
		&record.RunID,
		&record.ProjectID,
		&record.FlowID,
		&status,
		&updateTime,
		&record.Payload,
		&record.SavedAt,
	); err != nil {
		return repo.SnapshotRecord{}, err
	}
	record.Status = domain.Status(status)
	if updateTime.Valid {
		record.UpdateTime = updateTime.Time.UTC()
	}
	record.SavedAt = record.SavedAt.UTC()
	return record, nil
}

var _ repo.SnapshotRepository = (*SnapshotStore)(nil)
