package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/animus-labs/runstate/internal/domain"
	"github.com/animus-labs/runstate/internal/repo"
)

var snapshotColumns = []string{"snapshot_id", "run_id", "project_id", "flow_id", "status", "update_time", "payload", "saved_at"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func TestSnapshotQueriesAreScopedByProject(t *testing.T) {
	require.Contains(t, upsertSnapshotQuery, "ON CONFLICT (project_id, run_id) DO UPDATE")
	require.NotContains(t, upsertSnapshotQuery, "snapshot_id = EXCLUDED.snapshot_id")
	require.Contains(t, selectSnapshotQuery, "project_id = $1 AND run_id = $2")
	require.Contains(t, deleteSnapshotQuery, "project_id = $1 AND run_id = $2")
	require.True(t, strings.Contains(Schema[0], "UNIQUE (project_id, run_id)"))
}

func TestSnapshotPayloadIsStoredVerbatim(t *testing.T) {
	require.Contains(t, Schema[0], "payload BYTEA NOT NULL")
	require.NotContains(t, Schema[0], "JSONB")

	db, mock := newMock(t)
	saved := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte("{\"updateTime\": \"\",  \"id\":\"jobe\"}\n")
	mock.ExpectQuery(regexp.QuoteMeta("FROM run_snapshots")).
		WithArgs("11", "101").
		WillReturnRows(sqlmock.NewRows(snapshotColumns).
			AddRow("id-1", "101", "11", "jobe", "READY", nil, payload, saved))

	out, err := NewSnapshotStore(db).Get(context.Background(), "11", "101")
	require.NoError(t, err)
	require.Equal(t, payload, out.Payload)
}

func TestSnapshotStoreSave(t *testing.T) {
	db, mock := newMock(t)
	store := NewSnapshotStore(db)

	updated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	saved := updated.Add(time.Minute)
	payload := []byte(`{"id":"jobe"}`)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO run_snapshots")).
		WithArgs(sqlmock.AnyArg(), "101", "11", "jobe", "RUNNING", sql.NullTime{Time: updated, Valid: true}, payload, saved).
		WillReturnRows(sqlmock.NewRows(snapshotColumns).
			AddRow("3f1c3c56-6f3a-4d0e-9d55-4c0a1f0e2b11", "101", "11", "jobe", "RUNNING", updated, payload, saved))

	out, err := store.Save(context.Background(), repo.SnapshotRecord{
		RunID:      " 101 ",
		ProjectID:  "11",
		FlowID:     "jobe",
		Status:     domain.StatusRunning,
		UpdateTime: updated,
		Payload:    payload,
		SavedAt:    saved,
	})
	require.NoError(t, err)
	require.Equal(t, "3f1c3c56-6f3a-4d0e-9d55-4c0a1f0e2b11", out.SnapshotID)
	require.Equal(t, domain.StatusRunning, out.Status)
	require.Equal(t, updated, out.UpdateTime)
	require.Equal(t, payload, out.Payload)
}

func TestSnapshotStoreSaveValidates(t *testing.T) {
	db, _ := newMock(t)
	store := NewSnapshotStore(db)

	_, err := store.Save(context.Background(), repo.SnapshotRecord{RunID: "1", Payload: []byte("{}")})
	require.ErrorContains(t, err, "project id is required")
	_, err = store.Save(context.Background(), repo.SnapshotRecord{ProjectID: "p", RunID: "1"})
	require.ErrorContains(t, err, "payload is required")

	var nilStore *SnapshotStore
	_, err = nilStore.Get(context.Background(), "p", "1")
	require.Error(t, err)
	require.Nil(t, NewSnapshotStore(nil))
}

func TestSnapshotStoreGetNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM run_snapshots")).
		WithArgs("11", "404").
		WillReturnError(sql.ErrNoRows)

	_, err := NewSnapshotStore(db).Get(context.Background(), "11", "404")
	require.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestSnapshotStoreGetNullUpdateTime(t *testing.T) {
	db, mock := newMock(t)
	saved := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM run_snapshots")).
		WithArgs("11", "101").
		WillReturnRows(sqlmock.NewRows(snapshotColumns).
			AddRow("id-1", "101", "11", "jobe", "READY", nil, []byte("{}"), saved))

	out, err := NewSnapshotStore(db).Get(context.Background(), "11", "101")
	require.NoError(t, err)
	require.True(t, out.UpdateTime.IsZero())
	require.Equal(t, domain.StatusReady, out.Status)
}

func TestSnapshotStoreList(t *testing.T) {
	db, mock := newMock(t)
	saved := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE project_id = $1 AND status = $2 ORDER BY saved_at DESC, run_id LIMIT $3")).
		WithArgs("11", "FAILED", defaultListLimit).
		WillReturnRows(sqlmock.NewRows(snapshotColumns).
			AddRow("id-1", "101", "11", "jobe", "FAILED", saved, []byte("{}"), saved).
			AddRow("id-2", "102", "11", "jobe", "FAILED", saved, []byte("{}"), saved))

	out, err := NewSnapshotStore(db).List(context.Background(), repo.SnapshotFilter{ProjectID: "11", Status: domain.StatusFailed})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "102", out[1].RunID)

	_, err = NewSnapshotStore(db).List(context.Background(), repo.SnapshotFilter{})
	require.ErrorContains(t, err, "project id is required")
}

func TestSnapshotStoreDelete(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(deleteSnapshotQuery)).
		WithArgs("11", "101").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(deleteSnapshotQuery)).
		WithArgs("11", "101").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewSnapshotStore(db)
	require.NoError(t, store.Delete(context.Background(), "11", "101"))
	require.ErrorIs(t, store.Delete(context.Background(), "11", "101"), repo.ErrNotFound)
}
