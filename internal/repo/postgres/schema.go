package postgres

// Schema lists the statements that create the tables this package reads and writes.
// Snapshot payloads are stored as BYTEA so they come back byte for byte.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS run_snapshots (
		snapshot_id UUID PRIMARY KEY,
		run_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		flow_id TEXT NOT NULL,
		status TEXT NOT NULL,
		update_time TIMESTAMPTZ,
		payload BYTEA NOT NULL,
		saved_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (project_id, run_id)
	)`,
	`CREATE INDEX IF NOT EXISTS run_snapshots_project_status_idx
		ON run_snapshots (project_id, status, saved_at DESC)`,
}
