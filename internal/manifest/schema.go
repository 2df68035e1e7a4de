// Package manifest provides the run catalog: a SQLite database recording
// every analysis run and where its results were stored.
package manifest

// CreateRunsTableSQL creates the runs table. Timestamps are Unix seconds.
const CreateRunsTableSQL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    source_path TEXT NOT NULL,
    idle_threshold_ns INTEGER NOT NULL,
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    event_count INTEGER NOT NULL DEFAULT 0,
    timeline_rows INTEGER NOT NULL DEFAULT 0,
    session_count INTEGER NOT NULL DEFAULT 0,
    user_count INTEGER NOT NULL DEFAULT 0,
    object_path TEXT,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    error TEXT
)`

// CreateRunsIndexesSQL creates indexes for listing runs.
var CreateRunsIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status, started_at)`,
}

// AllSchemaSQL returns all SQL statements needed to initialize the catalog.
func AllSchemaSQL() []string {
	statements := []string{CreateRunsTableSQL}
	statements = append(statements, CreateRunsIndexesSQL...)
	return statements
}
