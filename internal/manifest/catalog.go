package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	sderrors "github.com/sitdown/sitdown/internal/errors"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Catalog records analysis runs.
type Catalog interface {
	// RegisterRun inserts a running record and returns its id.
	RegisterRun(ctx context.Context, sourcePath string, idleThreshold time.Duration) (string, error)

	// CompleteRun marks a run completed with its counts and object path.
	CompleteRun(ctx context.Context, runID string, stats RunStats) error

	// FailRun marks a run failed with the error that stopped it.
	FailRun(ctx context.Context, runID string, cause error) error

	// GetRun retrieves a single run.
	GetRun(ctx context.Context, runID string) (*RunRecord, error)

	// ListRuns returns the most recent runs first. limit <= 0 returns all.
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)

	// Close closes the catalog database connection.
	Close() error
}

// RunStats are the counts recorded when a run completes.
type RunStats struct {
	EventCount   int64
	TimelineRows int64
	SessionCount int64
	UserCount    int64
	ObjectPath   string
	SizeBytes    int64
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	RunID         string
	Status        RunStatus
	SourcePath    string
	IdleThreshold time.Duration
	StartedAt     time.Time
	FinishedAt    *time.Time
	Stats         RunStats
	Error         string
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex // serializes writes
	now    func() time.Time
}

// NewCatalog opens (creating if needed) the catalog at dbPath.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, catalogError("open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &SQLiteCatalog{db: db, dbPath: dbPath, now: time.Now}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func catalogError(op string, err error) error {
	return sderrors.NewStorageError(sderrors.CodeCatalogFailed, "manifest: "+op, err)
}

func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return catalogError("initialize schema", err)
		}
	}
	return nil
}

// Path returns the catalog database path.
func (c *SQLiteCatalog) Path() string {
	return c.dbPath
}

// RegisterRun inserts a running record with a fresh UUID.
func (c *SQLiteCatalog) RegisterRun(ctx context.Context, sourcePath string, idleThreshold time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	runID := uuid.New().String()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, status, source_path, idle_threshold_ns, started_at) VALUES (?, ?, ?, ?, ?)`,
		runID, string(StatusRunning), sourcePath, int64(idleThreshold), c.now().Unix(),
	)
	if err != nil {
		return "", catalogError("insert run", err)
	}
	return runID, nil
}

// CompleteRun marks a running run completed.
func (c *SQLiteCatalog) CompleteRun(ctx context.Context, runID string, stats RunStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, `
		UPDATE runs SET
			status = ?, finished_at = ?,
			event_count = ?, timeline_rows = ?, session_count = ?, user_count = ?,
			object_path = ?, size_bytes = ?
		WHERE run_id = ?`,
		string(StatusCompleted), c.now().Unix(),
		stats.EventCount, stats.TimelineRows, stats.SessionCount, stats.UserCount,
		nullString(stats.ObjectPath), stats.SizeBytes,
		runID,
	)
	if err != nil {
		return catalogError("complete run", err)
	}
	return requireOne(res, runID)
}

// FailRun marks a run failed.
func (c *SQLiteCatalog) FailRun(ctx context.Context, runID string, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	res, err := c.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error = ? WHERE run_id = ?`,
		string(StatusFailed), c.now().Unix(), msg, runID,
	)
	if err != nil {
		return catalogError("fail run", err)
	}
	return requireOne(res, runID)
}

func requireOne(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return catalogError("rows affected", err)
	}
	if n == 0 {
		return runNotFound(runID)
	}
	return nil
}

func runNotFound(runID string) error {
	return sderrors.New(sderrors.ErrCategoryStorage, sderrors.CodeRunNotFound,
		fmt.Sprintf("manifest: run %s not found", runID)).
		WithDetails(map[string]interface{}{"run_id": runID})
}

const selectRunColumns = `
	SELECT run_id, status, source_path, idle_threshold_ns, started_at, finished_at,
		event_count, timeline_rows, session_count, user_count, object_path, size_bytes, error
	FROM runs`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		rec        RunRecord
		status     string
		idleNS     int64
		startedAt  int64
		finishedAt sql.NullInt64
		objectPath sql.NullString
		errMsg     sql.NullString
	)
	err := row.Scan(&rec.RunID, &status, &rec.SourcePath, &idleNS, &startedAt, &finishedAt,
		&rec.Stats.EventCount, &rec.Stats.TimelineRows, &rec.Stats.SessionCount, &rec.Stats.UserCount,
		&objectPath, &rec.Stats.SizeBytes, &errMsg)
	if err != nil {
		return nil, err
	}

	rec.Status = RunStatus(status)
	rec.IdleThreshold = time.Duration(idleNS)
	rec.StartedAt = time.Unix(startedAt, 0).UTC()
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		rec.FinishedAt = &t
	}
	rec.Stats.ObjectPath = objectPath.String
	rec.Error = errMsg.String
	return &rec, nil
}

// GetRun retrieves a run by id.
func (c *SQLiteCatalog) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	rec, err := scanRun(c.db.QueryRowContext(ctx, selectRunColumns+" WHERE run_id = ?", runID))
	if err == sql.ErrNoRows {
		return nil, runNotFound(runID)
	}
	if err != nil {
		return nil, catalogError("get run", err)
	}
	return rec, nil
}

// ListRuns returns runs newest first.
func (c *SQLiteCatalog) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	query := selectRunColumns + " ORDER BY started_at DESC, rowid DESC"
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, catalogError("list runs", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, catalogError("scan run", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, catalogError("iterate runs", err)
	}
	return runs, nil
}

// Close closes the database.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
