// Package export writes the results of a run into a self-contained SQLite
// database.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	sderrors "github.com/sitdown/sitdown/internal/errors"
	"github.com/sitdown/sitdown/internal/logging"
	"github.com/sitdown/sitdown/pkg/types"
)

// Result table names.
const (
	TableTimeline = "timeline"
	TableSessions = "sessions"
	TableRunInfo  = "run_info"
)

// familyTables maps each timing family to its table.
var familyTables = map[types.TimingFamily]string{
	types.FamilySessionDuration: "user_session_durations",
	types.FamilyInterSessionGap: "user_session_gaps",
	types.FamilyIntraSessionGap: "user_event_gaps",
}

// FamilyTable returns the table a timing family is exported to.
func FamilyTable(f types.TimingFamily) string {
	if name, ok := familyTables[f]; ok {
		return name
	}
	return "user_" + strings.ToLower(string(f))
}

// Results is everything one run produces.
type Results struct {
	RunID         string
	IdleThreshold time.Duration
	Timeline      *types.Timeline
	Sessions      *types.SessionTable
	Timings       []*types.TimingTable
	// Info holds extra run_info entries
	Info map[string]string
}

// FileInfo describes a written results database.
type FileInfo struct {
	Path      string
	SizeBytes int64
	// RowCounts maps table name to rows written
	RowCounts map[string]int64
}

// Writer builds results databases in a local directory.
type Writer struct {
	outputDir string
	logger    *zap.Logger
}

// NewWriter creates a writer that places files in outputDir.
func NewWriter(outputDir string, logger *zap.Logger) *Writer {
	return &Writer{
		outputDir: outputDir,
		logger:    logging.WithComponent(logging.OrNop(logger), "export"),
	}
}

// Path returns the file a run's results are written to.
func (w *Writer) Path(runID string) string {
	return filepath.Clean(filepath.Join(w.outputDir, runID+".sqlite"))
}

// Write builds the results database for res. The file is built in WAL mode,
// then checkpointed and switched to DELETE journaling so the finished file
// is a single immutable artifact. An existing file for the run is replaced.
func (w *Writer) Write(ctx context.Context, res *Results) (*FileInfo, error) {
	if res == nil || res.RunID == "" {
		return nil, sderrors.NewInternalError("export: results need a run id", nil)
	}

	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return nil, sderrors.NewStorageError(sderrors.CodeWriteFailed, "export: create output directory", err)
	}

	path := w.Path(res.RunID)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return nil, sderrors.NewStorageError(sderrors.CodeWriteFailed, "export: remove stale file", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, sderrors.NewStorageError(sderrors.CodeWriteFailed, "export: create database", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return nil, exportError("set journal mode", err)
	}

	counts := make(map[string]int64)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, exportError("begin transaction", err)
	}

	steps := []struct {
		table string
		write func(context.Context, *sql.Tx, *Results) (int64, error)
	}{
		{TableTimeline, writeTimeline},
		{TableSessions, writeSessions},
		{TableRunInfo, writeRunInfo},
	}
	for _, step := range steps {
		n, err := step.write(ctx, tx, res)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		counts[step.table] = n
	}
	for _, tbl := range res.Timings {
		if tbl == nil {
			continue
		}
		n, err := writeTimingTable(ctx, tx, tbl)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		counts[FamilyTable(tbl.Family)] = n
	}

	if err := tx.Commit(); err != nil {
		return nil, exportError("commit", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, exportError("checkpoint WAL", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=DELETE"); err != nil {
		return nil, exportError("set journal mode to DELETE", err)
	}
	if err := db.Close(); err != nil {
		return nil, exportError("close database", err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, exportError("stat database", err)
	}

	w.logger.Info("results written",
		zap.String("path", path),
		zap.Int64("size_bytes", stat.Size()),
		zap.Int64("sessions", counts[TableSessions]))

	return &FileInfo{Path: path, SizeBytes: stat.Size(), RowCounts: counts}, nil
}

func exportError(op string, err error) error {
	return sderrors.NewStorageError(sderrors.CodeWriteFailed, "export: "+op, err)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func writeTimeline(ctx context.Context, tx *sql.Tx, res *Results) (int64, error) {
	ddl := `
		CREATE TABLE timeline (
			row_idx INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_value TEXT,
			t_diff_seconds REAL NOT NULL,
			same_user_as_prev INTEGER NOT NULL,
			within_idle_threshold INTEGER NOT NULL,
			delta_t_seconds REAL NOT NULL,
			session_boundary INTEGER NOT NULL,
			session_ordinal INTEGER NOT NULL,
			sitdown_session_id TEXT NOT NULL
		)
	`
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return 0, exportError("create timeline table", err)
	}
	if _, err := tx.ExecContext(ctx, "CREATE INDEX idx_timeline_session ON timeline(sitdown_session_id)"); err != nil {
		return 0, exportError("create timeline index", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO timeline VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, exportError("prepare timeline insert", err)
	}
	defer stmt.Close()

	if res.Timeline == nil {
		return 0, nil
	}
	for i, row := range res.Timeline.Rows {
		var value interface{}
		if row.Value != nil {
			value = *row.Value
		}
		_, err := stmt.ExecContext(ctx,
			i,
			row.UserID,
			formatTime(row.Timestamp),
			row.EventType,
			value,
			row.TDiff.Seconds(),
			boolInt(row.SameUserAsPrev),
			boolInt(row.WithinIdleThreshold),
			row.DeltaT.Seconds(),
			boolInt(row.SessionBoundary),
			row.SessionOrdinal,
			row.SessionID,
		)
		if err != nil {
			return 0, exportError("insert timeline row", err)
		}
	}
	return int64(len(res.Timeline.Rows)), nil
}

// SessionCountColumn is the sessions column holding counts for eventType.
func SessionCountColumn(eventType string) string {
	return "n_" + eventType
}

func writeSessions(ctx context.Context, tx *sql.Tx, res *Results) (int64, error) {
	var eventTypes []string
	if res.Sessions != nil {
		eventTypes = res.Sessions.EventTypes
	}

	cols := []string{
		"sitdown_session_id TEXT PRIMARY KEY",
		"user_id TEXT NOT NULL",
		"ordinal INTEGER NOT NULL",
		"n_events INTEGER NOT NULL",
		"start_time TEXT NOT NULL",
		"end_time TEXT NOT NULL",
		"duration_seconds REAL NOT NULL",
		"duration_hours REAL NOT NULL",
		"duration_repr TEXT NOT NULL",
		"delta_t_median_seconds REAL NOT NULL",
		"delta_t_median_repr TEXT NOT NULL",
	}
	for _, et := range eventTypes {
		cols = append(cols, quoteIdent(SessionCountColumn(et))+" INTEGER NOT NULL DEFAULT 0")
	}

	ddl := fmt.Sprintf("CREATE TABLE sessions (%s)", strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return 0, exportError("create sessions table", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO sessions VALUES (%s)", placeholders))
	if err != nil {
		return 0, exportError("prepare sessions insert", err)
	}
	defer stmt.Close()

	if res.Sessions == nil {
		return 0, nil
	}
	for _, s := range res.Sessions.Sessions {
		args := []interface{}{
			s.SessionID,
			s.UserID,
			s.Ordinal,
			s.NEvents,
			formatTime(s.Start),
			formatTime(s.End),
			s.Duration.Seconds(),
			s.DurationHours,
			s.DurationRepr,
			s.DeltaTMedian.Seconds(),
			s.DeltaTMedianRepr,
		}
		for _, et := range eventTypes {
			args = append(args, s.EventTypeCounts[et])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, exportError("insert session row", err)
		}
	}
	return int64(len(res.Sessions.Sessions)), nil
}

func writeTimingTable(ctx context.Context, tx *sql.Tx, tbl *types.TimingTable) (int64, error) {
	name := FamilyTable(tbl.Family)
	p := tbl.Family.Prefix()
	ddl := fmt.Sprintf(`CREATE TABLE %s (
		user_id TEXT PRIMARY KEY,
		%s_mean REAL NOT NULL,
		%s_median REAL NOT NULL,
		%s_max REAL NOT NULL,
		%s_min REAL NOT NULL
	)`, quoteIdent(name), p, p, p, p)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return 0, exportError("create "+name+" table", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?, ?)", quoteIdent(name)))
	if err != nil {
		return 0, exportError("prepare "+name+" insert", err)
	}
	defer stmt.Close()

	for _, r := range tbl.Rows {
		if _, err := stmt.ExecContext(ctx, r.UserID, r.Summary.Mean, r.Summary.Median, r.Summary.Max, r.Summary.Min); err != nil {
			return 0, exportError("insert "+name+" row", err)
		}
	}
	return int64(len(tbl.Rows)), nil
}

func writeRunInfo(ctx context.Context, tx *sql.Tx, res *Results) (int64, error) {
	if _, err := tx.ExecContext(ctx, "CREATE TABLE run_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)"); err != nil {
		return 0, exportError("create run_info table", err)
	}

	info := map[string]string{
		"run_id":         res.RunID,
		"idle_threshold": res.IdleThreshold.String(),
		"created_at":     formatTime(time.Now()),
		"timeline_rows":  fmt.Sprint(res.Timeline.Len()),
		"time_unit":      "minutes",
	}
	if res.Sessions != nil {
		info["sessions"] = fmt.Sprint(res.Sessions.Len())
	}
	for _, tbl := range res.Timings {
		if tbl != nil {
			info["family:"+FamilyTable(tbl.Family)] = string(tbl.Family)
		}
	}
	for k, v := range res.Info {
		info[k] = v
	}

	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, "INSERT INTO run_info (key, value) VALUES (?, ?)", k, info[k]); err != nil {
			return 0, exportError("insert run_info row", err)
		}
	}
	return int64(len(keys)), nil
}
