package export

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitdown/sitdown/internal/aggregator"
	sderrors "github.com/sitdown/sitdown/internal/errors"
	"github.com/sitdown/sitdown/internal/sessionize"
	"github.com/sitdown/sitdown/pkg/types"
)

var t0 = time.Date(2023, 5, 1, 9, 0, 0, 0, time.UTC)

func strp(s string) *string { return &s }

func sampleResults(t *testing.T) *Results {
	t.Helper()
	at := func(m int) time.Time { return t0.Add(time.Duration(m) * time.Minute) }
	events := []types.Event{
		{UserID: "a", Timestamp: at(0), EventType: "pageview", Value: strp("pageview:/home")},
		{UserID: "a", Timestamp: at(5), EventType: "search"},
		{UserID: "a", Timestamp: at(90), EventType: "lead", Value: strp("lead:email")},
		{UserID: "b", Timestamp: at(3), EventType: "pageview", Value: strp("pageview:/home")},
	}
	tl := sessionize.NewSegmenter(30 * time.Minute).Segment(events)
	sessions, err := aggregator.AggregateSessions(tl)
	require.NoError(t, err)

	return &Results{
		RunID:         "run-1",
		IdleThreshold: 30 * time.Minute,
		Timeline:      tl,
		Sessions:      sessions,
		Timings:       aggregator.ComputeTimings(tl).Tables(),
		Info:          map[string]string{"source": "test.db"},
	}
}

func openResults(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n))
	return n
}

func TestWriter_Write(t *testing.T) {
	w := NewWriter(t.TempDir(), nil)
	res := sampleResults(t)

	info, err := w.Write(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, w.Path("run-1"), info.Path)
	assert.Positive(t, info.SizeBytes)
	assert.Equal(t, int64(4), info.RowCounts[TableTimeline])
	assert.Equal(t, int64(3), info.RowCounts[TableSessions])
	assert.Equal(t, int64(2), info.RowCounts["user_event_gaps"])

	_, err = os.Stat(info.Path + "-wal")
	assert.True(t, os.IsNotExist(err), "WAL file is folded into the database")

	db := openResults(t, info.Path)
	assert.Equal(t, 4, count(t, db, TableTimeline))
	assert.Equal(t, 3, count(t, db, TableSessions))
	assert.Equal(t, 2, count(t, db, "user_session_durations"))
	assert.Equal(t, 1, count(t, db, "user_session_gaps"))
	assert.Equal(t, 2, count(t, db, "user_event_gaps"))

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "delete", mode)
}

func TestWriter_SessionsTable(t *testing.T) {
	w := NewWriter(t.TempDir(), nil)
	info, err := w.Write(context.Background(), sampleResults(t))
	require.NoError(t, err)
	db := openResults(t, info.Path)

	var (
		nEvents            int
		durationSeconds    float64
		durationRepr       string
		nPageview, nSearch int
		nLead              int
		medianSeconds      float64
	)
	err = db.QueryRow(`
		SELECT n_events, duration_seconds, duration_repr, n_pageview, n_search, n_lead, delta_t_median_seconds
		FROM sessions WHERE sitdown_session_id = 'a_1'`).
		Scan(&nEvents, &durationSeconds, &durationRepr, &nPageview, &nSearch, &nLead, &medianSeconds)
	require.NoError(t, err)

	assert.Equal(t, 2, nEvents)
	assert.InDelta(t, 300, durationSeconds, 1e-9)
	assert.Equal(t, "5m 0.000000s", durationRepr)
	assert.Equal(t, 1, nPageview)
	assert.Equal(t, 1, nSearch)
	assert.Equal(t, 0, nLead)
	assert.InDelta(t, 150, medianSeconds, 1e-9)
}

func TestWriter_TimelineAndTimings(t *testing.T) {
	w := NewWriter(t.TempDir(), nil)
	info, err := w.Write(context.Background(), sampleResults(t))
	require.NoError(t, err)
	db := openResults(t, info.Path)

	var (
		value    sql.NullString
		boundary int
		id       string
	)
	require.NoError(t, db.QueryRow(
		"SELECT event_value, session_boundary, sitdown_session_id FROM timeline WHERE row_idx = 1").
		Scan(&value, &boundary, &id))
	assert.False(t, value.Valid, "search rows carry no value")
	assert.Equal(t, 0, boundary)
	assert.Equal(t, "a_1", id)

	var gapMean float64
	require.NoError(t, db.QueryRow("SELECT DT_mean FROM user_session_gaps WHERE user_id = 'a'").Scan(&gapMean))
	assert.InDelta(t, 85, gapMean, 1e-9)

	var family, source string
	require.NoError(t, db.QueryRow("SELECT value FROM run_info WHERE key = 'family:user_session_gaps'").Scan(&family))
	assert.Equal(t, "Delta_T", family)
	require.NoError(t, db.QueryRow("SELECT value FROM run_info WHERE key = 'source'").Scan(&source))
	assert.Equal(t, "test.db", source)
}

func TestWriter_ReplacesExistingFile(t *testing.T) {
	w := NewWriter(t.TempDir(), nil)
	res := sampleResults(t)

	_, err := w.Write(context.Background(), res)
	require.NoError(t, err)
	info, err := w.Write(context.Background(), res)
	require.NoError(t, err)

	db := openResults(t, info.Path)
	assert.Equal(t, 4, count(t, db, TableTimeline))
}

func TestWriter_EmptyResults(t *testing.T) {
	w := NewWriter(t.TempDir(), nil)
	tl := sessionize.NewSegmenter(0).Segment(nil)
	sessions, err := aggregator.AggregateSessions(tl)
	require.NoError(t, err)

	info, err := w.Write(context.Background(), &Results{
		RunID:    "empty",
		Timeline: tl,
		Sessions: sessions,
		Timings:  aggregator.ComputeTimings(tl).Tables(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.RowCounts[TableSessions])
}

func TestWriter_RequiresRunID(t *testing.T) {
	_, err := NewWriter(t.TempDir(), nil).Write(context.Background(), &Results{})
	assert.Error(t, err)
}

func TestFamilyTable(t *testing.T) {
	assert.Equal(t, "user_session_durations", FamilyTable(types.FamilySessionDuration))
	assert.Equal(t, "user_session_gaps", FamilyTable(types.FamilyInterSessionGap))
	assert.Equal(t, "user_event_gaps", FamilyTable(types.FamilyIntraSessionGap))
}

func TestWriter_LocalFailureNotRetryable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := NewWriter(filepath.Join(blocker, "results"), nil).Write(context.Background(), sampleResults(t))
	require.Error(t, err)
	assert.Equal(t, sderrors.CodeWriteFailed, sderrors.GetCode(err))
	assert.False(t, sderrors.IsRetryable(err))
}
