package manifest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sderrors "github.com/sitdown/sitdown/internal/errors"
)

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	c, err := NewCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCatalog_RegisterAndComplete(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	runID, err := c.RegisterRun(ctx, "/data/events.db", 30*time.Minute)
	require.NoError(t, err)
	_, err = uuid.Parse(runID)
	require.NoError(t, err, "run ids are UUIDs")

	rec, err := c.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.Equal(t, "/data/events.db", rec.SourcePath)
	assert.Equal(t, 30*time.Minute, rec.IdleThreshold)
	assert.Nil(t, rec.FinishedAt)

	stats := RunStats{
		EventCount:   120,
		TimelineRows: 120,
		SessionCount: 14,
		UserCount:    5,
		ObjectPath:   "sitdown/" + runID + "/results.sqlite",
		SizeBytes:    4096,
	}
	require.NoError(t, c.CompleteRun(ctx, runID, stats))

	rec, err = c.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, stats, rec.Stats)
	assert.NotNil(t, rec.FinishedAt)
	assert.Empty(t, rec.Error)
}

func TestCatalog_FailRun(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	runID, err := c.RegisterRun(ctx, "/data/events.db", time.Hour)
	require.NoError(t, err)
	require.NoError(t, c.FailRun(ctx, runID, errors.New("table lead not found")))

	rec, err := c.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "table lead not found", rec.Error)
	assert.Empty(t, rec.Stats.ObjectPath)
}

func TestCatalog_UnknownRun(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	_, err := c.GetRun(ctx, "missing")
	assert.Equal(t, sderrors.CodeRunNotFound, sderrors.GetCode(err))

	err = c.CompleteRun(ctx, "missing", RunStats{})
	assert.Equal(t, sderrors.CodeRunNotFound, sderrors.GetCode(err))

	err = c.FailRun(ctx, "missing", nil)
	assert.Equal(t, sderrors.CodeRunNotFound, sderrors.GetCode(err))
}

func TestCatalog_ListRuns(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := c.RegisterRun(ctx, "src", time.Minute)
		require.NoError(t, err)
		ids = append(ids, id)
		clock = clock.Add(time.Hour)
	}

	runs, err := c.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].RunID, "newest first")
	assert.Equal(t, ids[0], runs[2].RunID)

	runs, err = c.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestCatalog_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	c, err := NewCatalog(path)
	require.NoError(t, err)
	runID, err := c.RegisterRun(ctx, "src", time.Minute)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = NewCatalog(path)
	require.NoError(t, err)
	defer c.Close()
	rec, err := c.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, runID, rec.RunID)
}

func TestCatalog_FailureNotRetryable(t *testing.T) {
	c, err := NewCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.ListRuns(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, sderrors.CodeCatalogFailed, sderrors.GetCode(err))
	assert.False(t, sderrors.IsRetryable(err))
}
