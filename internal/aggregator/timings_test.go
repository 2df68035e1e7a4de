package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitdown/sitdown/pkg/types"
)

// twoUsers: a has sessions {0,10,20} and {80,85}, then {200}; b has {0,3}.
func twoUsers() *types.Timeline {
	return segment(
		event("a", 0, "search", nil),
		event("a", 10, "search", nil),
		event("a", 20, "search", nil),
		event("a", 80, "search", nil),
		event("a", 85, "search", nil),
		event("a", 200, "search", nil),
		event("b", 0, "search", nil),
		event("b", 3, "search", nil),
	)
}

func TestSessionDurationStats(t *testing.T) {
	tbl := SessionDurationStats(twoUsers())
	assert.Equal(t, types.FamilySessionDuration, tbl.Family)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "a", tbl.Rows[0].UserID)
	assert.Equal(t, "b", tbl.Rows[1].UserID)

	// a: session sums 20, 5, 0 minutes
	a, ok := tbl.Get("a")
	require.True(t, ok)
	assert.InDelta(t, 25.0/3, a.Mean, 1e-9)
	assert.InDelta(t, 5, a.Median, 1e-9)
	assert.InDelta(t, 20, a.Max, 1e-9)
	assert.InDelta(t, 0, a.Min, 1e-9)

	b, _ := tbl.Get("b")
	assert.Equal(t, types.Summary{Mean: 3, Median: 3, Max: 3, Min: 3}, b)
}

func TestInterSessionGapStats(t *testing.T) {
	tbl := InterSessionGapStats(twoUsers())
	assert.Equal(t, types.FamilyInterSessionGap, tbl.Family)

	// only a returns; gaps 60 and 115 minutes. b never returns.
	require.Len(t, tbl.Rows, 1)
	a, ok := tbl.Get("a")
	require.True(t, ok)
	assert.InDelta(t, 87.5, a.Mean, 1e-9)
	assert.InDelta(t, 87.5, a.Median, 1e-9)
	assert.InDelta(t, 115, a.Max, 1e-9)
	assert.InDelta(t, 60, a.Min, 1e-9)

	_, ok = tbl.Get("b")
	assert.False(t, ok, "a user's first session has no preceding gap")
}

func TestIntraSessionGapStats(t *testing.T) {
	tbl := IntraSessionGapStats(twoUsers())
	assert.Equal(t, types.FamilyIntraSessionGap, tbl.Family)

	// a: 0,10,10,0,5,0
	a, _ := tbl.Get("a")
	assert.InDelta(t, 25.0/6, a.Mean, 1e-9)
	assert.InDelta(t, 2.5, a.Median, 1e-9)
	assert.InDelta(t, 10, a.Max, 1e-9)
	assert.InDelta(t, 0, a.Min, 1e-9)

	// b: 0,3
	b, _ := tbl.Get("b")
	assert.InDelta(t, 1.5, b.Mean, 1e-9)
	assert.InDelta(t, 1.5, b.Median, 1e-9)
}

func TestComputeTimings_SubMinuteResolution(t *testing.T) {
	tl := segment(
		event("a", 0, "search", nil),
		event("a", 0.5, "search", nil),
	)
	timings := ComputeTimings(tl)
	require.Len(t, timings.Tables(), 3)

	dt, _ := timings.IntraSession.Get("a")
	assert.InDelta(t, 0.5, dt.Max, 1e-12, "no integer truncation of minutes")
}

func TestComputeTimings_Empty(t *testing.T) {
	timings := ComputeTimings(segment())
	for _, tbl := range timings.Tables() {
		assert.Empty(t, tbl.Rows)
	}
	assert.Empty(t, ComputeTimings(nil).SessionDuration.Rows)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, types.Summary{}, Summarize(nil))

	values := []float64{4, 1, 3}
	s := Summarize(values)
	assert.Equal(t, types.Summary{Mean: 8.0 / 3, Median: 3, Max: 4, Min: 1}, s)
	assert.Equal(t, []float64{4, 1, 3}, values, "input is not reordered")
}

func TestMedianDuration(t *testing.T) {
	assert.Equal(t, time.Duration(0), MedianDuration(nil))
	assert.Equal(t, 2*time.Second, MedianDuration([]time.Duration{3 * time.Second, time.Second, 2 * time.Second}))
	assert.Equal(t, 1500*time.Millisecond, MedianDuration([]time.Duration{time.Second, 2 * time.Second}))
}

func TestMinutes(t *testing.T) {
	assert.InDelta(t, 0.5, Minutes(30*time.Second), 1e-12)
	assert.InDelta(t, 90, Minutes(90*time.Minute), 1e-12)
}
