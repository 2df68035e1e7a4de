package unify

import (
	"sort"
	"time"

	sderrors "github.com/sitdown/sitdown/internal/errors"
	"github.com/sitdown/sitdown/pkg/types"
)

// AlignLatest truncates every table to the earliest of the per-table latest
// timestamps, so all sources cover the same period. Rows later than the
// cutoff are dropped. Empty tables are skipped when computing the cutoff.
// The inputs are not modified; the returned tables share no row slices with
// them.
func AlignLatest(tables []*types.Table) ([]*types.Table, time.Time, error) {
	var cutoff time.Time
	found := false

	for _, tbl := range tables {
		latest, ok, err := latestTimestamp(tbl)
		if err != nil {
			return nil, time.Time{}, err
		}
		if !ok {
			continue
		}
		if !found || latest.Before(cutoff) {
			cutoff = latest
			found = true
		}
	}

	out := make([]*types.Table, len(tables))
	for i, tbl := range tables {
		out[i] = truncateAfter(tbl, cutoff, found)
	}
	return out, cutoff, nil
}

func latestTimestamp(tbl *types.Table) (time.Time, bool, error) {
	if tbl.Len() == 0 {
		return time.Time{}, false, nil
	}
	col, ok := tbl.ColumnIndex(types.ColumnTimestamp)
	if !ok {
		return time.Time{}, false, sderrors.NewMissingColumnError(tbl.Name, types.ColumnTimestamp)
	}

	var latest time.Time
	for i := range tbl.Rows {
		ts, err := DecodeTimestamp(tbl.Value(i, col))
		if err != nil {
			return time.Time{}, false, sderrors.NewInvalidValueError(tbl.Name, types.ColumnTimestamp, i, err)
		}
		if i == 0 || ts.After(latest) {
			latest = ts
		}
	}
	return latest, true, nil
}

// truncateAfter copies tbl without rows later than cutoff. Timestamps were
// validated by latestTimestamp, so decode errors cannot happen here.
func truncateAfter(tbl *types.Table, cutoff time.Time, apply bool) *types.Table {
	out := &types.Table{
		Name:    tbl.Name,
		Columns: append([]string(nil), tbl.Columns...),
		Rows:    make([][]interface{}, 0, tbl.Len()),
	}
	col, hasTS := tbl.ColumnIndex(types.ColumnTimestamp)
	for i, row := range tbl.Rows {
		if apply && hasTS {
			if ts, err := DecodeTimestamp(tbl.Value(i, col)); err == nil && ts.After(cutoff) {
				continue
			}
		}
		out.Rows = append(out.Rows, append([]interface{}(nil), row...))
	}
	return out
}

// SortEvents returns a copy of events stably sorted by (UserID, Timestamp).
// Segmentation requires this order; ties keep their input order.
func SortEvents(events []types.Event) []types.Event {
	sorted := make([]types.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].UserID != sorted[j].UserID {
			return sorted[i].UserID < sorted[j].UserID
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// IsSorted reports whether events are already in (UserID, Timestamp) order.
func IsSorted(events []types.Event) bool {
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if cur.UserID < prev.UserID {
			return false
		}
		if cur.UserID == prev.UserID && cur.Timestamp.Before(prev.Timestamp) {
			return false
		}
	}
	return true
}
