package sessionize

import (
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sitdown/sitdown/pkg/types"
)

var propertyUsers = []string{"u_a", "u_b", "u_c", "u_d"}

// buildSortedEvents turns generated (user, offset-seconds) pairs into a
// (user, timestamp) sorted event slice.
func buildSortedEvents(users []int, offsets []int64) []types.Event {
	n := len(users)
	if len(offsets) < n {
		n = len(offsets)
	}
	events := make([]types.Event, n)
	for i := 0; i < n; i++ {
		events[i] = types.Event{
			UserID:    propertyUsers[users[i]%len(propertyUsers)],
			Timestamp: t0.Add(time.Duration(offsets[i]) * time.Second),
			EventType: types.EventTypeSearch,
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].UserID != events[j].UserID {
			return events[i].UserID < events[j].UserID
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events
}

func propertyParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	return parameters
}

// TestProperty_SegmentIdempotent checks that segmenting the same sorted
// input twice yields identical session ids, gaps and deltas.
func TestProperty_SegmentIdempotent(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("segmentation is deterministic", prop.ForAll(
		func(users []int, offsets []int64) bool {
			events := buildSortedEvents(users, offsets)
			seg := NewSegmenter(DefaultIdleThreshold)
			return reflect.DeepEqual(seg.Segment(events).Rows, seg.Segment(events).Rows)
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.SliceOf(gen.Int64Range(0, 4*3600)),
	))

	properties.TestingRun(t)
}

// TestProperty_SessionsPartitionUsers checks that each user's rows fall into
// contiguous session groups numbered 1, 2, 3, ... in row order, and that
// groups are split exactly where the idle threshold is exceeded.
func TestProperty_SessionsPartitionUsers(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("session ordinals are contiguous per user", prop.ForAll(
		func(users []int, offsets []int64) bool {
			events := buildSortedEvents(users, offsets)
			tl := NewSegmenter(DefaultIdleThreshold).Segment(events)

			last := make(map[string]int)
			for i, row := range tl.Rows {
				prevOrdinal := last[row.UserID]
				switch {
				case row.SessionBoundary && row.SessionOrdinal != prevOrdinal+1:
					return false
				case !row.SessionBoundary && row.SessionOrdinal != prevOrdinal:
					return false
				}
				if row.SessionID != FormatSessionID(row.UserID, row.SessionOrdinal) {
					return false
				}
				if i > 0 && tl.Rows[i-1].UserID == row.UserID {
					gap := row.Timestamp.Sub(tl.Rows[i-1].Timestamp)
					if row.SessionBoundary != (gap > DefaultIdleThreshold) {
						return false
					}
				}
				last[row.UserID] = row.SessionOrdinal
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.SliceOf(gen.Int64Range(0, 4*3600)),
	))

	properties.Property("delta_t is zero exactly on boundaries", prop.ForAll(
		func(users []int, offsets []int64) bool {
			tl := NewSegmenter(DefaultIdleThreshold).Segment(buildSortedEvents(users, offsets))
			for _, row := range tl.Rows {
				if row.SessionBoundary && row.DeltaT != 0 {
					return false
				}
				if !row.SessionBoundary && row.DeltaT != row.TDiff {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.SliceOf(gen.Int64Range(0, 4*3600)),
	))

	properties.TestingRun(t)
}

// TestProperty_ParallelEqualsSequential checks that sharding users across
// workers changes nothing in the output.
func TestProperty_ParallelEqualsSequential(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("parallel segmentation matches sequential", prop.ForAll(
		func(users []int, offsets []int64, workers int) bool {
			events := buildSortedEvents(users, offsets)
			seq := NewSegmenter(DefaultIdleThreshold).Segment(events)
			par := NewSegmenter(DefaultIdleThreshold, WithWorkers(workers)).Segment(events)
			return reflect.DeepEqual(seq.Rows, par.Rows)
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.SliceOf(gen.Int64Range(0, 4*3600)),
		gen.IntRange(2, 8),
	))

	properties.TestingRun(t)
}
