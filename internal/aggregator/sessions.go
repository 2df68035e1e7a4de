package aggregator

import (
	"fmt"
	"sort"
	"time"

	sderrors "github.com/sitdown/sitdown/internal/errors"
	"github.com/sitdown/sitdown/pkg/types"
)

// ColumnSessionID is the timeline column sessions are grouped by.
const ColumnSessionID = "sitdown_session_id"

// span tracks the wall-clock extent of one session.
type span struct {
	userID  string
	ordinal int
	min     time.Time
	max     time.Time
	count   int
}

// eventPair is the de-duplication key for event type counts.
type eventPair struct {
	eventType string
	value     string
	null      bool
}

// AggregateSessions reduces tl to one Session per sitdown session id.
//
// Three sub-aggregates are computed independently and inner-joined on the
// session id: the timestamp span, distinct (event_type, event_value) counts,
// and the δt median. Rows lost in the join mean the grouping is broken and
// abort the run with an invariant error.
func AggregateSessions(tl *types.Timeline) (*types.SessionTable, error) {
	if err := checkTimeline(tl); err != nil {
		return nil, err
	}

	spans, order := aggregateSpans(tl)
	counts, eventTypes := aggregateEventCounts(tl)
	medians := aggregateDeltaMedians(tl)

	if len(spans) != len(counts) || len(spans) != len(medians) {
		return nil, joinMismatch(len(spans), len(counts), len(medians))
	}

	table := &types.SessionTable{
		EventTypes: eventTypes,
		Sessions:   make([]types.Session, 0, len(order)),
	}
	for _, id := range order {
		sp := spans[id]
		typeCounts, ok := counts[id]
		if !ok {
			return nil, joinMismatch(len(spans), len(counts), len(medians))
		}
		median, ok := medians[id]
		if !ok {
			return nil, joinMismatch(len(spans), len(counts), len(medians))
		}

		filled := make(map[string]int, len(eventTypes))
		for _, et := range eventTypes {
			filled[et] = typeCounts[et]
		}

		duration := sp.max.Sub(sp.min)
		table.Sessions = append(table.Sessions, types.Session{
			SessionID:        id,
			UserID:           sp.userID,
			Ordinal:          sp.ordinal,
			NEvents:          sp.count,
			Start:            sp.min,
			End:              sp.max,
			Duration:         duration,
			DurationHours:    duration.Seconds() / 3600,
			DurationRepr:     FormatDuration(duration),
			EventTypeCounts:  filled,
			DeltaTMedian:     median,
			DeltaTMedianRepr: FormatDuration(median),
		})
	}

	if len(table.Sessions) != len(spans) {
		return nil, joinMismatch(len(spans), len(counts), len(medians))
	}
	return table, nil
}

// checkTimeline fails fast when the timeline lacks the grouping column.
func checkTimeline(tl *types.Timeline) error {
	if tl == nil {
		return sderrors.NewMissingColumnError("timeline", ColumnSessionID)
	}
	for i, row := range tl.Rows {
		if row.SessionID == "" {
			return sderrors.NewInvalidValueError("timeline", ColumnSessionID, i,
				fmt.Errorf("row has no session id; segment the events first"))
		}
	}
	return nil
}

func joinMismatch(spans, counts, medians int) error {
	return sderrors.NewInvariantError(sderrors.CodeJoinMismatch,
		fmt.Sprintf("session sub-aggregates disagree: %d spans, %d count groups, %d medians", spans, counts, medians)).
		WithDetails(map[string]interface{}{"spans": spans, "counts": counts, "medians": medians})
}

// aggregateSpans returns min/max/count per session and the session ids in
// order of first appearance.
func aggregateSpans(tl *types.Timeline) (map[string]*span, []string) {
	spans := make(map[string]*span)
	var order []string

	for _, row := range tl.Rows {
		sp, ok := spans[row.SessionID]
		if !ok {
			sp = &span{
				userID:  row.UserID,
				ordinal: row.SessionOrdinal,
				min:     row.Timestamp,
				max:     row.Timestamp,
			}
			spans[row.SessionID] = sp
			order = append(order, row.SessionID)
		}
		if row.Timestamp.Before(sp.min) {
			sp.min = row.Timestamp
		}
		if row.Timestamp.After(sp.max) {
			sp.max = row.Timestamp
		}
		sp.count++
	}
	return spans, order
}

// aggregateEventCounts counts distinct (event_type, event_value) pairs per
// session, grouped by event type. Repeated identical pairs count once.
// It also returns the sorted set of event types seen.
func aggregateEventCounts(tl *types.Timeline) (map[string]map[string]int, []string) {
	seen := make(map[string]map[eventPair]struct{})
	counts := make(map[string]map[string]int)
	typeSet := make(map[string]struct{})

	for _, row := range tl.Rows {
		pairs, ok := seen[row.SessionID]
		if !ok {
			pairs = make(map[eventPair]struct{})
			seen[row.SessionID] = pairs
			counts[row.SessionID] = make(map[string]int)
		}

		key := eventPair{eventType: row.EventType, value: row.ValueString(), null: row.Value == nil}
		if _, dup := pairs[key]; dup {
			continue
		}
		pairs[key] = struct{}{}
		counts[row.SessionID][row.EventType]++
		typeSet[row.EventType] = struct{}{}
	}

	eventTypes := make([]string, 0, len(typeSet))
	for et := range typeSet {
		eventTypes = append(eventTypes, et)
	}
	sort.Strings(eventTypes)
	return counts, eventTypes
}

// aggregateDeltaMedians takes the median of raw δt values per session.
func aggregateDeltaMedians(tl *types.Timeline) map[string]time.Duration {
	deltas := make(map[string][]time.Duration)
	for _, row := range tl.Rows {
		deltas[row.SessionID] = append(deltas[row.SessionID], row.DeltaT)
	}

	medians := make(map[string]time.Duration, len(deltas))
	for id, ds := range deltas {
		medians[id] = MedianDuration(ds)
	}
	return medians
}
