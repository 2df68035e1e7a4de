// Package unify merges the typed source tables into one canonical event
// sequence.
package unify

import (
	"fmt"

	sderrors "github.com/sitdown/sitdown/internal/errors"
	"github.com/sitdown/sitdown/pkg/types"
)

// Source describes one typed input table.
type Source struct {
	// EventType is the label stamped on every event of this table
	EventType string

	// Table holds the rows; it is never modified
	Table *types.Table

	// PrimaryAttribute names the column that becomes the event value.
	// Empty means the type has no salient attribute and values are nil.
	PrimaryAttribute string
}

// HasAttribute reports whether the source carries a primary attribute.
func (s Source) HasAttribute() bool {
	return s.PrimaryAttribute != ""
}

// DefaultAttributes returns the primary attribute of each standard event
// type. Search events carry none.
func DefaultAttributes() map[string]string {
	return map[string]string{
		types.EventTypeUser:     "HTTP_USER_AGENT",
		types.EventTypeListing:  "listingId",
		types.EventTypeGAEvent:  "name",
		types.EventTypePageview: "url",
		types.EventTypeSearch:   "",
		types.EventTypeLead:     "lead_source",
	}
}

// Unify concatenates every row of every source, in slice order, into one
// event sequence. The result is freshly allocated and not sorted.
func Unify(sources []Source) ([]types.Event, error) {
	total := 0
	for _, src := range sources {
		total += src.Table.Len()
	}
	events := make([]types.Event, 0, total)

	for _, src := range sources {
		var err error
		events, err = appendSource(events, src)
		if err != nil {
			return nil, err
		}
	}
	return events, nil
}

// Counts returns the number of events per type.
func Counts(events []types.Event) map[string]int {
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.EventType]++
	}
	return counts
}

func appendSource(events []types.Event, src Source) ([]types.Event, error) {
	if src.Table == nil {
		return nil, fmt.Errorf("unify: source %q has no table", src.EventType)
	}
	tbl := src.Table

	userCol, ok := tbl.ColumnIndex(types.ColumnUserID)
	if !ok {
		return nil, sderrors.NewMissingColumnError(tbl.Name, types.ColumnUserID)
	}
	tsCol, ok := tbl.ColumnIndex(types.ColumnTimestamp)
	if !ok {
		return nil, sderrors.NewMissingColumnError(tbl.Name, types.ColumnTimestamp)
	}
	attrCol := -1
	if src.HasAttribute() {
		attrCol, ok = tbl.ColumnIndex(src.PrimaryAttribute)
		if !ok {
			return nil, sderrors.NewMissingColumnError(tbl.Name, src.PrimaryAttribute)
		}
	}

	prefix := src.EventType + ":"
	for i := range tbl.Rows {
		rawUser := tbl.Value(i, userCol)
		if rawUser == nil {
			return nil, sderrors.NewInvalidValueError(tbl.Name, types.ColumnUserID, i, fmt.Errorf("null user_id"))
		}

		ts, err := DecodeTimestamp(tbl.Value(i, tsCol))
		if err != nil {
			return nil, sderrors.NewInvalidValueError(tbl.Name, types.ColumnTimestamp, i, err)
		}

		ev := types.Event{
			UserID:    CastString(rawUser),
			Timestamp: ts,
			EventType: src.EventType,
		}
		if attrCol >= 0 {
			v := prefix + CastString(tbl.Value(i, attrCol))
			ev.Value = &v
		}
		events = append(events, ev)
	}
	return events, nil
}
