// Package types provides the core data types for sitdown session analytics.
package types

import "time"

// Standard event type labels, one per source dataset.
const (
	EventTypeUser     = "user"
	EventTypeListing  = "listing"
	EventTypeGAEvent  = "ga_event"
	EventTypePageview = "pageview"
	EventTypeSearch   = "search"
	EventTypeLead     = "lead"
)

// StandardEventTypes lists the six source datasets in canonical order.
var StandardEventTypes = []string{
	EventTypeUser,
	EventTypeListing,
	EventTypeGAEvent,
	EventTypePageview,
	EventTypeSearch,
	EventTypeLead,
}

// Column names every source table must expose.
const (
	ColumnUserID    = "user_id"
	ColumnTimestamp = "timestamp"
)

// SentinelIdle is the gap assigned to the first row of a timeline. It is
// larger than any real gap so that row always opens a session.
const SentinelIdle = 1_000_000 * time.Hour

// Event is one atomic user action.
type Event struct {
	// UserID is an opaque identifier, possibly already hashed
	UserID string `json:"user_id"`

	// Timestamp is when the action happened
	Timestamp time.Time `json:"timestamp"`

	// EventType is one of the source labels (e.g. "pageview")
	EventType string `json:"event_type"`

	// Value is "{event_type}:{primary_attribute}", nil when the type has none
	Value *string `json:"event_value"`
}

// ValueString returns the event value or the empty string when it is nil.
func (e Event) ValueString() string {
	if e.Value == nil {
		return ""
	}
	return *e.Value
}

// TimelineRow is an Event augmented with the segmentation fields.
type TimelineRow struct {
	Event

	// TDiff is the gap to the previous row of the whole sorted sequence
	TDiff time.Duration `json:"t_diff"`

	// SameUserAsPrev is true when the previous row has the same user
	SameUserAsPrev bool `json:"same_user_as_prev"`

	// WithinIdleThreshold is true when TDiff <= idle threshold
	WithinIdleThreshold bool `json:"within_idle_threshold"`

	// DeltaT is TDiff inside a session and zero on a boundary row
	DeltaT time.Duration `json:"delta_t"`

	// SessionBoundary marks the first row of a sitdown session
	SessionBoundary bool `json:"session_boundary"`

	// SessionOrdinal is the 1-based per-user session counter
	SessionOrdinal int `json:"session_ordinal"`

	// SessionID is "{user_id}_{ordinal}"
	SessionID string `json:"sitdown_session_id"`
}

// Timeline is the segmented event sequence.
type Timeline struct {
	IdleThreshold time.Duration
	Rows          []TimelineRow
}

// Len returns the number of rows.
func (t *Timeline) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}
