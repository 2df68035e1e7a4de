package types

import "time"

// Session is the reduced view of one sitdown session.
type Session struct {
	SessionID string `json:"sitdown_session_id"`
	UserID    string `json:"user_id"`
	Ordinal   int    `json:"ordinal"`

	NEvents int       `json:"n_events"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`

	// Duration is End - Start
	Duration      time.Duration `json:"duration"`
	DurationHours float64       `json:"duration_in_hours"`
	DurationRepr  string        `json:"duration_repr"`

	// EventTypeCounts counts distinct (event_type, event_value) pairs per type.
	// Every type of the owning SessionTable has an entry, zero when absent.
	EventTypeCounts map[string]int `json:"event_type_counts"`

	DeltaTMedian     time.Duration `json:"delta_t_median"`
	DeltaTMedianRepr string        `json:"delta_t_median_repr"`
}

// SessionTable holds one Session per sitdown session id.
type SessionTable struct {
	// EventTypes is the sorted set of event types seen in the timeline
	EventTypes []string `json:"event_types"`

	// Sessions are ordered by first appearance in the timeline
	Sessions []Session `json:"sessions"`
}

// Len returns the number of sessions.
func (s *SessionTable) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Sessions)
}

// Lookup returns the session with the given id.
func (s *SessionTable) Lookup(sessionID string) (Session, bool) {
	if s == nil {
		return Session{}, false
	}
	for _, sess := range s.Sessions {
		if sess.SessionID == sessionID {
			return sess, true
		}
	}
	return Session{}, false
}
