// Package sessionize splits a user-ordered event sequence into sitdown
// sessions: maximal runs of one user's events no more than an idle
// threshold apart.
package sessionize

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	sderrors "github.com/sitdown/sitdown/internal/errors"
	"github.com/sitdown/sitdown/internal/logging"
	"github.com/sitdown/sitdown/pkg/types"
)

// DefaultIdleThreshold is the idle gap that ends a sitdown session.
const DefaultIdleThreshold = 30 * time.Minute

// Segmenter assigns sitdown session ids to a sorted event sequence.
type Segmenter struct {
	idle    time.Duration
	workers int
	logger  *zap.Logger
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithWorkers segments with n parallel workers, one per user shard.
// The output is identical to the sequential result.
func WithWorkers(n int) Option {
	return func(s *Segmenter) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Segmenter) {
		s.logger = logging.OrNop(l)
	}
}

// NewSegmenter creates a segmenter. A non-positive idle threshold falls back
// to DefaultIdleThreshold.
func NewSegmenter(idle time.Duration, opts ...Option) *Segmenter {
	if idle <= 0 {
		idle = DefaultIdleThreshold
	}
	s := &Segmenter{
		idle:    idle,
		workers: 1,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IdleThreshold returns the configured idle threshold.
func (s *Segmenter) IdleThreshold() time.Duration {
	return s.idle
}

// Segment builds the timeline for events.
//
// events must already be sorted by (UserID, Timestamp); Segment does not
// sort. Gaps are measured against the previous row of the whole sequence,
// so a user switch always opens a session, as does a gap above the idle
// threshold. The input slice is only read.
func (s *Segmenter) Segment(events []types.Event) *types.Timeline {
	tl := &types.Timeline{
		IdleThreshold: s.idle,
		Rows:          make([]types.TimelineRow, len(events)),
	}
	if len(events) == 0 {
		return tl
	}

	if s.workers <= 1 {
		s.segmentShard(events, nil, tl.Rows)
	} else {
		router := NewRouter(s.workers)
		parts := router.Partition(func(i int) string { return events[i].UserID }, len(events))

		var wg sync.WaitGroup
		for _, idx := range parts {
			if len(idx) == 0 {
				continue
			}
			wg.Add(1)
			go func(idx []int) {
				defer wg.Done()
				s.segmentShard(events, idx, tl.Rows)
			}(idx)
		}
		wg.Wait()
	}

	s.logger.Debug("segmented timeline",
		zap.Int("rows", len(tl.Rows)),
		zap.Int("workers", s.workers),
		zap.Duration("idle_threshold", s.idle))
	return tl
}

// segmentShard fills out[i] for every index in idx (all indices when idx is
// nil). Every user of the shard is fully contained in it, so the per-user
// ordinals kept here match a single sequential pass.
func (s *Segmenter) segmentShard(events []types.Event, idx []int, out []types.TimelineRow) {
	open := make(map[string]int)

	step := func(i int) {
		var prev *types.Event
		if i > 0 {
			prev = &events[i-1]
		}
		out[i] = s.segmentRow(prev, events[i], open)
	}

	if idx == nil {
		for i := range events {
			step(i)
		}
		return
	}
	for _, i := range idx {
		step(i)
	}
}

// segmentRow derives the timeline fields of cur from its predecessor in the
// sorted sequence. open maps user id to the current session ordinal.
func (s *Segmenter) segmentRow(prev *types.Event, cur types.Event, open map[string]int) types.TimelineRow {
	row := types.TimelineRow{Event: cur, TDiff: types.SentinelIdle}
	if prev != nil {
		row.TDiff = cur.Timestamp.Sub(prev.Timestamp)
		row.SameUserAsPrev = cur.UserID == prev.UserID
	}
	row.WithinIdleThreshold = row.TDiff <= s.idle

	continues := row.SameUserAsPrev && row.WithinIdleThreshold
	if continues {
		row.DeltaT = row.TDiff
	}
	row.SessionBoundary = !continues
	if row.SessionBoundary {
		open[cur.UserID]++
	}

	row.SessionOrdinal = open[cur.UserID]
	row.SessionID = FormatSessionID(cur.UserID, row.SessionOrdinal)
	return row
}

// FormatSessionID builds "{userID}_{ordinal}".
func FormatSessionID(userID string, ordinal int) string {
	return userID + "_" + strconv.Itoa(ordinal)
}

// ParseSessionID splits a session id at its last underscore. User ids may
// contain underscores themselves.
func ParseSessionID(sessionID string) (string, int, error) {
	i := strings.LastIndex(sessionID, "_")
	if i < 0 {
		return "", 0, sderrors.NewIDMapError(sderrors.CodeInvalidSessionID,
			fmt.Sprintf("session id %q has no ordinal suffix", sessionID), nil)
	}
	ordinal, err := strconv.Atoi(sessionID[i+1:])
	if err != nil {
		return "", 0, sderrors.NewIDMapError(sderrors.CodeInvalidSessionID,
			fmt.Sprintf("session id %q has a non-numeric ordinal", sessionID), err)
	}
	return sessionID[:i], ordinal, nil
}
