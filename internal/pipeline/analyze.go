// Package pipeline runs an analysis end to end: load, unify, segment,
// aggregate, export, and record.
package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/sitdown/sitdown/internal/aggregator"
	"github.com/sitdown/sitdown/internal/sessionize"
	"github.com/sitdown/sitdown/internal/unify"
	"github.com/sitdown/sitdown/pkg/types"
)

// Options configures the analysis stages.
type Options struct {
	// IdleThreshold bounds the gap inside a session (inclusive)
	IdleThreshold time.Duration
	// Workers is the number of segmentation shards
	Workers int
	// Logger receives segmenter debug output
	Logger *zap.Logger
}

// Analysis is the in-memory result of the analysis stages.
type Analysis struct {
	Events      int
	EventCounts map[string]int
	Users       int
	Timeline    *types.Timeline
	Sessions    *types.SessionTable
	Timings     *aggregator.Timings
}

// Analyze unifies sources, orders the events, segments them into sessions
// and computes the session table and timing families. Sources are not
// modified.
func Analyze(sources []unify.Source, opts Options) (*Analysis, error) {
	events, err := unify.Unify(sources)
	if err != nil {
		return nil, err
	}
	return AnalyzeEvents(events, opts)
}

// AnalyzeEvents runs the stages after unification. events need not be
// sorted; they are only copied when they are not. events is never modified.
func AnalyzeEvents(events []types.Event, opts Options) (*Analysis, error) {
	sorted := events
	if !unify.IsSorted(events) {
		sorted = unify.SortEvents(events)
	}

	seg := sessionize.NewSegmenter(opts.IdleThreshold,
		sessionize.WithWorkers(opts.Workers),
		sessionize.WithLogger(opts.Logger))
	tl := seg.Segment(sorted)

	sessions, err := aggregator.AggregateSessions(tl)
	if err != nil {
		return nil, err
	}

	return &Analysis{
		Events:      len(sorted),
		EventCounts: unify.Counts(sorted),
		Users:       countUsers(sorted),
		Timeline:    tl,
		Sessions:    sessions,
		Timings:     aggregator.ComputeTimings(tl),
	}, nil
}

func countUsers(events []types.Event) int {
	users := make(map[string]struct{})
	for _, e := range events {
		users[e.UserID] = struct{}{}
	}
	return len(users)
}
