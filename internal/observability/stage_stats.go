package observability

import (
	"sort"
	"sync"
	"time"
)

// StageStats tracks how long each pipeline stage took during a run.
type StageStats struct {
	mu     sync.RWMutex
	stages map[string]*StageTiming
	seq    int
}

// StageTiming holds the accumulated timing of one stage.
type StageTiming struct {
	Stage    string
	Total    time.Duration
	Calls    int
	LastSeen time.Time
	order    int
}

// NewStageStats creates an empty tracker.
func NewStageStats() *StageStats {
	return &StageStats{stages: make(map[string]*StageTiming)}
}

// Record adds one observation of stage. This method is thread-safe.
func (s *StageStats) Record(stage string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stages[stage]
	if !ok {
		st = &StageTiming{Stage: stage, order: s.seq}
		s.seq++
		s.stages[stage] = st
	}
	st.Total += d
	st.Calls++
	st.LastSeen = time.Now()
}

// Time runs fn and records its duration under stage.
func (s *StageStats) Time(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.Record(stage, time.Since(start))
	return err
}

// Stages returns a copy of every stage in first-recorded order.
func (s *StageStats) Stages() []StageTiming {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]StageTiming, 0, len(s.stages))
	for _, st := range s.stages {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// Slowest returns up to n stages ordered by total duration, descending.
func (s *StageStats) Slowest(n int) []StageTiming {
	all := s.Stages()
	sort.SliceStable(all, func(i, j int) bool { return all[i].Total > all[j].Total })
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// Total returns the sum over all stages.
func (s *StageStats) Total() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total time.Duration
	for _, st := range s.stages {
		total += st.Total
	}
	return total
}
