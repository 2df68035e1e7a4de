package aggregator

import (
	"github.com/sitdown/sitdown/pkg/types"
)

// Timings bundles the three per-user statistic families.
type Timings struct {
	SessionDuration *types.TimingTable // δT
	InterSession    *types.TimingTable // ΔT
	IntraSession    *types.TimingTable // δt
}

// ComputeTimings runs all three reductions over tl.
func ComputeTimings(tl *types.Timeline) *Timings {
	return &Timings{
		SessionDuration: SessionDurationStats(tl),
		InterSession:    InterSessionGapStats(tl),
		IntraSession:    IntraSessionGapStats(tl),
	}
}

// Tables returns the three tables in δT, ΔT, δt order.
func (t *Timings) Tables() []*types.TimingTable {
	return []*types.TimingTable{t.SessionDuration, t.InterSession, t.IntraSession}
}

// SessionDurationStats computes δT: δt summed within each session, then
// reduced per user. Values are minutes.
func SessionDurationStats(tl *types.Timeline) *types.TimingTable {
	type key struct{ user, session string }
	sums := make(map[key]float64)
	var order []key

	for _, row := range rows(tl) {
		k := key{row.UserID, row.SessionID}
		if _, ok := sums[k]; !ok {
			order = append(order, k)
		}
		sums[k] += Minutes(row.DeltaT)
	}

	samples := newUserSamples()
	for _, k := range order {
		samples.add(k.user, sums[k])
	}
	return samples.table(types.FamilySessionDuration)
}

// InterSessionGapStats computes ΔT: the idle gap before every session of a
// returning user. Only boundary rows that follow a row of the same user
// qualify, so a user's first session and user switches are excluded.
func InterSessionGapStats(tl *types.Timeline) *types.TimingTable {
	samples := newUserSamples()
	for _, row := range rows(tl) {
		if row.SessionBoundary && row.SameUserAsPrev {
			samples.add(row.UserID, Minutes(row.TDiff))
		}
	}
	return samples.table(types.FamilyInterSessionGap)
}

// IntraSessionGapStats computes δt: every row's δt, boundary zeros included,
// reduced per user.
func IntraSessionGapStats(tl *types.Timeline) *types.TimingTable {
	samples := newUserSamples()
	for _, row := range rows(tl) {
		samples.add(row.UserID, Minutes(row.DeltaT))
	}
	return samples.table(types.FamilyIntraSessionGap)
}

func rows(tl *types.Timeline) []types.TimelineRow {
	if tl == nil {
		return nil
	}
	return tl.Rows
}
