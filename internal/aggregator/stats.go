// Package aggregator reduces a segmented timeline into per-session records
// and per-user timing statistics.
package aggregator

import (
	"sort"
	"time"

	"github.com/sitdown/sitdown/pkg/types"
)

// Minutes converts a duration to real-valued minutes.
func Minutes(d time.Duration) float64 {
	return d.Seconds() / 60
}

// Summarize computes mean/median/max/min of values. An empty sample yields
// the zero Summary. values is not modified.
func Summarize(values []float64) types.Summary {
	if len(values) == 0 {
		return types.Summary{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return types.Summary{
		Mean:   sum / float64(len(sorted)),
		Median: medianSorted(sorted),
		Max:    sorted[len(sorted)-1],
		Min:    sorted[0],
	}
}

func medianSorted(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// MedianDuration returns the median of durations, averaging the two middle
// values for an even count. durations is not modified.
func MedianDuration(durations []time.Duration) time.Duration {
	n := len(durations)
	if n == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if n%2 == 1 {
		return sorted[n/2]
	}
	a, b := sorted[n/2-1], sorted[n/2]
	return a + (b-a)/2
}

// userSamples collects float samples per user and reduces them into a
// TimingTable ordered by user id.
type userSamples struct {
	samples map[string][]float64
}

func newUserSamples() *userSamples {
	return &userSamples{samples: make(map[string][]float64)}
}

func (u *userSamples) add(userID string, v float64) {
	u.samples[userID] = append(u.samples[userID], v)
}

func (u *userSamples) table(family types.TimingFamily) *types.TimingTable {
	users := make([]string, 0, len(u.samples))
	for user := range u.samples {
		users = append(users, user)
	}
	sort.Strings(users)

	tbl := &types.TimingTable{
		Family: family,
		Rows:   make([]types.UserTimingStat, 0, len(users)),
	}
	for _, user := range users {
		tbl.Rows = append(tbl.Rows, types.UserTimingStat{
			UserID:  user,
			Summary: Summarize(u.samples[user]),
		})
	}
	return tbl
}
