package types

// TimingFamily names one of the three user-level statistic families.
type TimingFamily string

const (
	// FamilySessionDuration is δT, the summed intra-session time per session
	FamilySessionDuration TimingFamily = "delta_T"

	// FamilyInterSessionGap is ΔT, the idle gap before a returning session
	FamilyInterSessionGap TimingFamily = "Delta_T"

	// FamilyIntraSessionGap is δt, the gap between events inside a session
	FamilyIntraSessionGap TimingFamily = "delta_t"
)

// Prefix returns the column prefix used when the family is exported
// (dT_mean, DT_mean, dt_mean, ...).
func (f TimingFamily) Prefix() string {
	switch f {
	case FamilySessionDuration:
		return "dT"
	case FamilyInterSessionGap:
		return "DT"
	case FamilyIntraSessionGap:
		return "dt"
	default:
		return string(f)
	}
}

// Summary holds mean/median/max/min of a sample, in minutes.
type Summary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
}

// UserTimingStat is one user's Summary for a family.
type UserTimingStat struct {
	UserID  string  `json:"user_id"`
	Summary Summary `json:"summary"`
}

// TimingTable is the per-user result of one family, ordered by user id.
type TimingTable struct {
	Family TimingFamily     `json:"family"`
	Rows   []UserTimingStat `json:"rows"`
}

// Get returns the summary for a user.
func (t *TimingTable) Get(userID string) (Summary, bool) {
	if t == nil {
		return Summary{}, false
	}
	for _, r := range t.Rows {
		if r.UserID == userID {
			return r.Summary, true
		}
	}
	return Summary{}, false
}
