package streak

import "time"

const (
	// DefaultActivityThreshold is the minimum number of hands that counts a
	// day towards a streak.
	DefaultActivityThreshold = 100
	// DefaultMilestoneInterval spaces wheel milestones every seven days.
	DefaultMilestoneInterval = 7
	// DefaultMilestoneCap bounds the number of wheels (7, 14, ... 70).
	DefaultMilestoneCap = 10
	// DefaultSignificantLoss is the smallest lost streak surfaced in detail.
	DefaultSignificantLoss = 4
	// DefaultProposalTTL bounds how long an override proposal stays confirmable.
	DefaultProposalTTL = 15 * time.Minute
)

// LossClass buckets a lost streak for reporting.
type LossClass int

const (
	// LossNone means no streak was lost.
	LossNone LossClass = iota
	// LossMinor is a lost streak below the significant threshold.
	LossMinor
	// LossSignificant is a lost streak at or above the significant threshold.
	LossSignificant
)

func (c LossClass) String() string {
	switch c {
	case LossMinor:
		return "minor"
	case LossSignificant:
		return "significant"
	default:
		return "none"
	}
}

// Params carries the tunables of a processing run. Zero values fall back to
// the package defaults.
type Params struct {
	ActivityThreshold int64 `json:"activity_threshold" yaml:"activity_threshold" toml:"activity_threshold"`
	MilestoneInterval int64 `json:"milestone_interval" yaml:"milestone_interval" toml:"milestone_interval"`
	MilestoneCap      int64 `json:"milestone_cap" yaml:"milestone_cap" toml:"milestone_cap"`
	SignificantLoss   int64 `json:"significant_loss" yaml:"significant_loss" toml:"significant_loss"`
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{}.Normalize()
}

// Normalize replaces non-positive fields with their defaults.
func (p Params) Normalize() Params {
	if p.ActivityThreshold <= 0 {
		p.ActivityThreshold = DefaultActivityThreshold
	}
	if p.MilestoneInterval <= 0 {
		p.MilestoneInterval = DefaultMilestoneInterval
	}
	if p.MilestoneCap <= 0 {
		p.MilestoneCap = DefaultMilestoneCap
	}
	if p.SignificantLoss <= 0 {
		p.SignificantLoss = DefaultSignificantLoss
	}
	return p
}

// Qualifies reports whether the hands played meet the activity threshold.
func (p Params) Qualifies(hands int64) bool {
	return hands >= p.ActivityThreshold
}

// MilestoneIndex maps a freshly incremented streak to its wheel number.
func (p Params) MilestoneIndex(streak int64) (int64, bool) {
	if streak <= 0 || p.MilestoneInterval <= 0 || streak%p.MilestoneInterval != 0 {
		return 0, false
	}
	index := streak / p.MilestoneInterval
	if index > p.MilestoneCap {
		return 0, false
	}
	return index, true
}

// LossClass classifies a streak that was just lost.
func (p Params) LossClass(lost int64) LossClass {
	switch {
	case lost <= 0:
		return LossNone
	case lost >= p.SignificantLoss:
		return LossSignificant
	default:
		return LossMinor
	}
}
