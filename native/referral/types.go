package referral

import (
	"fmt"
	"time"
)

// BonusThreshold is the cumulative hands a referred player needs before the
// referrer earns a bonus.
const BonusThreshold = 250

// Entry tracks one referred player. BonusSentAt is zero until the bonus has
// been emitted.
type Entry struct {
	ReferredPlayer string    `json:"referred_player"`
	HandsPlayed    int64     `json:"hands_played"`
	ReferrerPlayer string    `json:"referrer_player"`
	BonusSent      bool      `json:"bonus_sent"`
	BonusSentAt    time.Time `json:"bonus_sent_at,omitempty"`
}

// BonusEvent is emitted once per entry when its bonus becomes due.
type BonusEvent struct {
	ReferredPlayer string    `json:"referred_player"`
	ReferrerPlayer string    `json:"referrer_player"`
	HandsPlayed    int64     `json:"hands_played"`
	SentAt         time.Time `json:"sent_at"`
	// CatchUp marks a bonus for an entry that was already past the threshold
	// before today's activity.
	CatchUp bool `json:"catch_up"`
}

// Message renders the operator-facing bonus line.
func (e BonusEvent) Message() string {
	return fmt.Sprintf("%s hit %d hands milestone! %s should receive a referral bonus!", e.ReferredPlayer, BonusThreshold, e.ReferrerPlayer)
}

// Standing is the lookup projection of a single referral.
type Standing struct {
	ReferredPlayer string `json:"referred_player"`
	HandsPlayed    int64  `json:"hands_played"`
	BonusReceived  bool   `json:"bonus_received"`
	HandsToBonus   int64  `json:"hands_to_bonus"`
}

// Summary groups every referral made by one referrer.
type Summary struct {
	Referrer       string     `json:"referrer"`
	Referrals      []Standing `json:"referrals"`
	BonusesEarned  int        `json:"bonuses_earned"`
	TotalReferrals int        `json:"total_referrals"`
}
