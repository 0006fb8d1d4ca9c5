package referral

import (
	"fmt"
	"strings"
	"time"
)

// Ledger holds the referral table keyed by referred player. Keys compare
// case-insensitively so a player cannot be registered twice under different
// spellings.
type Ledger struct {
	entries []Entry
	index   map[string]int

	duplicates int
}

// NewLedger returns an empty referral ledger.
func NewLedger() *Ledger {
	return &Ledger{index: make(map[string]int)}
}

// LoadLedger builds a ledger from stored rows. Duplicate referred players
// keep their first row; the number of discarded rows is available through
// Duplicates.
func LoadLedger(rows []Entry) *Ledger {
	l := NewLedger()
	for _, row := range rows {
		row.ReferredPlayer = strings.TrimSpace(row.ReferredPlayer)
		row.ReferrerPlayer = strings.TrimSpace(row.ReferrerPlayer)
		key := normaliseKey(row.ReferredPlayer)
		if key == "" {
			continue
		}
		if _, ok := l.index[key]; ok {
			l.duplicates++
			continue
		}
		if row.HandsPlayed < 0 {
			row.HandsPlayed = 0
		}
		if !row.BonusSent {
			row.BonusSentAt = time.Time{}
		}
		l.index[key] = len(l.entries)
		l.entries = append(l.entries, row)
	}
	return l
}

// AddReferral registers referred as brought in by referrer with the hands
// they have already played.
func (l *Ledger) AddReferral(referred string, initialHands int64, referrer string) (Entry, error) {
	referred = strings.TrimSpace(referred)
	referrer = strings.TrimSpace(referrer)
	if referred == "" || referrer == "" {
		return Entry{}, fmt.Errorf("%w: referred and referrer players are required", ErrValidation)
	}
	if initialHands < 0 {
		return Entry{}, fmt.Errorf("%w: hands played must not be negative", ErrValidation)
	}
	if normaliseKey(referred) == normaliseKey(referrer) {
		return Entry{}, fmt.Errorf("%w: %s", ErrSelfReferral, referred)
	}
	key := normaliseKey(referred)
	if _, ok := l.index[key]; ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrDuplicateReferral, referred)
	}
	entry := Entry{
		ReferredPlayer: referred,
		HandsPlayed:    initialHands,
		ReferrerPlayer: referrer,
	}
	l.index[key] = len(l.entries)
	l.entries = append(l.entries, entry)
	return entry, nil
}

// Update adds the day's hands to every referred player and returns the
// bonuses that became due. A bonus fires at most once per entry: either when
// the running total crosses BonusThreshold today, or on the first update of
// an entry that is already past it without having been flagged. Daily
// usernames match referred players ignoring case.
func (l *Ledger) Update(daily map[string]int64, now time.Time) []BonusEvent {
	hands := make(map[string]int64, len(daily))
	for name, n := range daily {
		if n > 0 {
			hands[normaliseKey(name)] += n
		}
	}
	var events []BonusEvent
	for i := range l.entries {
		entry := &l.entries[i]
		today := hands[normaliseKey(entry.ReferredPlayer)]
		previous := entry.HandsPlayed
		total := previous + today
		if !entry.BonusSent && total >= BonusThreshold {
			entry.BonusSent = true
			entry.BonusSentAt = now
			events = append(events, BonusEvent{
				ReferredPlayer: entry.ReferredPlayer,
				ReferrerPlayer: entry.ReferrerPlayer,
				HandsPlayed:    total,
				SentAt:         now,
				CatchUp:        previous >= BonusThreshold,
			})
		}
		entry.HandsPlayed = total
	}
	return events
}

// Lookup projects the referrals made by referrer. Matching ignores case.
func (l *Ledger) Lookup(referrer string) Summary {
	summary := Summary{Referrer: strings.TrimSpace(referrer), Referrals: []Standing{}}
	key := normaliseKey(referrer)
	if l == nil || key == "" {
		return summary
	}
	for _, entry := range l.entries {
		if normaliseKey(entry.ReferrerPlayer) != key {
			continue
		}
		standing := Standing{
			ReferredPlayer: entry.ReferredPlayer,
			HandsPlayed:    entry.HandsPlayed,
			BonusReceived:  entry.HandsPlayed >= BonusThreshold,
		}
		if !standing.BonusReceived {
			standing.HandsToBonus = BonusThreshold - entry.HandsPlayed
		} else {
			summary.BonusesEarned++
		}
		summary.Referrals = append(summary.Referrals, standing)
	}
	summary.TotalReferrals = len(summary.Referrals)
	return summary
}

// Get returns the entry for referred.
func (l *Ledger) Get(referred string) (Entry, bool) {
	if l == nil {
		return Entry{}, false
	}
	idx, ok := l.index[normaliseKey(referred)]
	if !ok {
		return Entry{}, false
	}
	return l.entries[idx], true
}

// Len returns the number of referral entries.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

// Entries returns a copy of the referral rows in registration order.
func (l *Ledger) Entries() []Entry {
	if l == nil {
		return nil
	}
	return append([]Entry(nil), l.entries...)
}

// Duplicates returns the number of rows discarded while loading.
func (l *Ledger) Duplicates() int {
	if l == nil {
		return 0
	}
	return l.duplicates
}

// Clone returns a deep copy without load warnings.
func (l *Ledger) Clone() *Ledger {
	out := NewLedger()
	if l == nil {
		return out
	}
	for _, entry := range l.entries {
		out.index[normaliseKey(entry.ReferredPlayer)] = len(out.entries)
		out.entries = append(out.entries, entry)
	}
	return out
}

func normaliseKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
