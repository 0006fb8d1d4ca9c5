package referral

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2024, 3, 14, 21, 0, 0, 0, time.UTC)

func TestUpdateCrossesThreshold(t *testing.T) {
	ledger := LoadLedger([]Entry{{ReferredPlayer: "rookie", HandsPlayed: 240, ReferrerPlayer: "mentor"}})
	events := ledger.Update(map[string]int64{"rookie": 15}, testNow)
	if len(events) != 1 {
		t.Fatalf("expected one bonus, got %d", len(events))
	}
	if events[0].HandsPlayed != 255 || events[0].CatchUp {
		t.Fatalf("unexpected event %+v", events[0])
	}
	entry, _ := ledger.Get("rookie")
	if !entry.BonusSent || !entry.BonusSentAt.Equal(testNow) || entry.HandsPlayed != 255 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if again := ledger.Update(map[string]int64{"rookie": 100}, testNow.Add(24*time.Hour)); len(again) != 0 {
		t.Fatalf("bonus emitted twice: %+v", again)
	}
	entry, _ = ledger.Get("rookie")
	if entry.HandsPlayed != 355 || !entry.BonusSentAt.Equal(testNow) {
		t.Fatalf("unexpected entry after second update %+v", entry)
	}
}

func TestUpdateCatchUp(t *testing.T) {
	ledger := NewLedger()
	if _, err := ledger.AddReferral("veteran", 400, "host"); err != nil {
		t.Fatalf("add: %v", err)
	}
	events := ledger.Update(nil, testNow)
	if len(events) != 1 || !events[0].CatchUp {
		t.Fatalf("expected catch-up bonus, got %+v", events)
	}
	if len(ledger.Update(nil, testNow)) != 0 {
		t.Fatalf("catch-up bonus emitted twice")
	}
}

func TestUpdateZeroMapIsIdempotent(t *testing.T) {
	ledger := LoadLedger([]Entry{
		{ReferredPlayer: "a", HandsPlayed: 10, ReferrerPlayer: "r"},
		{ReferredPlayer: "b", HandsPlayed: 300, ReferrerPlayer: "r", BonusSent: true, BonusSentAt: testNow},
	})
	before := ledger.Entries()
	for i := 0; i < 3; i++ {
		if events := ledger.Update(map[string]int64{"a": 0, "b": 0, "c": 0}, testNow); len(events) != 0 {
			t.Fatalf("unexpected bonus %+v", events)
		}
	}
	after := ledger.Entries()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("entry changed: %+v -> %+v", before[i], after[i])
		}
	}
}

func TestUpdateAtMostOnce(t *testing.T) {
	ledger := LoadLedger([]Entry{{ReferredPlayer: "slow", ReferrerPlayer: "r"}})
	daily := []int64{50, 0, 120, -30, 79, 1, 500, 0}
	emitted := 0
	var total int64
	for i, hands := range daily {
		events := ledger.Update(map[string]int64{"slow": hands}, testNow.AddDate(0, 0, i))
		emitted += len(events)
		total += max(hands, 0)
		if len(events) == 1 && total < BonusThreshold {
			t.Fatalf("day %d: bonus before threshold (total %d)", i, total)
		}
	}
	if emitted != 1 {
		t.Fatalf("expected exactly one bonus, got %d", emitted)
	}
	entry, _ := ledger.Get("slow")
	if entry.HandsPlayed != total {
		t.Fatalf("expected %d hands, got %d", total, entry.HandsPlayed)
	}
}

func TestAddReferralRejections(t *testing.T) {
	ledger := NewLedger()
	if _, err := ledger.AddReferral("Newbie", 0, "Host"); err != nil {
		t.Fatalf("add: %v", err)
	}
	cases := []struct {
		referred string
		hands    int64
		referrer string
		want     error
	}{
		{"newbie", 0, "other", ErrDuplicateReferral},
		{"host", 0, "HOST", ErrSelfReferral},
		{"", 0, "host", ErrValidation},
		{"fresh", -1, "host", ErrValidation},
	}
	for _, tc := range cases {
		if _, err := ledger.AddReferral(tc.referred, tc.hands, tc.referrer); !errors.Is(err, tc.want) {
			t.Fatalf("%q/%q: expected %v, got %v", tc.referred, tc.referrer, tc.want, err)
		}
	}
	if ledger.Len() != 1 {
		t.Fatalf("rejected referrals must not be stored, got %d", ledger.Len())
	}
}

func TestLookupIgnoresCase(t *testing.T) {
	ledger := LoadLedger([]Entry{
		{ReferredPlayer: "one", HandsPlayed: 100, ReferrerPlayer: "Mentor"},
		{ReferredPlayer: "two", HandsPlayed: 260, ReferrerPlayer: "mentor", BonusSent: true},
		{ReferredPlayer: "three", HandsPlayed: 5, ReferrerPlayer: "someone"},
		{ReferredPlayer: "ONE", HandsPlayed: 999, ReferrerPlayer: "x"},
	})
	if ledger.Duplicates() != 1 {
		t.Fatalf("expected one duplicate, got %d", ledger.Duplicates())
	}
	summary := ledger.Lookup("MENTOR")
	if summary.TotalReferrals != 2 || summary.BonusesEarned != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Referrals[0].HandsToBonus != 150 || summary.Referrals[1].HandsToBonus != 0 {
		t.Fatalf("unexpected standings %+v", summary.Referrals)
	}
	if empty := ledger.Lookup("nobody"); empty.TotalReferrals != 0 || empty.Referrals == nil {
		t.Fatalf("unexpected empty summary %+v", empty)
	}
}

func TestUpdateMatchesReferredPlayerIgnoringCase(t *testing.T) {
	ledger := NewLedger()
	if _, err := ledger.AddReferral("Alice", 200, "bob"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := ledger.AddReferral("alice", 0, "carol"); !errors.Is(err, ErrDuplicateReferral) {
		t.Fatalf("expected duplicate referral, got %v", err)
	}
	events := ledger.Update(map[string]int64{"alice": 100}, testNow)
	if len(events) != 1 || events[0].ReferredPlayer != "Alice" || events[0].HandsPlayed != 300 {
		t.Fatalf("unexpected events %+v", events)
	}
	entry, _ := ledger.Get("ALICE")
	if entry.HandsPlayed != 300 || !entry.BonusSent {
		t.Fatalf("unexpected entry %+v", entry)
	}
}
