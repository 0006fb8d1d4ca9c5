package streak

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadLedgerDeduplicates(t *testing.T) {
	ledger := LoadLedger([]StreakEntry{
		{Username: " amy ", Streak: 3},
		{Username: "ben", Streak: 0},
		{Username: "amy", Streak: 9},
		{Username: "cat", Streak: 2},
		{Username: "amy", Streak: 1},
	})
	want := []StreakEntry{{Username: "amy", Streak: 3}, {Username: "cat", Streak: 2}}
	if got := ledger.Entries(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected entries %+v", got)
	}
	names, rows := ledger.Duplicates()
	if rows != 2 || !reflect.DeepEqual(names, []string{"amy"}) {
		t.Fatalf("unexpected duplicates %v %d", names, rows)
	}
	if _, rows := ledger.Clone().Duplicates(); rows != 0 {
		t.Fatalf("clone should drop load warnings")
	}
}

func TestLedgerSetRemove(t *testing.T) {
	ledger := NewLedger()
	ledger.Set("a", 2)
	ledger.Set("b", 1)
	ledger.Remove("a")
	ledger.Set("a", 4)
	ledger.Set("b", 0)
	if got := ledger.Entries(); !reflect.DeepEqual(got, []StreakEntry{{Username: "a", Streak: 4}}) {
		t.Fatalf("unexpected entries %+v", got)
	}
	if ledger.Len() != 1 {
		t.Fatalf("expected one entry, got %d", ledger.Len())
	}
}

func TestLedgerReinsertMovesToEnd(t *testing.T) {
	ledger := NewLedger()
	ledger.Set("a", 1)
	ledger.Set("b", 2)
	ledger.Remove("a")
	ledger.Set("a", 3)
	if got := ledger.Usernames(); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Fatalf("unexpected order %v", got)
	}
	if len(ledger.order) != 2 {
		t.Fatalf("order should not keep removed names: %v", ledger.order)
	}
}

func TestHistoryHighestNeverDecreases(t *testing.T) {
	history := LoadHistory([]HistoryEntry{{Username: "amy", CurrentStreak: 5, HighestStreak: 2}})
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	entry := history.Record("amy", "lost 5 day streak due to inactivity", 0, day)
	if entry.HighestStreak != 5 || entry.CurrentStreak != 0 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	entry = history.Record("amy", "started a 1 day streak", 1, day.AddDate(0, 0, 1))
	if entry.HighestStreak != 5 {
		t.Fatalf("highest streak decreased: %+v", entry)
	}
}

func TestParamsMilestones(t *testing.T) {
	p := DefaultParams()
	cases := []struct {
		streak int64
		wheel  int64
		ok     bool
	}{
		{6, 0, false},
		{7, 1, true},
		{14, 2, true},
		{70, 10, true},
		{77, 0, false},
		{0, 0, false},
	}
	for _, tc := range cases {
		wheel, ok := p.MilestoneIndex(tc.streak)
		if wheel != tc.wheel || ok != tc.ok {
			t.Fatalf("streak %d: expected (%d,%v), got (%d,%v)", tc.streak, tc.wheel, tc.ok, wheel, ok)
		}
	}
	if p.LossClass(3) != LossMinor || p.LossClass(4) != LossSignificant || p.LossClass(0) != LossNone {
		t.Fatalf("unexpected loss classes")
	}
	if custom := (Params{ActivityThreshold: 50}).Normalize(); custom.ActivityThreshold != 50 || custom.MilestoneInterval != 7 {
		t.Fatalf("unexpected normalised params %+v", custom)
	}
}
