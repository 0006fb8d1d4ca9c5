package streakd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"handstreak/native/streak"
	"handstreak/storage"
)

func TestDigestIgnoresRecordOrder(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	a := streak.DailyBatch{Day: day, Records: []streak.ActivityRecord{{Username: "alice", HandsPlayed: 150}, {Username: "bob", HandsPlayed: 90}}}
	b := streak.DailyBatch{Day: day, Records: []streak.ActivityRecord{{Username: "bob", HandsPlayed: 90}, {Username: "alice", HandsPlayed: 150}}}
	require.Equal(t, Digest(a), Digest(b))

	c := streak.DailyBatch{Day: day, Records: []streak.ActivityRecord{{Username: "alice", HandsPlayed: 151}, {Username: "bob", HandsPlayed: 90}}}
	require.NotEqual(t, Digest(a), Digest(c))

	d := a
	d.Day = day.AddDate(0, 0, 1)
	require.NotEqual(t, Digest(a), Digest(d))
}

func TestJournalCheck(t *testing.T) {
	j := NewJournal(storage.NewMemDB())
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, j.Check(day, "abc"))
	require.NoError(t, j.Record(JournalEntry{Day: "2024-03-01", RunID: "run-1", Digest: "abc", AppliedAt: day}))
	require.ErrorIs(t, j.Check(day, "abc"), ErrAlreadyProcessed)
	require.ErrorIs(t, j.Check(day, "def"), ErrDayConflict)
	require.NoError(t, j.Check(day.AddDate(0, 0, 1), "abc"))

	require.NoError(t, j.Record(JournalEntry{Day: "2024-02-29", RunID: "run-0", Digest: "xyz"}))
	days, err := j.Days()
	require.NoError(t, err)
	require.Equal(t, []string{"2024-02-29", "2024-03-01"}, days)
}

func TestJournalOnLevelDB(t *testing.T) {
	db, err := storage.NewLevelDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()
	j := NewJournal(db)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, j.Record(JournalEntry{Day: "2024-03-01", RunID: "run-1", Digest: "abc"}))
	entry, ok, err := j.Lookup(day)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "run-1", entry.RunID)
}
