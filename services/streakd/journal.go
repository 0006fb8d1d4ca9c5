package streakd

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"lukechampine.com/blake3"

	"handstreak/native/streak"
	"handstreak/storage"
)

const journalPrefix = "run/"

// JournalEntry records which batch was applied for a day.
type JournalEntry struct {
	Day       string    `json:"day"`
	RunID     string    `json:"run_id"`
	Digest    string    `json:"digest"`
	Forced    bool      `json:"forced"`
	AppliedAt time.Time `json:"applied_at"`
}

// Journal guards against applying a day twice. Entries live in a key-value
// store keyed by day.
type Journal struct {
	db storage.Database
}

// NewJournal wraps db.
func NewJournal(db storage.Database) *Journal {
	return &Journal{db: db}
}

// Digest returns a stable fingerprint of batch. Record order does not
// affect the result.
func Digest(batch streak.DailyBatch) string {
	records := append([]streak.ActivityRecord(nil), batch.Records...)
	sort.Slice(records, func(i, j int) bool { return records[i].Username < records[j].Username })
	rejected := append([]streak.RejectedRecord(nil), batch.Rejected...)
	sort.Slice(rejected, func(i, j int) bool { return rejected[i].Row < rejected[j].Row })

	var b strings.Builder
	b.WriteString(batch.Day.Format(streak.DayFormat))
	b.WriteByte('\n')
	for _, r := range records {
		b.WriteString(r.Username)
		b.WriteByte('\t')
		b.WriteString(strconv.FormatInt(r.HandsPlayed, 10))
		b.WriteByte('\n')
	}
	for _, r := range rejected {
		fmt.Fprintf(&b, "!%d\t%s\t%s\n", r.Row, r.Username, r.Reason)
	}
	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Check reports whether a batch with digest may be applied for day.
func (j *Journal) Check(day time.Time, digest string) error {
	entry, ok, err := j.Lookup(day)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if entry.Digest == digest {
		return fmt.Errorf("%w: %s (run %s)", ErrAlreadyProcessed, entry.Day, entry.RunID)
	}
	return fmt.Errorf("%w: %s (run %s)", ErrDayConflict, entry.Day, entry.RunID)
}

// Lookup returns the entry recorded for day.
func (j *Journal) Lookup(day time.Time) (JournalEntry, bool, error) {
	raw, err := j.db.Get(journalKey(day))
	if errors.Is(err, storage.ErrNotFound) {
		return JournalEntry{}, false, nil
	}
	if err != nil {
		return JournalEntry{}, false, fmt.Errorf("streakd: read journal: %w", err)
	}
	var entry JournalEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return JournalEntry{}, false, fmt.Errorf("streakd: decode journal: %w", err)
	}
	return entry, true, nil
}

// Record stores entry, replacing any previous entry for the same day.
func (j *Journal) Record(entry JournalEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("streakd: encode journal: %w", err)
	}
	if err := j.db.Put([]byte(journalPrefix+entry.Day), raw); err != nil {
		return fmt.Errorf("streakd: write journal: %w", err)
	}
	return nil
}

// Days lists the journaled days in ascending order.
func (j *Journal) Days() ([]string, error) {
	keys, err := j.db.Keys([]byte(journalPrefix))
	if err != nil {
		return nil, fmt.Errorf("streakd: list journal: %w", err)
	}
	days := make([]string, 0, len(keys))
	for _, key := range keys {
		days = append(days, strings.TrimPrefix(string(key), journalPrefix))
	}
	return days, nil
}

func journalKey(day time.Time) []byte {
	return []byte(journalPrefix + day.Format(streak.DayFormat))
}
