package streak

// StreakEntry is a stored ledger row.
type StreakEntry struct {
	Username string `json:"username"`
	Streak   int64  `json:"streak"`
}

// Ledger holds the active streaks. A participant without an entry has a
// streak of zero; entries are never stored with a streak below one.
type Ledger struct {
	order   []string
	streaks map[string]int64

	duplicates []string
	dupRows    int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{streaks: make(map[string]int64)}
}

// LoadLedger builds a ledger from stored rows. Duplicate usernames keep the
// first row and are remembered so the next run can warn about them. Rows
// with a non-positive streak are dropped.
func LoadLedger(rows []StreakEntry) *Ledger {
	l := NewLedger()
	flagged := make(map[string]struct{})
	for _, row := range rows {
		name := NormaliseUsername(row.Username)
		if name == "" {
			continue
		}
		if _, seen := l.streaks[name]; seen {
			l.dupRows++
			if _, ok := flagged[name]; !ok {
				flagged[name] = struct{}{}
				l.duplicates = append(l.duplicates, name)
			}
			continue
		}
		if row.Streak <= 0 {
			continue
		}
		l.order = append(l.order, name)
		l.streaks[name] = row.Streak
	}
	return l
}

// Get returns the current streak for username.
func (l *Ledger) Get(username string) (int64, bool) {
	if l == nil {
		return 0, false
	}
	streak, ok := l.streaks[username]
	return streak, ok
}

// Set stores streak for username. Values below one remove the entry.
func (l *Ledger) Set(username string, streak int64) {
	if streak <= 0 {
		l.Remove(username)
		return
	}
	if _, ok := l.streaks[username]; !ok {
		l.order = append(l.order, username)
	}
	l.streaks[username] = streak
}

// Remove deletes username from the ledger.
func (l *Ledger) Remove(username string) {
	if _, ok := l.streaks[username]; !ok {
		return
	}
	delete(l.streaks, username)
	for i, name := range l.order {
		if name == username {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of active streaks.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.streaks)
}

// Usernames lists the active participants in insertion order.
func (l *Ledger) Usernames() []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l.streaks))
	seen := make(map[string]struct{}, len(l.streaks))
	for _, name := range l.order {
		if _, ok := l.streaks[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Entries returns the ledger rows in insertion order.
func (l *Ledger) Entries() []StreakEntry {
	names := l.Usernames()
	out := make([]StreakEntry, 0, len(names))
	for _, name := range names {
		out = append(out, StreakEntry{Username: name, Streak: l.streaks[name]})
	}
	return out
}

// Duplicates returns the usernames that appeared more than once when the
// ledger was loaded and the number of rows that were discarded.
func (l *Ledger) Duplicates() ([]string, int) {
	if l == nil {
		return nil, 0
	}
	return append([]string(nil), l.duplicates...), l.dupRows
}

// Clone returns a compacted copy. Load warnings are not carried over.
func (l *Ledger) Clone() *Ledger {
	out := NewLedger()
	if l == nil {
		return out
	}
	for _, entry := range l.Entries() {
		out.order = append(out.order, entry.Username)
		out.streaks[entry.Username] = entry.Streak
	}
	return out
}
