package streak

import "time"

// HistoryEntry is the latest status line kept for a participant.
type HistoryEntry struct {
	Username      string    `json:"username"`
	LastUpdate    string    `json:"last_update"`
	UpdateDate    time.Time `json:"update_date"`
	CurrentStreak int64     `json:"current_streak"`
	HighestStreak int64     `json:"highest_streak"`
}

// History keeps one entry per participant ever seen. Entries are updated in
// place and never removed.
type History struct {
	order   []string
	entries map[string]*HistoryEntry
}

// NewHistory returns an empty history log.
func NewHistory() *History {
	return &History{entries: make(map[string]*HistoryEntry)}
}

// LoadHistory builds a history log from stored rows, keeping the first row
// for each username.
func LoadHistory(rows []HistoryEntry) *History {
	h := NewHistory()
	for _, row := range rows {
		name := NormaliseUsername(row.Username)
		if name == "" {
			continue
		}
		if _, seen := h.entries[name]; seen {
			continue
		}
		entry := row
		entry.Username = name
		if entry.CurrentStreak < 0 {
			entry.CurrentStreak = 0
		}
		entry.HighestStreak = max(entry.HighestStreak, entry.CurrentStreak)
		h.order = append(h.order, name)
		h.entries[name] = &entry
	}
	return h
}

// Record writes the latest status for username and returns the stored entry.
// HighestStreak only ever grows.
func (h *History) Record(username, message string, current int64, day time.Time) HistoryEntry {
	if current < 0 {
		current = 0
	}
	entry, ok := h.entries[username]
	if !ok {
		entry = &HistoryEntry{Username: username}
		h.order = append(h.order, username)
		h.entries[username] = entry
	}
	entry.LastUpdate = message
	entry.UpdateDate = day
	entry.CurrentStreak = current
	entry.HighestStreak = max(entry.HighestStreak, current)
	return *entry
}

// RecordLoss writes a lost streak. The lost value counts toward
// HighestStreak even when username had no history row yet.
func (h *History) RecordLoss(username, message string, lost int64, day time.Time) HistoryEntry {
	entry := h.Record(username, message, 0, day)
	if lost > entry.HighestStreak {
		h.entries[username].HighestStreak = lost
		entry.HighestStreak = lost
	}
	return entry
}

// Lookup returns the entry recorded for username.
func (h *History) Lookup(username string) (HistoryEntry, bool) {
	if h == nil {
		return HistoryEntry{}, false
	}
	entry, ok := h.entries[NormaliseUsername(username)]
	if !ok {
		return HistoryEntry{}, false
	}
	return *entry, true
}

// Len returns the number of participants with history.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.entries)
}

// Entries returns all history rows in first-seen order.
func (h *History) Entries() []HistoryEntry {
	if h == nil {
		return nil
	}
	out := make([]HistoryEntry, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, *h.entries[name])
	}
	return out
}

// Clone returns a deep copy.
func (h *History) Clone() *History {
	out := NewHistory()
	if h == nil {
		return out
	}
	for _, name := range h.order {
		entry := *h.entries[name]
		out.order = append(out.order, name)
		out.entries[name] = &entry
	}
	return out
}
