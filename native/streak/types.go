package streak

import (
	"strings"
	"time"
)

// DayFormat is the calendar date layout used for batch days and history dates.
const DayFormat = "2006-01-02"

// ActivityRecord is one participant's activity for the processed day.
type ActivityRecord struct {
	Username    string `json:"username"`
	HandsPlayed int64  `json:"hands_played"`
}

// RejectedRecord is a row the extractor could not turn into an
// ActivityRecord. The participant still counts as present for the day.
type RejectedRecord struct {
	Row      int    `json:"row"`
	Username string `json:"username"`
	Reason   string `json:"reason"`
}

// DailyBatch is the parsed activity report for a single day.
type DailyBatch struct {
	Day      time.Time
	Records  []ActivityRecord
	Rejected []RejectedRecord
}

// NormaliseUsername trims the surrounding whitespace that spreadsheets tend
// to leave behind.
func NormaliseUsername(username string) string {
	return strings.TrimSpace(username)
}

// TruncateDay drops the clock component of t while keeping its location.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
