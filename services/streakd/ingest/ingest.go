package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"handstreak/native/streak"
)

// Format is a supported batch encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ErrUnsupportedFormat is returned for content types other than JSON or CSV.
var ErrUnsupportedFormat = errors.New("ingest: unsupported format")

// ErrMalformed marks input that could not be read at all.
var ErrMalformed = errors.New("ingest: malformed batch")

// FormatFromContentType maps an HTTP Content-Type header to a Format.
func FormatFromContentType(contentType string) (Format, error) {
	if strings.TrimSpace(contentType) == "" {
		return FormatJSON, nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, contentType)
	}
	switch mediaType {
	case "application/json":
		return FormatJSON, nil
	case "text/csv", "application/csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mediaType)
	}
}

// FormatFromPath maps a file extension to a Format.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// Decode reads a daily batch. Rows whose hands value is not a non-negative
// whole number, rows without a username, and repeated usernames become
// Rejected entries rather than failing the batch. The batch day is taken
// from the JSON payload when present and left zero otherwise.
func Decode(r io.Reader, format Format) (streak.DailyBatch, error) {
	switch format {
	case FormatJSON:
		return decodeJSON(r)
	case FormatCSV:
		return decodeCSV(r)
	default:
		return streak.DailyBatch{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

type jsonBatch struct {
	Day     string       `json:"day"`
	Records []jsonRecord `json:"records"`
}

type jsonRecord struct {
	Username    string          `json:"username"`
	HandsPlayed json.RawMessage `json:"hands_played"`
}

func decodeJSON(r io.Reader) (streak.DailyBatch, error) {
	var payload jsonBatch
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return streak.DailyBatch{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	var batch streak.DailyBatch
	if day := strings.TrimSpace(payload.Day); day != "" {
		parsed, err := ParseDay(day)
		if err != nil {
			return streak.DailyBatch{}, err
		}
		batch.Day = parsed
	}
	b := newBuilder()
	for i, record := range payload.Records {
		raw := strings.TrimSpace(string(record.HandsPlayed))
		raw = strings.Trim(raw, `"`)
		b.add(i+1, record.Username, raw)
	}
	batch.Records, batch.Rejected = b.records, b.rejected
	return batch, nil
}

func decodeCSV(r io.Reader) (streak.DailyBatch, error) {
	contents, err := io.ReadAll(r)
	if err != nil {
		return streak.DailyBatch{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	contents = bytes.TrimPrefix(contents, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(contents))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return streak.DailyBatch{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(rows) == 0 {
		return streak.DailyBatch{}, nil
	}
	userCol, handsCol := -1, -1
	for i, name := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "username", "user", "player":
			userCol = i
		case "hands_played", "hands":
			handsCol = i
		}
	}
	if userCol < 0 || handsCol < 0 {
		return streak.DailyBatch{}, fmt.Errorf("%w: header must contain username and hands_played", ErrMalformed)
	}
	b := newBuilder()
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		b.add(i+1, field(row, userCol), field(row, handsCol))
	}
	return streak.DailyBatch{Records: b.records, Rejected: b.rejected}, nil
}

// ParseDay parses a YYYY-MM-DD date in UTC.
func ParseDay(raw string) (time.Time, error) {
	day, err := time.Parse(streak.DayFormat, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: day %q must use %s", ErrMalformed, raw, streak.DayFormat)
	}
	return day, nil
}

type builder struct {
	seen     map[string]struct{}
	records  []streak.ActivityRecord
	rejected []streak.RejectedRecord
}

func newBuilder() *builder {
	return &builder{seen: make(map[string]struct{})}
}

func (b *builder) add(row int, username, rawHands string) {
	name := streak.NormaliseUsername(username)
	reject := func(reason string) {
		b.rejected = append(b.rejected, streak.RejectedRecord{Row: row, Username: name, Reason: reason})
	}
	if name == "" {
		reject("username is empty")
		return
	}
	if _, dup := b.seen[name]; dup {
		reject("duplicate username")
		return
	}
	b.seen[name] = struct{}{}
	hands, err := parseHands(rawHands)
	if err != nil {
		reject(err.Error())
		return
	}
	b.records = append(b.records, streak.ActivityRecord{Username: name, HandsPlayed: hands})
}

func parseHands(raw string) (int64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" || cleaned == "null" {
		return 0, fmt.Errorf("hands played is empty")
	}
	value, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(cleaned, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, fmt.Errorf("hands played %q is not a whole number", raw)
		}
		value = int64(f)
	}
	if value < 0 {
		return 0, fmt.Errorf("hands played %d is negative", value)
	}
	return value, nil
}

func field(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
