package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"handstreak/native/streak"
)

// Files lists the artefacts written for a run.
type Files struct {
	CSV     string `json:"csv"`
	Parquet string `json:"parquet"`
}

// Writer writes run reports below Dir, one directory per day.
type Writer struct {
	Dir string
}

// NewWriter returns a writer rooted at dir. An empty dir disables export.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

// Row is the flattened per-participant line of a run report.
type Row struct {
	RunID       string
	Day         string
	Username    string
	Kind        string
	PriorStreak int64
	NewStreak   int64
	HandsPlayed int64
	Loss        string
	Wheel       int64
	Slot        string
	Message     string
}

// Rows flattens the report transitions and attaches wheel assignments.
func Rows(runID string, report streak.Report) []Row {
	winners := make(map[string]streak.Winner, len(report.Winners))
	for _, w := range report.Winners {
		winners[w.Username] = w
	}
	day := report.Day.Format(streak.DayFormat)
	rows := make([]Row, 0, len(report.Transitions))
	for _, t := range report.Transitions {
		row := Row{
			RunID:       runID,
			Day:         day,
			Username:    t.Username,
			Kind:        string(t.Kind),
			PriorStreak: t.PriorStreak,
			NewStreak:   t.NewStreak,
			HandsPlayed: t.HandsPlayed,
			Loss:        t.Loss,
			Message:     t.Message,
		}
		if w, ok := winners[t.Username]; ok && t.Kind == streak.TransitionMilestone {
			row.Wheel = w.Wheel
			row.Slot = w.Slot
		}
		rows = append(rows, row)
	}
	return rows
}

// Write stores the report of runID as CSV and parquet. It returns empty
// Files when the writer is disabled.
func (w *Writer) Write(runID string, report streak.Report) (Files, error) {
	if w == nil || w.Dir == "" {
		return Files{}, nil
	}
	dir := filepath.Join(w.Dir, report.Day.Format(streak.DayFormat))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("export: create dir: %w", err)
	}
	rows := Rows(runID, report)
	files := Files{
		CSV:     filepath.Join(dir, runID+".csv"),
		Parquet: filepath.Join(dir, runID+".parquet"),
	}
	if err := writeCSV(files.CSV, rows); err != nil {
		return Files{}, err
	}
	if err := writeParquet(files.Parquet, rows); err != nil {
		_ = os.Remove(files.CSV)
		_ = os.Remove(files.Parquet)
		return Files{}, err
	}
	return files, nil
}

var csvHeader = []string{
	"run_id", "day", "username", "kind", "prior_streak", "new_streak",
	"hands_played", "loss", "wheel", "slot", "message",
}

func writeCSV(path string, rows []Row) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create csv: %w", err)
	}
	defer file.Close()
	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.RunID,
			row.Day,
			row.Username,
			row.Kind,
			strconv.FormatInt(row.PriorStreak, 10),
			strconv.FormatInt(row.NewStreak, 10),
			strconv.FormatInt(row.HandsPlayed, 10),
			row.Loss,
			strconv.FormatInt(row.Wheel, 10),
			row.Slot,
			row.Message,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

type parquetRow struct {
	RunID       string `parquet:"name=run_id, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Day         string `parquet:"name=day, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Username    string `parquet:"name=username, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Kind        string `parquet:"name=kind, type=UTF8, encoding=PLAIN_DICTIONARY"`
	PriorStreak int64  `parquet:"name=prior_streak, type=INT64"`
	NewStreak   int64  `parquet:"name=new_streak, type=INT64"`
	HandsPlayed int64  `parquet:"name=hands_played, type=INT64"`
	Loss        string `parquet:"name=loss, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Wheel       int64  `parquet:"name=wheel, type=INT64"`
	Slot        string `parquet:"name=slot, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Message     string `parquet:"name=message, type=UTF8, encoding=PLAIN_DICTIONARY"`
}

func writeParquet(path string, rows []Row) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &parquetRow{
			RunID:       row.RunID,
			Day:         row.Day,
			Username:    row.Username,
			Kind:        row.Kind,
			PriorStreak: row.PriorStreak,
			NewStreak:   row.NewStreak,
			HandsPlayed: row.HandsPlayed,
			Loss:        row.Loss,
			Wheel:       row.Wheel,
			Slot:        row.Slot,
			Message:     row.Message,
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("export: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("export: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("export: close parquet file: %w", err)
	}
	return nil
}
