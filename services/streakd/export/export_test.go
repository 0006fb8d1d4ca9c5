package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"handstreak/native/streak"
)

func sampleReport() streak.Report {
	return streak.Report{
		Day: time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
		Winners: []streak.Winner{
			{Username: "alice", Streak: 7, Wheel: 1, Slot: "7:40 PM"},
		},
		Transitions: []streak.Transition{
			{Username: "alice", Kind: streak.TransitionMilestone, PriorStreak: 6, NewStreak: 7, HandsPlayed: 120, Message: "hit 7 day milestone and earned Wheel 1 spin scheduled for 7:40 PM"},
			{Username: "bob", Kind: streak.TransitionLostInactive, PriorStreak: 3, Loss: "minor", Message: "lost 3 day streak due to inactivity"},
		},
	}
}

func TestRowsAttachWheelSlots(t *testing.T) {
	rows := Rows("run-1", sampleReport())
	require.Len(t, rows, 2)
	require.Equal(t, int64(1), rows[0].Wheel)
	require.Equal(t, "7:40 PM", rows[0].Slot)
	require.Equal(t, "2024-03-14", rows[1].Day)
	require.Empty(t, rows[1].Slot)
}

func TestWriteCSVAndParquet(t *testing.T) {
	w := NewWriter(t.TempDir())
	files, err := w.Write("run-1", sampleReport())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(w.Dir, "2024-03-14", "run-1.csv"), files.CSV)

	f, err := os.Open(files.CSV)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, csvHeader, records[0])
	require.Equal(t, "alice", records[1][2])
	require.Equal(t, "7:40 PM", records[1][9])

	fr, err := local.NewLocalFileReader(files.Parquet)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(parquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(2), pr.GetNumRows())
	out := make([]parquetRow, 2)
	require.NoError(t, pr.Read(&out))
	require.Equal(t, "bob", out[1].Username)
	require.Equal(t, int64(3), out[1].PriorStreak)
}

func TestDisabledWriter(t *testing.T) {
	files, err := NewWriter("").Write("run-1", sampleReport())
	require.NoError(t, err)
	require.Empty(t, files.CSV)
	var nilWriter *Writer
	_, err = nilWriter.Write("run-1", sampleReport())
	require.NoError(t, err)
}

func TestParquetFailureRemovesCSV(t *testing.T) {
	w := NewWriter(t.TempDir())
	blocked := filepath.Join(w.Dir, "2024-03-14", "run-2.parquet")
	require.NoError(t, os.MkdirAll(blocked, 0o755))

	files, err := w.Write("run-2", sampleReport())
	require.Error(t, err)
	require.Empty(t, files.CSV)
	require.NoFileExists(t, filepath.Join(w.Dir, "2024-03-14", "run-2.csv"))
}
