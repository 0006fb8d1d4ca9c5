package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"handstreak/native/streak"
)

func TestDecodeJSON(t *testing.T) {
	body := `{"day":"2024-03-14","records":[
		{"username":" alice ","hands_played":120},
		{"username":"bob","hands_played":"1,050"},
		{"username":"carol","hands_played":12.5},
		{"username":"dan","hands_played":-3},
		{"username":"alice","hands_played":5},
		{"username":"","hands_played":100},
		{"username":"erin","hands_played":"lots"},
		{"username":"finn","hands_played":40.0}
	]}`
	batch, err := Decode(strings.NewReader(body), FormatJSON)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), batch.Day)
	require.Equal(t, []streak.ActivityRecord{
		{Username: "alice", HandsPlayed: 120},
		{Username: "bob", HandsPlayed: 1050},
		{Username: "finn", HandsPlayed: 40},
	}, batch.Records)
	require.Len(t, batch.Rejected, 5)
	reasons := make(map[string]string)
	for _, r := range batch.Rejected {
		reasons[r.Username] = r.Reason
	}
	require.Contains(t, reasons["carol"], "whole number")
	require.Contains(t, reasons["dan"], "negative")
	require.Equal(t, "duplicate username", reasons["alice"])
	require.Equal(t, "username is empty", reasons[""])
	require.Contains(t, reasons["erin"], "whole number")
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"records": [`), FormatJSON)
	require.ErrorIs(t, err, ErrMalformed)
	_, err = Decode(strings.NewReader(`{"day":"14/03/2024","records":[]}`), FormatJSON)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeCSV(t *testing.T) {
	body := "\xef\xbb\xbfUsername,Hands\nalice,120\n\nbob, 99\ncarol,abc\n,7\n"
	batch, err := Decode(strings.NewReader(body), FormatCSV)
	require.NoError(t, err)
	require.True(t, batch.Day.IsZero())
	require.Equal(t, []streak.ActivityRecord{
		{Username: "alice", HandsPlayed: 120},
		{Username: "bob", HandsPlayed: 99},
	}, batch.Records)
	require.Len(t, batch.Rejected, 2)
	require.Equal(t, "carol", batch.Rejected[0].Username)
	require.Equal(t, 3, batch.Rejected[0].Row)
}

func TestDecodeCSVRequiresHeader(t *testing.T) {
	_, err := Decode(strings.NewReader("name,count\nalice,1\n"), FormatCSV)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestFormatDetection(t *testing.T) {
	f, err := FormatFromContentType("text/csv; charset=utf-8")
	require.NoError(t, err)
	require.Equal(t, FormatCSV, f)
	f, err = FormatFromContentType("")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, f)
	_, err = FormatFromContentType("application/xml")
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	f, err = FormatFromPath("/inbox/2024-03-14.JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, f)
	_, err = FormatFromPath("report.xlsx")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}
