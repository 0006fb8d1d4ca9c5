package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubConfirmer struct {
	answer bool
	asked  []string
}

func (s *stubConfirmer) Confirm(question string) (bool, error) {
	s.asked = append(s.asked, question)
	return s.answer, nil
}

func newTestCLI(t *testing.T, handler http.Handler, answer bool) (*cli, *bytes.Buffer, *stubConfirmer) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	out := &bytes.Buffer{}
	confirm := &stubConfirmer{answer: answer}
	return &cli{client: newClient(srv.URL, "ops"), out: out, confirm: confirm}, out, confirm
}

func reviveHandler(t *testing.T, calls *[]string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/overrides", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ops", r.Header.Get("X-Operator"))
		*calls = append(*calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"applied":      false,
			"confirmation": map[string]any{"username": "carol", "new_streak": 3, "current_streak": 10},
			"prompt":       "Player 'carol' currently has a higher streak (10). Are you sure you want to set it to 3?",
		})
	})
	mux.HandleFunc("/v1/overrides/confirm", func(w http.ResponseWriter, r *http.Request) {
		*calls = append(*calls, r.Method+" "+r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "carol", body["username"])
		require.EqualValues(t, 3, body["streak"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"applied": true,
			"message": "Successfully set carol's streak to 3 days",
		})
	})
	return mux
}

func TestReviveConfirmed(t *testing.T) {
	var calls []string
	c, out, confirm := newTestCLI(t, reviveHandler(t, &calls), true)

	require.NoError(t, c.run(context.Background(), []string{"revive", "-user", "carol", "-streak", "3"}))
	require.Equal(t, []string{"POST /v1/overrides", "POST /v1/overrides/confirm"}, calls)
	require.Len(t, confirm.asked, 1)
	require.Contains(t, out.String(), "WARNING: Player 'carol' currently has a higher streak (10)")
	require.Contains(t, out.String(), "Successfully set carol's streak to 3 days")
}

func TestReviveDeclined(t *testing.T) {
	var calls []string
	c, out, _ := newTestCLI(t, reviveHandler(t, &calls), false)

	require.NoError(t, c.run(context.Background(), []string{"revive", "-user", "carol", "-streak", "3"}))
	require.Equal(t, []string{"POST /v1/overrides", "DELETE /v1/overrides"}, calls)
	require.Contains(t, out.String(), "Operation cancelled.")
}

func TestReviveRejectsNonPositive(t *testing.T) {
	var calls []string
	c, _, _ := newTestCLI(t, reviveHandler(t, &calls), true)
	require.Error(t, c.run(context.Background(), []string{"revive", "-user", "carol", "-streak", "0"}))
	require.Empty(t, calls)
}

func TestLookupNotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"No history found for player 'ghost'"}`))
	})
	c, out, _ := newTestCLI(t, handler, true)
	require.NoError(t, c.run(context.Background(), []string{"lookup", "ghost"}))
	require.Equal(t, "Player 'ghost' not found in the history database.\n", out.String())
}

func TestProcessPostsCSV(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/runs", r.URL.Path)
		require.Equal(t, "2024-03-02", r.URL.Query().Get("day"))
		require.Equal(t, "text/csv", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"run_id":"7d444840-9dc0-11d1-b245-5ffdce74fad2","report":{"counts":{"processed":2,"new":1,"updated":1},"milestone_winners":["alice hit 7 day streak, their Wheel 1 spin will be at 7:00 PM today"]}}`))
	})
	c, out, _ := newTestCLI(t, handler, true)
	path := filepath.Join(t.TempDir(), "daily.csv")
	require.NoError(t, os.WriteFile(path, []byte("username,hands_played\nalice,150\nbob,120\n"), 0o600))

	require.NoError(t, c.run(context.Background(), []string{"process", "-file", path, "-day", "2024-03-02"}))
	text := out.String()
	require.Contains(t, text, "WHEEL WINNERS TODAY")
	require.Contains(t, text, "Total players processed: 2")
	require.Contains(t, text, "New Players: 1")
}

func TestReferralCommandsSurfaceAPIErrors(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"referral: player is already on the referral list"}`))
	})
	c, _, _ := newTestCLI(t, handler, true)
	err := c.run(context.Background(), []string{"referral", "add", "-referred", "dave", "-referrer", "erin"})
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.Status)
}
