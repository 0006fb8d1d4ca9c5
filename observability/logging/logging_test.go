package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(&buf, "streakd", "test", Options{})
	logger.Info("run complete", "run_id", "abc")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	for key, want := range map[string]string{
		"message":  "run complete",
		"severity": "INFO",
		"service":  "streakd",
		"env":      "test",
		"run_id":   "abc",
	} {
		if line[key] != want {
			t.Fatalf("expected %s=%q, got %v", key, want, line[key])
		}
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("expected timestamp key in %v", line)
	}
}

func TestSetupWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streakd.log")
	var buf bytes.Buffer
	logger := setup(&buf, "streakd", "", Options{File: path, MaxSizeMB: 1, Level: "warn"})
	logger.Info("hidden")
	logger.Warn("visible")

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(contents), "hidden") || !strings.Contains(string(contents), "visible") {
		t.Fatalf("unexpected file contents %q", contents)
	}
	if !bytes.Equal(bytes.TrimSpace(contents), bytes.TrimSpace(buf.Bytes())) {
		t.Fatalf("stdout and file output differ")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("") != slog.LevelInfo || ParseLevel("warning") != slog.LevelWarn {
		t.Fatalf("unexpected level mapping")
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("dsn", "postgres://user:pw@db/streaks"); got.Value.String() != RedactedValue {
		t.Fatalf("expected dsn to be redacted, got %v", got)
	}
	if got := MaskField("username", "alice"); got.Value.String() != "alice" {
		t.Fatalf("expected username to pass through, got %v", got)
	}
}
