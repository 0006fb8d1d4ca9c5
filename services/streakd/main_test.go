package streakd

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"handstreak/observability/logging"
)

func TestLogStoreOpenedMasksDSN(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logStoreOpened(logger, StoreConfig{Driver: "postgres", DSN: "postgres://streakd:hunter2@db/streaks"})

	require.NotContains(t, buf.String(), "hunter2")
	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "postgres", line["driver"])
	require.Equal(t, logging.RedactedValue, line["dsn"])
}
