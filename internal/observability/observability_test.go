package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/config"
)

func TestNewCLILogger_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug", true, true},
		{"DEBUG", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"error", false, false},
		{"", false, true},
		{"verbose", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newCLILogger(&buf, tt.level, "text")
			ctx := context.Background()
			assert.Equal(t, tt.wantDebug, logger.Enabled(ctx, slog.LevelDebug))
			assert.Equal(t, tt.wantInfo, logger.Enabled(ctx, slog.LevelInfo))
		})
	}
}

func TestNewCLILogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newCLILogger(&buf, "info", "json")

	logger.Debug("hidden")
	logger.Info("run complete", "run_id", "r-1", "records", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "run complete", entry["msg"])
	assert.Equal(t, "r-1", entry["run_id"])
	assert.InDelta(t, 3, entry["records"], 0)
}

func TestNewCLILogger_Text(t *testing.T) {
	var buf bytes.Buffer
	newCLILogger(&buf, "debug", "text").Debug("parsed", "owner_id", "X")
	assert.Contains(t, buf.String(), "owner_id=X")
	assert.Contains(t, buf.String(), "level=DEBUG")
}

func TestNewLogger_InstallsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := NewLogger(&config.Config{LogLevel: "warn", LogFormat: "json"})
	assert.Same(t, logger, slog.Default())
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}

func TestNewMetricsForTesting(t *testing.T) {
	m := NewMetricsForTesting()
	m.RecordsClassified.WithLabelValues("LOW").Inc()
	m.RecordsClassified.WithLabelValues("LOW").Inc()
	m.RunsTotal.WithLabelValues("success").Inc()

	assert.InDelta(t, 2, testutil.ToFloat64(m.RecordsClassified.WithLabelValues("LOW")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")), 0)

	// A second set must not collide with the first.
	other := NewMetricsForTesting()
	assert.InDelta(t, 0, testutil.ToFloat64(other.RunsTotal.WithLabelValues("success")), 0)
}
