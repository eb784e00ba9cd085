package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zerolog.Level
	}{
		{-1, zerolog.WarnLevel},
		{0, zerolog.WarnLevel},
		{1, zerolog.InfoLevel},
		{2, zerolog.DebugLevel},
		{3, zerolog.TraceLevel},
		{7, zerolog.TraceLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.verbosity), "verbosity %d", tt.verbosity)
	}
}

func TestSetupLoggerCreatesLogFile(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)

	SetupLogger(1)
	t.Cleanup(func() { Configure(0, &bytes.Buffer{}) })

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	path := filepath.Join(state, "treetx", "treetx.log")
	assert.Equal(t, path, LogFilePath())

	logger := GetLogger("test")
	logger.Info().Msg("written to file")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")

	// Reconfiguring keeps appending to the same file.
	SetupLogger(1)
	logger = GetLogger("test")
	logger.Info().Msg("second setup")
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.Contains(t, string(data), "second setup")
}

func TestGetLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(1, &buf)
	t.Cleanup(func() { Configure(0, &bytes.Buffer{}) })

	logger := GetLogger("transform.apply")
	logger.Info().Int("renamed", 2).Msg("transform applied")
	logger.Debug().Msg("filtered out")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var record map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "transform.apply", record["component"])
	assert.Equal(t, "transform applied", record["message"])
	assert.Equal(t, float64(2), record["renamed"])
	assert.NotContains(t, record, "caller")
}

func TestConfigureAddsCallerAtDebug(t *testing.T) {
	var buf bytes.Buffer
	Configure(2, &buf)
	t.Cleanup(func() { Configure(0, &bytes.Buffer{}) })

	logger := GetLogger("x")
	logger.Debug().Msg("with caller")
	assert.Contains(t, buf.String(), `"caller"`)
}

func TestLogOperationStart(t *testing.T) {
	var buf bytes.Buffer
	Configure(2, &buf)
	t.Cleanup(func() { Configure(0, &bytes.Buffer{}) })

	done := LogOperationStart(GetLogger("x"), "apply.removals")
	done()

	out := buf.String()
	assert.Contains(t, out, "Operation started")
	assert.Contains(t, out, "Operation completed")
	assert.Contains(t, out, `"operation":"apply.removals"`)
	assert.Contains(t, out, `"duration"`)
}
