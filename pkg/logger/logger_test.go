package logger

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

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(zerolog.ConsoleWriter{Out: os.Stderr})
		SetLevel(INFO)
	})
	return &buf
}

func TestInfoCF_WritesComponentAndFields(t *testing.T) {
	buf := captureJSON(t)

	InfoCF("lifecycle", "Birthday", map[string]any{"age": 38})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "lifecycle", entry["component"])
	assert.Equal(t, "Birthday", entry["message"])
	assert.EqualValues(t, 38, entry["age"])
}

func TestSetLevel_FiltersBelowThreshold(t *testing.T) {
	buf := captureJSON(t)
	SetLevel(WARN)

	DebugC("test", "hidden")
	InfoC("test", "hidden")
	WarnC("test", "shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "shown")
	assert.Equal(t, WARN, GetLevel())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		" warn ":  WARN,
		"Error":   ERROR,
		"unknown": INFO,
		"":        INFO,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestEnableFileLogging(t *testing.T) {
	captureJSON(t)
	path := filepath.Join(t.TempDir(), "connor.log")

	require.NoError(t, EnableFileLogging(path))
	ErrorCF("storage", "write failed", map[string]any{"file": "beliefs.json"})
	DisableFileLogging()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"storage"`)
	assert.Contains(t, string(data), "write failed")
}
