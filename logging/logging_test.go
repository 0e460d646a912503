package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductionLevelFiltersInfo(t *testing.T) {
	var console bytes.Buffer
	log, closeLog, err := New(Config{Console: &console})
	require.NoError(t, err)

	log.Info("quiet")
	log.V(1).Info("quieter")
	log.Error(nil, "loud", "code", 7)
	require.NoError(t, closeLog())

	out := console.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "loud")
	assert.Contains(t, out, `"code": 7`)
}

func TestDevelopmentLogsVerbose(t *testing.T) {
	var console bytes.Buffer
	log, closeLog, err := New(Config{Development: true, Console: &console})
	require.NoError(t, err)

	log.V(1).Info("details", "method", "echo")
	log.V(2).Info("too detailed")
	require.NoError(t, closeLog())

	assert.Contains(t, console.String(), "details")
	assert.NotContains(t, console.String(), "too detailed")
}

func TestFileOutputIsJSONWithCaller(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	var console bytes.Buffer
	log, closeLog, err := New(Config{Development: true, Console: &console, FilePath: path})
	require.NoError(t, err)

	log.Info("to file", "request_id", "r1")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "to file", rec["M"])
	assert.Equal(t, "r1", rec["request_id"])
	assert.Contains(t, rec["C"], "logging_test.go")

	assert.NotContains(t, console.String(), "logging_test.go")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "tmp/app.log", cfg.FilePath)
	assert.Equal(t, 1, cfg.MaxSizeMB)
	assert.Equal(t, 3, cfg.MaxBackups)
}
