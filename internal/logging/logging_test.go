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
	"go.uber.org/zap"
)

func TestNew_ConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, closeFn, err := New(Options{Level: "warn", Format: "console", Output: &buf})
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown", zap.Int("fd", 7))
	require.NoError(t, closeFn())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "fd")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, closeFn, err := New(Options{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)

	log.Named("reactor").Debug("closed", zap.Uint64("half", 3))
	require.NoError(t, closeFn())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "closed", entry["msg"])
	assert.Equal(t, "reactor", entry["logger"])
	assert.EqualValues(t, 3, entry["half"])
}

func TestNew_TeesIntoFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "proxy.log")
	log, closeFn, err := New(Options{Level: "info", Format: "console", Output: &buf, FilePath: path})
	require.NoError(t, err)

	log.Info("proxy listening")
	log.Debug("not written")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"proxy listening"`)
	assert.False(t, strings.Contains(string(data), "not written"))
	assert.Contains(t, buf.String(), "proxy listening")
}

func TestNew_InvalidOptions(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	require.Error(t, err)

	_, _, err = New(Options{Level: "info", Format: "xml"})
	require.Error(t, err)
}
