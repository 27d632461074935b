package logger

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warn"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("whatever"))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, LevelWarn)

	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "level=warning")
}

func TestWithAddsField(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, LevelDebug).With("run", "abc123")

	l.Debug("block #%d done", 7)

	assert.Contains(t, buf.String(), "run=abc123")
	assert.Contains(t, buf.String(), "block #7 done")
}

func TestWriteTrimsNewline(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, LevelInfo)

	n, err := l.Write([]byte("GET /c/b 200\n"))
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Contains(t, buf.String(), "GET /c/b 200")
}

func TestNewCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobsync.log")
	l, err := New(path, LevelInfo, false)
	require.NoError(t, err)
	l.Info("hello")
	assert.FileExists(t, path)
}
