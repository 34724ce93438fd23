package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifactAt(t *testing.T, dir string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, "results.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"summary":{},"tests":[]}`), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestAttributeAcceptsFreshWrite(t *testing.T) {
	sendTime := time.Now().Add(-1 * time.Second)
	path := writeArtifactAt(t, t.TempDir(), time.Now())

	ok, err := NewCorrelator(log.New()).Attribute(sendTime, path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAttributeRejectsStaleWrite(t *testing.T) {
	sendTime := time.Now()
	path := writeArtifactAt(t, t.TempDir(), sendTime.Add(-10*time.Second))

	ok, err := NewCorrelator(log.New()).Attribute(sendTime, path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAttributeMissingFile(t *testing.T) {
	_, err := NewCorrelator(log.New()).Attribute(time.Now(), filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
