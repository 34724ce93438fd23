package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleArtifact = `{
	"summary": {"total": 2, "passed": 1, "failed": 1, "skipped": 0, "durationMs": 42},
	"tests": [
		{"testId": "t1", "testName": "first", "success": true, "durationMs": 20},
		{"testId": "t2", "testName": "second", "success": false, "durationMs": 22}
	]
}`

func TestWaitForResultPicksUpFreshWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".glubean", "results.json")

	w, err := NewArtifactWatcher(log.New(), path, nil)
	require.NoError(t, err)
	defer w.Close()

	sendTime := time.Now()
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = os.WriteFile(path, []byte(sampleArtifact), 0o644)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	artifact, err := w.WaitForResult(ctx, sendTime)
	require.NoError(t, err)

	assert.Equal(t, 2, artifact.Summary.Total)
	assert.Equal(t, 1, artifact.Summary.Failed)
	assert.Len(t, artifact.Tests, 2)
}

func TestWaitForResultAcceptsPreexistingFreshArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.json")

	sendTime := time.Now().Add(-1 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte(sampleArtifact), 0o644))

	w, err := NewArtifactWatcher(log.New(), path, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	artifact, err := w.WaitForResult(ctx, sendTime)
	require.NoError(t, err)
	assert.Equal(t, 2, artifact.Summary.Total)
}

func TestWaitForResultIgnoresStaleArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.json")

	// Leftover artifact from an earlier invocation.
	old := time.Now().Add(-1 * time.Minute)
	require.NoError(t, os.WriteFile(path, []byte(sampleArtifact), 0o644))
	require.NoError(t, os.Chtimes(path, old, old))

	w, err := NewArtifactWatcher(log.New(), path, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = w.WaitForResult(ctx, time.Now())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForResultContextCancel(t *testing.T) {
	dir := t.TempDir()
	w, err := NewArtifactWatcher(log.New(), filepath.Join(dir, "results.json"), nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.WaitForResult(ctx, time.Now())
	require.ErrorIs(t, err, context.Canceled)
}
