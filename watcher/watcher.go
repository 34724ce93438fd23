package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fsnotify/fsnotify"

	"github.com/glubean/runcore/metrics"
	"github.com/glubean/runcore/types"
)

// reparseDelay gives the runner a moment to finish flushing before a
// partially-written artifact is read again.
const reparseDelay = 50 * time.Millisecond

// ArtifactWatcher waits for the result artifact of one invocation. The
// artifact directory is watched rather than the file itself, since the file
// may not exist until the runner finishes.
type ArtifactWatcher struct {
	log        log.Logger
	path       string
	correlator Correlator
	fs         *fsnotify.Watcher
}

// NewArtifactWatcher starts watching the directory containing artifactPath.
func NewArtifactWatcher(logger log.Logger, artifactPath string, correlator Correlator) (*ArtifactWatcher, error) {
	if logger == nil {
		logger = log.New()
	}
	if correlator == nil {
		correlator = NewCorrelator(logger)
	}
	abs, err := filepath.Abs(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact path %q: %w", artifactPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("failed to watch artifact directory: %w", err)
	}

	return &ArtifactWatcher{
		log:        logger,
		path:       abs,
		correlator: correlator,
		fs:         fs,
	}, nil
}

// Path returns the absolute artifact path being watched.
func (w *ArtifactWatcher) Path() string { return w.path }

// WaitForResult blocks until a change to the artifact is attributed to the
// invocation dispatched at sendTime, then parses and returns the artifact.
// Stale writes are filtered silently; partial writes are retried on the next
// change event. Returns ctx.Err() when the context expires first.
func (w *ArtifactWatcher) WaitForResult(ctx context.Context, sendTime time.Time) (*types.ResultArtifact, error) {
	// The artifact may already be in place by the time the watch starts,
	// e.g. when the process exited before the watcher was consulted.
	if artifact, ok := w.tryRead(sendTime); ok {
		return artifact, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil, fmt.Errorf("artifact watcher closed")
			}
			if event.Name != w.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if artifact, ok := w.tryRead(sendTime); ok {
				return artifact, nil
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil, fmt.Errorf("artifact watcher closed")
			}
			w.log.Warn("Filesystem watcher error", "err", err)
		}
	}
}

// tryRead attributes and parses the artifact, reporting ok=false for stale
// writes, missing files and partial writes alike.
func (w *ArtifactWatcher) tryRead(sendTime time.Time) (*types.ResultArtifact, bool) {
	accepted, err := w.correlator.Attribute(sendTime, w.path)
	if err != nil {
		return nil, false
	}
	if !accepted {
		metrics.RecordStaleArtifact()
		return nil, false
	}

	f, err := os.Open(w.path)
	if err != nil {
		return nil, false
	}
	artifact, err := types.ParseArtifact(f)
	_ = f.Close()
	if err != nil {
		// Likely mid-flush. Give the writer a moment and retry once before
		// falling back to the next change event.
		time.Sleep(reparseDelay)
		f, reopenErr := os.Open(w.path)
		if reopenErr != nil {
			return nil, false
		}
		artifact, err = types.ParseArtifact(f)
		_ = f.Close()
		if err != nil {
			w.log.Debug("Artifact not yet parseable", "path", w.path, "err", err)
			return nil, false
		}
	}
	return artifact, true
}

// Close releases the filesystem watch.
func (w *ArtifactWatcher) Close() error {
	return w.fs.Close()
}
