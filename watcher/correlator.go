// Package watcher observes the result artifact and attributes writes to the
// invocation that triggered them.
package watcher

import (
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

var _ Correlator = (*mtimeCorrelator)(nil)

// Correlator decides whether a filesystem change to the result artifact
// belongs to the invocation dispatched at sendTime.
//
// The timestamp heuristic is deliberately isolated behind this interface: if
// the runner protocol ever embeds an invocation identifier in the artifact,
// only this implementation needs to change.
type Correlator interface {
	Attribute(sendTime time.Time, artifactPath string) (bool, error)
}

type mtimeCorrelator struct {
	log log.Logger
}

// NewCorrelator returns the modification-time based Correlator.
func NewCorrelator(logger log.Logger) Correlator {
	if logger == nil {
		logger = log.New()
	}
	return &mtimeCorrelator{log: logger}
}

// Attribute accepts the change when the artifact's mtime is not older than
// sendTime. A write that predates the dispatch is a stale or external write
// and is rejected. This is best-effort, not transactional: an unrelated
// write landing after sendTime is still accepted, which is why batch
// execution serializes dispatches.
func (c *mtimeCorrelator) Attribute(sendTime time.Time, artifactPath string) (bool, error) {
	info, err := os.Stat(artifactPath)
	if err != nil {
		return false, err
	}
	if info.ModTime().Before(sendTime) {
		c.log.Debug("Ignoring stale artifact write",
			"path", artifactPath, "mtime", info.ModTime(), "sendTime", sendTime)
		return false, nil
	}
	return true, nil
}
