// Package store persists the last completed run per (workspaceRoot, task)
// in a small keyed JSON file. Last write wins; concurrent writers for the
// same key are not expected and not guarded against.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/glubean/runcore/types"
)

// Namespace prefixes every persisted key.
const Namespace = "glubean.lastRun"

// Store is a file-backed key-value store of LastRunRecord entries.
type Store struct {
	log  log.Logger
	path string
	mu   sync.Mutex
}

// NewStore creates a store persisting to path. The file is created lazily on
// the first Put.
func NewStore(logger log.Logger, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if logger == nil {
		logger = log.New()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store path %q: %w", path, err)
	}
	return &Store{log: logger, path: abs}, nil
}

// Key builds the persisted key for a workspace/task pair.
func Key(workspaceRoot, taskName string) string {
	return fmt.Sprintf("%s.%s.%s", Namespace, workspaceRoot, taskName)
}

// Get returns the persisted record for the pair, if any.
func (s *Store) Get(workspaceRoot, taskName string) (types.LastRunRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return types.LastRunRecord{}, false, err
	}
	rec, ok := records[Key(workspaceRoot, taskName)]
	return rec, ok, nil
}

// Put overwrites the record for the pair and rewrites the file atomically.
func (s *Store) Put(workspaceRoot, taskName string, rec types.LastRunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	records[Key(workspaceRoot, taskName)] = rec
	return s.write(records)
}

func (s *Store) read() (map[string]types.LastRunRecord, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return make(map[string]types.LastRunRecord), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run store: %w", err)
	}
	var records map[string]types.LastRunRecord
	if err := json.Unmarshal(data, &records); err != nil {
		// A corrupt store is not worth failing a run over. Start fresh.
		s.log.Warn("Run store unreadable, starting fresh", "path", s.path, "err", err)
		return make(map[string]types.LastRunRecord), nil
	}
	return records, nil
}

// write replaces the store file via a temp file and rename, atomic on POSIX
// when within the same filesystem.
func (s *Store) write(records map[string]types.LastRunRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp-%d", s.path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
