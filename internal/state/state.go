// Package state persists pkglens data as whole-document JSON files.
//
// Each artifact (verification map, last-known snapshot, history log, pending
// removal markers) is one independently loadable/saveable file under the
// state directory. Reads and writes are whole-file; last writer wins. An
// unreadable or corrupt file degrades to empty state with a warning rather
// than failing the operation.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/pkglens/internal/manager"
)

const (
	verificationFile = "verification_status.json"
	snapshotFile     = "previous_packages.json"
	historyFile      = "uninstall_history.json"
	pendingFile      = "pending_removals.json"
)

// HistoryCap bounds the uninstall history log to the most recent entries.
const HistoryCap = 100

// RemovalSource records how a package left the system.
type RemovalSource string

const (
	SourceDashboard RemovalSource = "dashboard"
	SourceExternal  RemovalSource = "external"
)

// Snapshot is the full (manager, name) -> version set observed at one
// collection pass, keyed by identity key.
type Snapshot struct {
	TakenAt  time.Time         `json:"taken_at"`
	Packages map[string]string `json:"packages"`
}

// HistoryEntry is one removal event. Entries are append-only.
type HistoryEntry struct {
	Manager   manager.Manager `json:"manager"`
	Name      string          `json:"name"`
	Version   string          `json:"version"`
	RemovedAt time.Time       `json:"removed_at"`
	Source    RemovalSource   `json:"source"`
}

// PendingRemoval marks an uninstall the dashboard is about to perform, so
// the next snapshot diff can classify the disappearance as user-driven.
type PendingRemoval struct {
	Manager  manager.Manager `json:"manager"`
	Name     string          `json:"name"`
	MarkedAt time.Time       `json:"marked_at"`
}

// PersistenceError indicates a state file could not be read or written.
// Callers fall back to empty state and surface a warning; it is never fatal.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("state file %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store reads and writes the JSON state files in one directory.
type Store struct {
	dir string
	log *zap.Logger
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{dir: dir, log: log}, nil
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// DefaultDir returns ~/.pkglens.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".pkglens"), nil
}

// LoadVerification returns the persisted verification status map, keyed by
// identity key. Missing or corrupt files yield an empty map.
func (s *Store) LoadVerification() map[string]manager.VerificationStatus {
	statuses := make(map[string]manager.VerificationStatus)
	s.load(verificationFile, &statuses)
	if statuses == nil {
		statuses = make(map[string]manager.VerificationStatus)
	}
	return statuses
}

// SaveVerification overwrites the verification status map.
func (s *Store) SaveVerification(statuses map[string]manager.VerificationStatus) error {
	return s.save(verificationFile, statuses)
}

// LoadSnapshot returns the last-known snapshot, or nil if none exists.
func (s *Store) LoadSnapshot() *Snapshot {
	var snap Snapshot
	if !s.load(snapshotFile, &snap) || snap.Packages == nil {
		return nil
	}
	return &snap
}

// SaveSnapshot overwrites the last-known snapshot.
func (s *Store) SaveSnapshot(snap *Snapshot) error {
	return s.save(snapshotFile, snap)
}

// LoadHistory returns the uninstall history log, oldest first.
func (s *Store) LoadHistory() []HistoryEntry {
	var entries []HistoryEntry
	s.load(historyFile, &entries)
	return entries
}

// AppendHistory appends entries to the log, trimming to HistoryCap.
func (s *Store) AppendHistory(entries ...HistoryEntry) error {
	history := append(s.LoadHistory(), entries...)
	if len(history) > HistoryCap {
		history = history[len(history)-HistoryCap:]
	}
	return s.save(historyFile, history)
}

// ClearHistory empties the log.
func (s *Store) ClearHistory() error {
	return s.save(historyFile, []HistoryEntry{})
}

// LoadPending returns the pending removal markers.
func (s *Store) LoadPending() []PendingRemoval {
	var pending []PendingRemoval
	s.load(pendingFile, &pending)
	return pending
}

// SavePending overwrites the pending removal markers.
func (s *Store) SavePending(pending []PendingRemoval) error {
	return s.save(pendingFile, pending)
}

// load reads a whole JSON document into v. Returns false when the file is
// missing; corrupt files log a warning and also return false.
func (s *Store) load(name string, v any) bool {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("state file unreadable, using empty state",
				zap.String("file", name), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.log.Warn("state file corrupt, using empty state",
			zap.String("file", name), zap.Error(err))
		return false
	}
	return true
}

// save writes v as a whole JSON document.
func (s *Store) save(name string, v any) error {
	path := filepath.Join(s.dir, name)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	return nil
}
