package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// LedgerFileName is the cross-session failure ledger inside the progress dir.
const LedgerFileName = "failed_documents.json"

// DefaultDir is where sessions are kept when no directory is configured.
const DefaultDir = "data/progress"

var (
	// ErrCorruptLedger is returned when the ledger exists but cannot be parsed.
	ErrCorruptLedger = errors.New("failed documents ledger is corrupt")
	// ErrNotSession is returned when a file is JSON but not a session.
	ErrNotSession = errors.New("not a session file")
)

// Ledger accumulates failures across sessions so they can be retried.
type Ledger struct {
	Session         string           `json:"session"`
	Timestamp       time.Time        `json:"timestamp"`
	FailedDocuments []FailedDocument `json:"failed_documents"`
}

// Store reads and writes session files and the failure ledger in one
// directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir, creating the directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create progress directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the progress directory.
func (s *Store) Dir() string { return s.dir }

// LedgerPath returns the path of the failure ledger.
func (s *Store) LedgerPath() string { return filepath.Join(s.dir, LedgerFileName) }

// SessionPath returns the file for a named session, or a timestamped
// session_YYYYMMDD_HHMMSS.json when name is empty.
func (s *Store) SessionPath(name string, now time.Time) string {
	if name == "" {
		name = "session_" + now.Format("20060102_150405")
	}
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	return filepath.Join(s.dir, name)
}

// resolve maps a caller-supplied session reference to a file. Existing paths
// are used as given, anything else is looked up inside the progress dir.
func (s *Store) resolve(ref string) string {
	if _, err := os.Stat(ref); err == nil {
		return ref
	}
	candidate := filepath.Join(s.dir, ref)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	if !strings.HasSuffix(ref, ".json") {
		return filepath.Join(s.dir, ref+".json")
	}
	return candidate
}

// SaveSession atomically rewrites the session's file.
func (s *Store) SaveSession(state *SessionState) error {
	if err := writeJSONAtomic(state.SessionFile, state); err != nil {
		return fmt.Errorf("failed to save session %s: %w", state.SessionFile, err)
	}
	return nil
}

// LoadSession reads a session by path or by name within the progress dir.
func (s *Store) LoadSession(ref string) (*SessionState, error) {
	path := s.resolve(ref)
	if filepath.Base(path) == LedgerFileName {
		return nil, fmt.Errorf("%s: %w", path, ErrNotSession)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file %s: %w", path, err)
	}
	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", path, err)
	}
	if state.Status == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrNotSession)
	}
	state.SessionFile = path
	return &state, nil
}

// LatestSession returns the most recently modified session file, or "" when
// the directory holds none.
func (s *Store) LatestSession() (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to list progress directory: %w", err)
	}

	var latest string
	var latestMod time.Time
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == LedgerFileName || filepath.Ext(name) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = filepath.Join(s.dir, name)
			latestMod = info.ModTime()
		}
	}
	return latest, nil
}

// LoadLedger reads the failure ledger. A missing ledger is returned empty.
func (s *Store) LoadLedger() (*Ledger, error) {
	data, err := os.ReadFile(s.LedgerPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Ledger{FailedDocuments: []FailedDocument{}}, nil
		}
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	var ledger Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptLedger, err)
	}
	if ledger.FailedDocuments == nil {
		ledger.FailedDocuments = []FailedDocument{}
	}
	return &ledger, nil
}

// MergeFailures folds a session's failures into the ledger. Records are
// keyed by document ID and the first record seen for an ID is kept.
func (s *Store) MergeFailures(session string, failures []FailedDocument, at time.Time) error {
	ledger, err := s.LoadLedger()
	if err != nil {
		if !errors.Is(err, ErrCorruptLedger) {
			return err
		}
		slog.Warn("Replacing corrupt failed documents ledger.", "path", s.LedgerPath(), "error", err)
		ledger = &Ledger{FailedDocuments: []FailedDocument{}}
	}

	known := make(map[string]struct{}, len(ledger.FailedDocuments))
	for _, f := range ledger.FailedDocuments {
		known[f.ID] = struct{}{}
	}
	for _, f := range failures {
		if _, ok := known[f.ID]; ok {
			continue
		}
		known[f.ID] = struct{}{}
		ledger.FailedDocuments = append(ledger.FailedDocuments, f)
	}
	ledger.Session = session
	ledger.Timestamp = at

	if err := writeJSONAtomic(s.LedgerPath(), ledger); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}

// PruneLedger drops the given IDs from the ledger and reports how many
// records were removed.
func (s *Store) PruneLedger(ids []string) (int, error) {
	ledger, err := s.LoadLedger()
	if err != nil {
		return 0, err
	}
	before := len(ledger.FailedDocuments)
	ledger.FailedDocuments = slices.DeleteFunc(ledger.FailedDocuments, func(f FailedDocument) bool {
		return slices.Contains(ids, f.ID)
	})
	removed := before - len(ledger.FailedDocuments)
	if removed == 0 {
		return 0, nil
	}
	if err := writeJSONAtomic(s.LedgerPath(), ledger); err != nil {
		return 0, fmt.Errorf("failed to save ledger: %w", err)
	}
	return removed, nil
}

// LatestSession returns the newest session file in dir, or "".
func LatestSession(dir string) string {
	s := &Store{dir: dir}
	path, err := s.LatestSession()
	if err != nil {
		slog.Error("Failed to find latest session.", "dir", dir, "error", err)
		return ""
	}
	return path
}

// LoadFailedDocuments returns every ledger record in dir. A missing or
// unreadable ledger yields an empty list.
func LoadFailedDocuments(dir string) []FailedDocument {
	s := &Store{dir: dir}
	ledger, err := s.LoadLedger()
	if err != nil {
		slog.Error("Failed to load failed documents.", "path", s.LedgerPath(), "error", err)
		return []FailedDocument{}
	}
	return ledger.FailedDocuments
}

// PruneFailedDocuments removes resolved IDs from the ledger in dir.
func PruneFailedDocuments(dir string, ids []string) (int, error) {
	s := &Store{dir: dir}
	return s.PruneLedger(ids)
}

// writeJSONAtomic writes v next to path and renames it into place so a crash
// never leaves a half-written file.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
