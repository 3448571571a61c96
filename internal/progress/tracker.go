package progress

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
)

var (
	// ErrAlreadyInitialized is returned when InitializeDocuments is called on a
	// tracker that already holds a session.
	ErrAlreadyInitialized = errors.New("progress tracker already initialized")
	// ErrNotRemaining is returned when a document is marked that is not waiting
	// to be processed in this session.
	ErrNotRemaining = errors.New("document is not in the remaining set")
)

// Tracker owns one session's state and checkpoints it to disk after every
// change.
type Tracker struct {
	store  *Store
	state  *SessionState
	loaded bool
	logger *slog.Logger
	out    io.Writer
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithOutput sets where the listing and progress display are written.
func WithOutput(w io.Writer) Option {
	return func(t *Tracker) { t.out = w }
}

// WithLogger sets the tracker's logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker prepares a session named sessionName, or a timestamped session
// when the name is empty. Nothing is written until InitializeDocuments.
func NewTracker(store *Store, sessionName string, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		logger: slog.Default(),
		out:    os.Stdout,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	start := t.clock()
	t.state = newSessionState(store.SessionPath(sessionName, start), start)
	t.logger = t.logger.With("sessionFile", t.state.SessionFile)
	return t
}

func (t *Tracker) clock() time.Time {
	return t.now().UTC()
}

// InitializeDocuments sets the batch for a fresh session and persists it.
// Repeated IDs keep their first occurrence.
func (t *Tracker) InitializeDocuments(docs []models.DocumentRef) error {
	if t.loaded {
		return ErrAlreadyInitialized
	}
	t.loaded = true

	seen := make(map[string]struct{}, len(docs))
	t.state.Documents = make([]models.DocumentRef, 0, len(docs))
	t.state.RemainingDocuments = make([]string, 0, len(docs))
	for _, d := range docs {
		if _, dup := seen[d.ID]; dup {
			t.logger.Warn("Skipping duplicate document in batch.", "documentId", d.ID)
			continue
		}
		seen[d.ID] = struct{}{}
		t.state.Documents = append(t.state.Documents, d)
		t.state.RemainingDocuments = append(t.state.RemainingDocuments, d.ID)
	}
	t.state.TotalDocuments = len(t.state.Documents)
	t.state.Status = StatusInitialized

	err := t.persist(false)
	fmt.Fprint(t.out, renderDocumentListing(t.state.Documents))
	return err
}

// MarkProcessing records that work on a document has started.
func (t *Tracker) MarkProcessing(id, name string) error {
	if !t.state.isRemaining(id) {
		return fmt.Errorf("mark processing %s: %w", id, ErrNotRemaining)
	}
	t.state.Status = StatusProcessing
	t.state.CurrentDocument = &CurrentDocument{ID: id, Name: name, StartTime: t.clock()}
	return t.persist(false)
}

// MarkCompleted records a successful document. A completion without a
// matching MarkProcessing records a zero duration.
func (t *Tracker) MarkCompleted(id, name, summary string) error {
	if !t.state.isRemaining(id) {
		return fmt.Errorf("mark completed %s: %w", id, ErrNotRemaining)
	}
	now := t.clock()

	elapsed := 0.0
	if cur := t.state.CurrentDocument; cur != nil && cur.ID == id {
		elapsed = now.Sub(cur.StartTime).Seconds()
	} else {
		t.logger.Warn("Completed a document that was not marked as processing.", "documentId", id)
	}
	t.state.ProcessingTimes = append(t.state.ProcessingTimes, elapsed)

	t.state.ProcessedCount++
	t.state.ProcessedDocuments = append(t.state.ProcessedDocuments, ProcessedDocument{
		ID:            id,
		Name:          name,
		CompletedAt:   now,
		SummaryLength: len(summary),
	})
	t.state.removeRemaining(id)
	t.state.CurrentDocument = nil
	t.state.LastCheckpoint = &now
	t.state.refreshStatus()

	err := t.persist(false)
	fmt.Fprint(t.out, renderProgress(t.state))
	return err
}

// MarkFailed records a failed document in the session and the ledger.
func (t *Tracker) MarkFailed(id, name, reason string) error {
	if !t.state.isRemaining(id) {
		return fmt.Errorf("mark failed %s: %w", id, ErrNotRemaining)
	}
	t.state.FailedCount++
	t.state.FailedDocuments = append(t.state.FailedDocuments, FailedDocument{
		ID:       id,
		Name:     name,
		Error:    reason,
		FailedAt: t.clock(),
	})
	t.state.removeRemaining(id)
	t.state.CurrentDocument = nil
	t.state.refreshStatus()

	err := t.persist(true)
	fmt.Fprint(t.out, renderProgress(t.state))
	return err
}

// LoadSession replaces the tracker's state with a saved session. On failure
// it logs, returns false, and leaves the current state untouched.
func (t *Tracker) LoadSession(ref string) bool {
	state, err := t.store.LoadSession(ref)
	if err != nil {
		t.logger.Warn("Could not load session.", "session", ref, "error", err)
		return false
	}
	t.state = state
	t.loaded = true
	t.logger = t.logger.With("sessionFile", state.SessionFile)
	t.logger.Info("Loaded session.",
		"processed", state.ProcessedCount,
		"failed", state.FailedCount,
		"total", state.TotalDocuments,
	)
	return true
}

// RemainingDocuments returns the IDs still to process, in document order.
func (t *Tracker) RemainingDocuments() []string {
	return append([]string{}, t.state.RemainingDocuments...)
}

// ShouldResume reports whether any documents are left.
func (t *Tracker) ShouldResume() bool {
	return len(t.state.RemainingDocuments) > 0
}

// SessionFile returns the path the session is checkpointed to.
func (t *Tracker) SessionFile() string {
	return t.state.SessionFile
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() *SessionState {
	return t.state.Clone()
}

// SummaryReport renders the end-of-run report.
func (t *Tracker) SummaryReport() string {
	return renderSummaryReport(t.state)
}

// persist writes the session, and the ledger when withLedger is set. Errors
// are logged and returned; the in-memory transition has already happened.
func (t *Tracker) persist(withLedger bool) error {
	var errs []error
	if err := t.store.SaveSession(t.state); err != nil {
		errs = append(errs, err)
	}
	if withLedger {
		if err := t.store.MergeFailures(t.state.SessionFile, t.state.FailedDocuments, t.clock()); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		t.logger.Error("CRITICAL: Failed to checkpoint progress.", "error", err)
	}
	return err
}
