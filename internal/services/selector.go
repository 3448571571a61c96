package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
	"github.com/Lllllllleong/financialdocumentflow/internal/progress"
)

// Mode chooses how a bulk run picks its documents.
type Mode int

const (
	ModeFresh Mode = iota
	ModeResume
	ModeRetryFailed
)

// ResumeLatest asks for the most recently modified session.
const ResumeLatest = "latest"

// ErrSessionNotFound is returned when a named session cannot be loaded.
var ErrSessionNotFound = errors.New("session not found")

// Lister returns the freshly listed documents for a run.
type Lister func(ctx context.Context) ([]models.DocumentRef, error)

// SelectOptions describes the requested run.
type SelectOptions struct {
	Mode        Mode
	Resume      string // ResumeLatest, a session name, or a path
	SessionName string // name for a new session; timestamped when empty
	List        Lister
	// Intersect limits a resumed session to documents the lister still returns.
	Intersect      bool
	TrackerOptions []progress.Option
}

// Selection is the working set for a run. Tracker is nil when there is
// nothing to do; Message then says why.
type Selection struct {
	Tracker   *progress.Tracker
	Documents []models.DocumentRef
	Resumed   bool
	Message   string
}

// SelectSession resolves the run mode into a tracker and the documents to
// process.
func SelectSession(ctx context.Context, store *progress.Store, opts SelectOptions) (*Selection, error) {
	switch opts.Mode {
	case ModeResume:
		return selectResume(ctx, store, opts)
	case ModeRetryFailed:
		return selectRetryFailed(store, opts)
	default:
		return selectFresh(ctx, store, opts)
	}
}

func selectFresh(ctx context.Context, store *progress.Store, opts SelectOptions) (*Selection, error) {
	if opts.List == nil {
		return nil, errors.New("no document source configured for a fresh run")
	}
	docs, err := opts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		return &Selection{Message: "No documents found matching the filter."}, nil
	}
	return initialize(store, opts, docs)
}

func selectResume(ctx context.Context, store *progress.Store, opts SelectOptions) (*Selection, error) {
	ref := opts.Resume
	if ref == "" || ref == ResumeLatest {
		latest, err := store.LatestSession()
		if err != nil {
			return nil, err
		}
		if latest == "" {
			slog.Warn("No previous session found, starting a fresh run.", "dir", store.Dir())
			return selectFresh(ctx, store, opts)
		}
		ref = latest
	}

	tracker := progress.NewTracker(store, "", opts.TrackerOptions...)
	if !tracker.LoadSession(ref) {
		return nil, fmt.Errorf("failed to resume %s: %w", ref, ErrSessionNotFound)
	}
	if !tracker.ShouldResume() {
		return &Selection{
			Resumed: true,
			Message: fmt.Sprintf("Nothing to resume: session %s has no remaining documents.", tracker.SessionFile()),
		}, nil
	}

	remaining := make(map[string]bool)
	for _, id := range tracker.RemainingDocuments() {
		remaining[id] = true
	}
	if opts.Intersect && opts.List != nil {
		listed, err := opts.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		current := make(map[string]bool, len(listed))
		for _, d := range listed {
			current[d.ID] = true
		}
		for id := range remaining {
			if !current[id] {
				delete(remaining, id)
			}
		}
	}

	var docs []models.DocumentRef
	for _, d := range tracker.Snapshot().Documents {
		if remaining[d.ID] {
			docs = append(docs, d)
		}
	}
	sel := &Selection{Tracker: tracker, Documents: docs, Resumed: true}
	if len(docs) == 0 {
		sel.Message = "No remaining documents from the session match the current filter."
	}
	return sel, nil
}

func selectRetryFailed(store *progress.Store, opts SelectOptions) (*Selection, error) {
	failed := progress.LoadFailedDocuments(store.Dir())
	if len(failed) == 0 {
		return &Selection{Message: "No failed documents to retry."}, nil
	}
	docs := make([]models.DocumentRef, 0, len(failed))
	for _, f := range failed {
		docs = append(docs, models.DocumentRef{ID: f.ID, Name: f.Name})
	}
	return initialize(store, opts, docs)
}

func initialize(store *progress.Store, opts SelectOptions, docs []models.DocumentRef) (*Selection, error) {
	tracker := progress.NewTracker(store, opts.SessionName, opts.TrackerOptions...)
	if err := tracker.InitializeDocuments(docs); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return &Selection{Tracker: tracker, Documents: docs}, nil
}
