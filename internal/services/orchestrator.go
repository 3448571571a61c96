package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
	"github.com/Lllllllleong/financialdocumentflow/internal/progress"
)

// Processor runs one document end to end.
type Processor interface {
	Process(ctx context.Context, ref models.DocumentRef) Outcome
}

// BatchResult lists what happened to the documents of one run.
type BatchResult struct {
	Completed   []string
	Failed      []string
	Interrupted bool
}

// Orchestrator feeds documents through a Processor one at a time and records
// each outcome with the progress tracker.
type Orchestrator struct {
	processor Processor
	tracker   *progress.Tracker
}

// NewOrchestrator creates an orchestrator over an initialized or loaded tracker.
func NewOrchestrator(processor Processor, tracker *progress.Tracker) *Orchestrator {
	return &Orchestrator{processor: processor, tracker: tracker}
}

// Run processes docs in order. Document failures are recorded and do not stop
// the batch. It returns early when ctx is cancelled, leaving the in-flight
// document in the remaining set, or when a checkpoint cannot be written.
func (o *Orchestrator) Run(ctx context.Context, docs []models.DocumentRef) (BatchResult, error) {
	var result BatchResult
	logCtx := slog.With("sessionFile", o.tracker.SessionFile())
	logCtx.Info("Starting batch.", "documents", len(docs))

	for i, doc := range docs {
		if ctx.Err() != nil {
			result.Interrupted = true
			logCtx.Warn("Batch interrupted; session can be resumed.", "remaining", len(o.tracker.RemainingDocuments()))
			return result, nil
		}

		docLog := logCtx.With("documentId", doc.ID, "position", i+1, "of", len(docs))
		if err := o.tracker.MarkProcessing(doc.ID, doc.Name); err != nil {
			if errors.Is(err, progress.ErrNotRemaining) {
				docLog.Warn("Skipping document that is not pending in this session.")
				continue
			}
			return result, fmt.Errorf("failed to checkpoint start of %s: %w", doc.ID, err)
		}

		outcome := o.processSafely(ctx, doc)
		if ctx.Err() != nil && !outcome.OK() {
			result.Interrupted = true
			docLog.Warn("Batch interrupted mid-document; it stays pending.", "error", outcome.Err)
			return result, nil
		}

		name := doc.Name
		if outcome.FileName != "" {
			name = outcome.FileName
		}

		if outcome.OK() {
			if err := o.tracker.MarkCompleted(doc.ID, name, outcome.Summary); err != nil {
				return result, fmt.Errorf("failed to checkpoint completion of %s: %w", doc.ID, err)
			}
			result.Completed = append(result.Completed, doc.ID)
			docLog.Info("Document completed.", "summaryLength", len(outcome.Summary), "links", len(outcome.Links))
			continue
		}

		docLog.Error("Document failed.", "error", outcome.Err)
		if err := o.tracker.MarkFailed(doc.ID, name, outcome.Err.Error()); err != nil {
			return result, fmt.Errorf("failed to checkpoint failure of %s: %w", doc.ID, err)
		}
		result.Failed = append(result.Failed, doc.ID)
	}

	logCtx.Info("Batch finished.", "completed", len(result.Completed), "failed", len(result.Failed))
	return result, nil
}

// processSafely turns a panic in the pipeline into a failed outcome.
func (o *Orchestrator) processSafely(ctx context.Context, doc models.DocumentRef) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{Err: fmt.Errorf("panic while processing document: %v", r)}
		}
	}()
	return o.processor.Process(ctx, doc)
}
