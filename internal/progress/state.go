// Package progress tracks a batch summarization session so that it can be
// interrupted, resumed, and have its failures retried later.
package progress

import (
	"slices"
	"time"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
)

// ProcessedDocument records a successful document. Only the summary length
// is kept; the summary itself lives in the destinations.
type ProcessedDocument struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CompletedAt   time.Time `json:"completed_at"`
	SummaryLength int       `json:"summary_length"`
}

// FailedDocument records a failed document. The same shape is used in the
// session file and in the cross-session ledger.
type FailedDocument struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// CurrentDocument is the document being worked on right now.
type CurrentDocument struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
}

// SessionState is the persisted form of one batch run.
type SessionState struct {
	SessionStart       time.Time            `json:"session_start"`
	SessionFile        string               `json:"session_file"`
	TotalDocuments     int                  `json:"total_documents"`
	ProcessedCount     int                  `json:"processed_count"`
	FailedCount        int                  `json:"failed_count"`
	Documents          []models.DocumentRef `json:"documents"`
	ProcessedDocuments []ProcessedDocument  `json:"processed_documents"`
	FailedDocuments    []FailedDocument     `json:"failed_documents"`
	RemainingDocuments []string             `json:"remaining_documents"`
	ProcessingTimes    []float64            `json:"processing_times"`
	CurrentDocument    *CurrentDocument     `json:"current_document,omitempty"`
	LastCheckpoint     *time.Time           `json:"last_checkpoint"`
	Status             Status               `json:"status"`
}

func newSessionState(sessionFile string, start time.Time) *SessionState {
	return &SessionState{
		SessionStart:       start,
		SessionFile:        sessionFile,
		Documents:          []models.DocumentRef{},
		ProcessedDocuments: []ProcessedDocument{},
		FailedDocuments:    []FailedDocument{},
		RemainingDocuments: []string{},
		ProcessingTimes:    []float64{},
		Status:             StatusInitialized,
	}
}

// Clone returns a deep copy that shares no slices with s.
func (s *SessionState) Clone() *SessionState {
	c := *s
	c.Documents = make([]models.DocumentRef, len(s.Documents))
	for i, d := range s.Documents {
		d.Allocations = slices.Clone(d.Allocations)
		c.Documents[i] = d
	}
	c.ProcessedDocuments = slices.Clone(s.ProcessedDocuments)
	c.FailedDocuments = slices.Clone(s.FailedDocuments)
	c.RemainingDocuments = slices.Clone(s.RemainingDocuments)
	c.ProcessingTimes = slices.Clone(s.ProcessingTimes)
	if s.CurrentDocument != nil {
		cur := *s.CurrentDocument
		c.CurrentDocument = &cur
	}
	if s.LastCheckpoint != nil {
		ts := *s.LastCheckpoint
		c.LastCheckpoint = &ts
	}
	return &c
}

func (s *SessionState) isRemaining(id string) bool {
	return slices.Contains(s.RemainingDocuments, id)
}

func (s *SessionState) removeRemaining(id string) {
	s.RemainingDocuments = slices.DeleteFunc(s.RemainingDocuments, func(r string) bool { return r == id })
}

func (s *SessionState) refreshStatus() {
	if s.ProcessedCount+s.FailedCount >= s.TotalDocuments {
		s.Status = StatusCompleted
	}
}
