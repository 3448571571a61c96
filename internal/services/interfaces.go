package services

import (
	"context"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
)

// Downloader fetches a document's bytes and its real file name.
type Downloader interface {
	Download(ctx context.Context, ref models.DocumentRef) ([]byte, string, error)
}

// TextExtractor pulls the text layer out of a PDF.
type TextExtractor interface {
	Extract(pdf []byte) (ExtractedText, error)
}

// PromptBuilder turns a document and its text into an LLM prompt.
type PromptBuilder interface {
	BuildPrompt(ref models.DocumentRef, text string) (string, error)
}

// SummaryRequest is one summarization call. PDF is set when the text layer
// was unusable and the model should read the file itself.
type SummaryRequest struct {
	Prompt string
	PDF    []byte
}

// Summarizer produces an executive summary.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}

// Destination stores a summarized document. links holds the URLs returned
// by destinations that ran earlier, keyed by destination name.
type Destination interface {
	Name() string
	Persist(ctx context.Context, info *models.DocumentInfo, links map[string]string) (string, error)
}
