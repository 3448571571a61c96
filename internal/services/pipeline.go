package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
)

// minTextChars is the shortest text layer worth prompting with; anything
// shorter is treated as a scanned document and the PDF is attached.
const minTextChars = 200

// ErrEmptyDocument is returned for a zero-byte download.
var ErrEmptyDocument = errors.New("downloaded document is empty")

// Outcome is the result of running one document through the pipeline.
type Outcome struct {
	Summary  string
	FileName string
	Links    map[string]string // destination name -> URL
	Err      error
}

// OK reports whether the document was summarized and stored everywhere.
func (o Outcome) OK() bool { return o.Err == nil }

// Pipeline runs download, extract, summarize and persist for one document.
type Pipeline struct {
	Source       Downloader
	Extractor    TextExtractor
	Prompts      PromptBuilder
	Summarizer   Summarizer
	Destinations []Destination
	// SkipSummary stores the document without calling the model.
	SkipSummary bool
}

// Process never panics on collaborator errors; they come back in Outcome.Err.
func (p *Pipeline) Process(ctx context.Context, ref models.DocumentRef) Outcome {
	logCtx := slog.With("documentId", ref.ID)

	// --- 1. Download ---
	pdf, fileName, err := p.Source.Download(ctx, ref)
	if err != nil {
		return Outcome{Err: fmt.Errorf("failed to download document: %w", err)}
	}
	if len(pdf) == 0 {
		return Outcome{FileName: fileName, Err: ErrEmptyDocument}
	}
	if fileName == "" {
		fileName = ref.Name
	}
	ref.Name = fileName
	info := &models.DocumentInfo{
		Ref:      ref,
		FileName: fileName,
		FileHash: calculateFileHash(pdf),
		PDF:      pdf,
	}
	logCtx.Info("Document downloaded.", "fileName", fileName, "bytes", len(pdf), "fileHash", info.FileHash)

	// --- 2. Extract and summarize ---
	if !p.SkipSummary {
		summary, pageCount, err := p.summarize(ctx, logCtx, ref, pdf)
		if err != nil {
			return Outcome{FileName: fileName, Err: err}
		}
		info.Summary = summary
		info.PageCount = pageCount
	}

	// --- 3. Persist ---
	links := make(map[string]string)
	for _, dest := range p.Destinations {
		url, err := dest.Persist(ctx, info, links)
		if err != nil {
			return Outcome{
				Summary:  info.Summary,
				FileName: fileName,
				Links:    links,
				Err:      fmt.Errorf("failed to save to %s: %w", dest.Name(), err),
			}
		}
		if url != "" {
			links[dest.Name()] = url
		}
		logCtx.Info("Saved to destination.", "destination", dest.Name(), "url", url)
	}

	return Outcome{Summary: info.Summary, FileName: fileName, Links: links}
}

func (p *Pipeline) summarize(ctx context.Context, logCtx *slog.Logger, ref models.DocumentRef, pdf []byte) (string, int, error) {
	req := SummaryRequest{}
	extracted, err := p.Extractor.Extract(pdf)
	switch {
	case err != nil:
		logCtx.Warn("Text extraction failed, attaching PDF instead.", "error", err)
		req.PDF = pdf
	case len(strings.TrimSpace(extracted.Text)) < minTextChars:
		logCtx.Warn("Text layer too short, attaching PDF instead.", "chars", len(extracted.Text), "pages", extracted.PageCount)
		req.PDF = pdf
	case !readableText(extracted.Text):
		logCtx.Warn("Text layer is not readable, attaching PDF instead.", "bytes", len(extracted.Text), "pages", extracted.PageCount)
		req.PDF = pdf
		extracted.Text = ""
	}
	extracted.Text = cleanText(extracted.Text)

	prompt, err := p.Prompts.BuildPrompt(ref, extracted.Text)
	if err != nil {
		return "", 0, err
	}
	req.Prompt = prompt

	summary, err := p.Summarizer.Summarize(ctx, req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to summarize document: %w", err)
	}
	logCtx.Info("Summary generated.", "summaryLength", len(summary))
	return summary, extracted.PageCount, nil
}

// calculateFileHash computes the SHA256 hash of the document bytes.
func calculateFileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
