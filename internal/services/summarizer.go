package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/financialdocumentflow/internal/retry"
)

// ErrRefusal is returned when the model declines to summarize.
var ErrRefusal = errors.New("gemini response indicates refusal")

// ErrEmptySummary is returned when the model answers with no text.
var ErrEmptySummary = errors.New("gemini returned an empty summary")

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// generator is the part of *genai.GenerativeModel the summarizer calls.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexSummarizer asks Gemini for an executive summary.
type VertexSummarizer struct {
	model      generator
	maxRetries int
	retryDelay time.Duration
}

// NewVertexSummarizer wraps a configured generative model.
func NewVertexSummarizer(model *genai.GenerativeModel, maxRetries int) *VertexSummarizer {
	return &VertexSummarizer{model: model, maxRetries: maxRetries, retryDelay: 2 * time.Second}
}

// Summarize sends the prompt, plus the PDF itself when req.PDF is set, and
// returns the cleaned response text. Refusals are not retried.
func (s *VertexSummarizer) Summarize(ctx context.Context, req SummaryRequest) (string, error) {
	parts := make([]genai.Part, 0, 2)
	if len(req.PDF) > 0 {
		parts = append(parts, genai.Blob{MIMEType: "application/pdf", Data: req.PDF})
	}
	parts = append(parts, genai.Text(req.Prompt))

	var summary string
	err := retry.Do(ctx, s.maxRetries, s.retryDelay, "gemini.GenerateContent", func(ctx context.Context) error {
		resp, err := s.model.GenerateContent(ctx, parts...)
		if err != nil {
			return fmt.Errorf("failed to generate content from gemini: %w", err)
		}
		text := extractText(resp)
		if text == "" {
			return ErrEmptySummary
		}
		if isRefusal(text) {
			slog.Error("Gemini refused to summarize.", "response", text)
			return retry.Permanent(ErrRefusal)
		}
		summary = text
		return nil
	})
	if err != nil {
		return "", err
	}
	return summary, nil
}

// extractText joins the text parts of the first candidate and strips a
// surrounding code fence.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	text := strings.TrimSpace(b.String())
	text = strings.TrimPrefix(text, "```markdown")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func isRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
