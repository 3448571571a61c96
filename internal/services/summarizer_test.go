package services

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"
)

type fakeGenerator struct {
	responses []string
	errs      []error
	calls     int
	lastParts []genai.Part
}

func (g *fakeGenerator) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	i := g.calls
	g.calls++
	g.lastParts = parts
	if i < len(g.errs) && g.errs[i] != nil {
		return nil, g.errs[i]
	}
	text := ""
	if i < len(g.responses) {
		text = g.responses[i]
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(text)}},
		}},
	}, nil
}

func newTestSummarizer(g generator) *VertexSummarizer {
	return &VertexSummarizer{model: g, maxRetries: 3}
}

func TestSummarizeStripsFences(t *testing.T) {
	g := &fakeGenerator{responses: []string{"```markdown\nRates held steady.\n```"}}
	got, err := newTestSummarizer(g).Summarize(context.Background(), SummaryRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "Rates held steady." {
		t.Errorf("Summarize() = %q", got)
	}
	if len(g.lastParts) != 1 {
		t.Errorf("sent %d parts, want prompt only", len(g.lastParts))
	}
}

func TestSummarizeAttachesPDF(t *testing.T) {
	g := &fakeGenerator{responses: []string{"ok"}}
	_, err := newTestSummarizer(g).Summarize(context.Background(), SummaryRequest{Prompt: "p", PDF: []byte("%PDF")})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if len(g.lastParts) != 2 {
		t.Fatalf("sent %d parts, want 2", len(g.lastParts))
	}
	blob, ok := g.lastParts[0].(genai.Blob)
	if !ok || blob.MIMEType != "application/pdf" {
		t.Errorf("first part = %#v, want PDF blob", g.lastParts[0])
	}
}

func TestSummarizeRetriesTransientErrors(t *testing.T) {
	g := &fakeGenerator{
		errs:      []error{errors.New("unavailable"), nil},
		responses: []string{"", "Inflation eased."},
	}
	got, err := newTestSummarizer(g).Summarize(context.Background(), SummaryRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "Inflation eased." || g.calls != 2 {
		t.Errorf("Summarize() = %q after %d calls", got, g.calls)
	}
}

func TestSummarizeRefusalIsNotRetried(t *testing.T) {
	g := &fakeGenerator{responses: []string{"As a large language model, I cannot help.", "fine"}}
	_, err := newTestSummarizer(g).Summarize(context.Background(), SummaryRequest{Prompt: "p"})
	if !errors.Is(err, ErrRefusal) {
		t.Fatalf("Summarize() error = %v, want ErrRefusal", err)
	}
	if g.calls != 1 {
		t.Errorf("calls = %d, want 1", g.calls)
	}
}

func TestSummarizeEmptyResponse(t *testing.T) {
	g := &fakeGenerator{}
	_, err := newTestSummarizer(g).Summarize(context.Background(), SummaryRequest{Prompt: "p"})
	if !errors.Is(err, ErrEmptySummary) {
		t.Fatalf("Summarize() error = %v, want ErrEmptySummary", err)
	}
	if g.calls != 3 {
		t.Errorf("calls = %d, want 3", g.calls)
	}
}
