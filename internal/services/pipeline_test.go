package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
)

func newTestPipeline(text string, dests ...Destination) (*Pipeline, *fakeSummarizer) {
	sum := &fakeSummarizer{summary: "Rates held."}
	return &Pipeline{
		Source: &fakeSource{
			files: map[string][]byte{"A": []byte("%PDF-A")},
			names: map[string]string{"A": "Fund A Q3.pdf"},
		},
		Extractor:    fakeExtractor{text: text},
		Prompts:      fakePrompts{},
		Summarizer:   sum,
		Destinations: dests,
	}, sum
}

func TestPipelineProcessSuccess(t *testing.T) {
	notion := &fakeDestination{name: "notion", url: "https://notion.so/page"}
	sheets := &fakeDestination{name: "sheets", url: "https://docs.google.com/spreadsheets/d/x"}
	catalog := &fakeDestination{name: "sqlite"}
	p, sum := newTestPipeline(strings.Repeat("text ", 100), notion, sheets, catalog)

	out := p.Process(context.Background(), models.DocumentRef{ID: "A", Name: "A"})
	if !out.OK() {
		t.Fatalf("Process() error = %v", out.Err)
	}
	if out.Summary != "Rates held." || out.FileName != "Fund A Q3.pdf" {
		t.Errorf("Process() = %+v", out)
	}
	if len(out.Links) != 2 || out.Links["notion"] == "" || out.Links["sheets"] == "" {
		t.Errorf("Links = %v, want notion and sheets", out.Links)
	}
	if got := sheets.seen[0]["notion"]; got != "https://notion.so/page" {
		t.Errorf("sheets saw notion link %q", got)
	}
	if len(sum.reqs) != 1 || sum.reqs[0].PDF != nil {
		t.Errorf("summarizer requests = %+v, want text-only prompt", sum.reqs)
	}
	if sum.reqs[0].Prompt != "summarize Fund A Q3.pdf" {
		t.Errorf("prompt = %q, want real file name", sum.reqs[0].Prompt)
	}
	info := catalog.infos[0]
	if info.FileHash != calculateFileHash([]byte("%PDF-A")) || info.PageCount != 3 || info.Summary != "Rates held." {
		t.Errorf("DocumentInfo = %+v", info)
	}
}

func TestPipelineAttachesPDFWhenTextIsShort(t *testing.T) {
	p, sum := newTestPipeline("tiny")
	if out := p.Process(context.Background(), models.DocumentRef{ID: "A"}); !out.OK() {
		t.Fatalf("Process() error = %v", out.Err)
	}
	if string(sum.reqs[0].PDF) != "%PDF-A" {
		t.Errorf("PDF not attached for short text layer")
	}
}

func TestPipelineAttachesPDFWhenExtractionFails(t *testing.T) {
	p, sum := newTestPipeline("")
	p.Extractor = fakeExtractor{err: errors.New("bad xref")}
	if out := p.Process(context.Background(), models.DocumentRef{ID: "A"}); !out.OK() {
		t.Fatalf("Process() error = %v", out.Err)
	}
	if sum.reqs[0].PDF == nil {
		t.Errorf("PDF not attached after extraction failure")
	}
}

type recordingPrompts struct {
	texts []string
}

func (r *recordingPrompts) BuildPrompt(ref models.DocumentRef, text string) (string, error) {
	r.texts = append(r.texts, text)
	return "summarize " + ref.Name + "\n" + text, nil
}

func TestPipelineTextLayerDecoding(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantPDF    bool
		wantPrompt string
	}{
		{
			name:       "accented text is kept",
			text:       strings.Repeat("Net asset value, café fund. ", 10),
			wantPrompt: strings.Repeat("Net asset value, café fund. ", 10),
		},
		{
			name:    "raw single-byte glyphs attach the PDF",
			text:    strings.Repeat("Net asset value, caf\xe9 fund. ", 10),
			wantPDF: true,
		},
		{
			name:    "undecoded CID codes attach the PDF",
			text:    strings.Repeat("\x01\xa2\x03\xf4", 80),
			wantPDF: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, sum := newTestPipeline(tt.text)
			prompts := &recordingPrompts{}
			p.Prompts = prompts
			if out := p.Process(context.Background(), models.DocumentRef{ID: "A"}); !out.OK() {
				t.Fatalf("Process() error = %v", out.Err)
			}
			if got := sum.reqs[0].PDF != nil; got != tt.wantPDF {
				t.Errorf("PDF attached = %v, want %v", got, tt.wantPDF)
			}
			if prompts.texts[0] != tt.wantPrompt {
				t.Errorf("prompt text = %q, want %q", prompts.texts[0], tt.wantPrompt)
			}
			if !utf8.ValidString(sum.reqs[0].Prompt) {
				t.Errorf("prompt is not valid UTF-8: %q", sum.reqs[0].Prompt)
			}
		})
	}
}

func TestPipelineFailures(t *testing.T) {
	t.Run("download", func(t *testing.T) {
		p, _ := newTestPipeline("")
		out := p.Process(context.Background(), models.DocumentRef{ID: "missing"})
		if out.OK() || !strings.Contains(out.Err.Error(), "failed to download") {
			t.Errorf("Process() = %+v, want download failure", out)
		}
	})
	t.Run("empty file", func(t *testing.T) {
		p, _ := newTestPipeline("")
		p.Source = &fakeSource{files: map[string][]byte{"A": {}}}
		out := p.Process(context.Background(), models.DocumentRef{ID: "A"})
		if !errors.Is(out.Err, ErrEmptyDocument) {
			t.Errorf("Process() error = %v, want ErrEmptyDocument", out.Err)
		}
	})
	t.Run("summarizer", func(t *testing.T) {
		p, sum := newTestPipeline("")
		sum.err = ErrRefusal
		out := p.Process(context.Background(), models.DocumentRef{ID: "A"})
		if !errors.Is(out.Err, ErrRefusal) || out.FileName != "Fund A Q3.pdf" {
			t.Errorf("Process() = %+v, want refusal with file name", out)
		}
	})
	t.Run("destination stops the chain", func(t *testing.T) {
		first := &fakeDestination{name: "notion", err: errors.New("401")}
		second := &fakeDestination{name: "sheets"}
		p, _ := newTestPipeline("", first, second)
		out := p.Process(context.Background(), models.DocumentRef{ID: "A"})
		if out.OK() || !strings.Contains(out.Err.Error(), "failed to save to notion") {
			t.Errorf("Process() error = %v", out.Err)
		}
		if len(second.seen) != 0 {
			t.Errorf("later destination ran after a failure")
		}
	})
}

func TestPipelineSkipSummary(t *testing.T) {
	dest := &fakeDestination{name: "archive"}
	p, sum := newTestPipeline("", dest)
	p.SkipSummary = true
	out := p.Process(context.Background(), models.DocumentRef{ID: "A"})
	if !out.OK() || out.Summary != "" {
		t.Fatalf("Process() = %+v", out)
	}
	if len(sum.reqs) != 0 {
		t.Errorf("summarizer called with SkipSummary")
	}
	if len(dest.infos) != 1 {
		t.Errorf("destination not called")
	}
}
