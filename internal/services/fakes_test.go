package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
)

type fakeSource struct {
	files map[string][]byte
	names map[string]string
	err   error
}

func (s *fakeSource) Download(ctx context.Context, ref models.DocumentRef) ([]byte, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	data, ok := s.files[ref.ID]
	if !ok {
		return nil, "", fmt.Errorf("document %s not found", ref.ID)
	}
	return data, s.names[ref.ID], nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (e fakeExtractor) Extract(pdf []byte) (ExtractedText, error) {
	if e.err != nil {
		return ExtractedText{}, e.err
	}
	return ExtractedText{Text: e.text, PageCount: 3}, nil
}

type fakePrompts struct{}

func (fakePrompts) BuildPrompt(ref models.DocumentRef, text string) (string, error) {
	return "summarize " + ref.Name, nil
}

type fakeSummarizer struct {
	summary string
	err     error
	reqs    []SummaryRequest
}

func (s *fakeSummarizer) Summarize(ctx context.Context, req SummaryRequest) (string, error) {
	s.reqs = append(s.reqs, req)
	return s.summary, s.err
}

type fakeDestination struct {
	name  string
	url   string
	err   error
	seen  []map[string]string
	infos []*models.DocumentInfo
}

func (d *fakeDestination) Name() string { return d.name }

func (d *fakeDestination) Persist(ctx context.Context, info *models.DocumentInfo, links map[string]string) (string, error) {
	copied := make(map[string]string, len(links))
	for k, v := range links {
		copied[k] = v
	}
	d.seen = append(d.seen, copied)
	d.infos = append(d.infos, info)
	return d.url, d.err
}

// scriptedProcessor returns a fixed outcome per document id.
type scriptedProcessor struct {
	outcomes map[string]Outcome
	panics   map[string]bool
	onCall   func(id string)
	calls    []string
}

func (p *scriptedProcessor) Process(ctx context.Context, ref models.DocumentRef) Outcome {
	p.calls = append(p.calls, ref.ID)
	if p.onCall != nil {
		p.onCall(ref.ID)
	}
	if p.panics[ref.ID] {
		panic("boom")
	}
	if ctx.Err() != nil {
		return Outcome{Err: ctx.Err()}
	}
	if o, ok := p.outcomes[ref.ID]; ok {
		return o
	}
	return Outcome{Summary: "summary of " + ref.ID}
}

var errTimeout = errors.New("timeout")
