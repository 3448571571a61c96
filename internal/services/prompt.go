package services

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
)

const defaultPromptTemplate = `Extract macroeconomic updates from this report (max 200 words).

Document: {{.Name}}
Fund: {{.Investment}}
Type: {{.DocumentType}}{{if .DataDate}}
Data date: {{.DataDate}}{{end}}

Content:
{{.Content}}`

// TemplatePrompt renders prompts from a text/template.
type TemplatePrompt struct {
	tmpl     *template.Template
	maxChars int
}

type promptData struct {
	Name         string
	Investment   string
	DocumentType string
	DataDate     string
	Content      string
}

// NewTemplatePrompt loads the template at path, or the built-in prompt when
// path is empty. Content longer than maxChars runes is cut.
func NewTemplatePrompt(path string, maxChars int) (*TemplatePrompt, error) {
	text := defaultPromptTemplate
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt template %s: %w", path, err)
		}
		text = string(raw)
	}
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &TemplatePrompt{tmpl: tmpl, maxChars: maxChars}, nil
}

// BuildPrompt renders the prompt for one document.
func (p *TemplatePrompt) BuildPrompt(ref models.DocumentRef, text string) (string, error) {
	data := promptData{
		Name:         ref.Name,
		Investment:   ref.Investment(),
		DocumentType: ref.Type(),
		DataDate:     ref.DataDate,
		Content:      capRunes(strings.TrimSpace(text), p.maxChars),
	}
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt for %s: %w", ref.ID, err)
	}
	return buf.String(), nil
}

func capRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
