package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
)

func TestBuildPromptDefaultTemplate(t *testing.T) {
	p, err := NewTemplatePrompt("", 10)
	if err != nil {
		t.Fatalf("NewTemplatePrompt() error = %v", err)
	}
	ref := models.DocumentRef{
		ID:          "doc-1",
		Name:        "Q3 Letter.pdf",
		DataDate:    "2024-09-30",
		Allocations: []models.Allocation{{Investment: "Fund A"}},
	}

	got, err := p.BuildPrompt(ref, "  0123456789ABCDEF  ")
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	for _, want := range []string{"Document: Q3 Letter.pdf", "Fund: Fund A", "Type: Unknown", "Data date: 2024-09-30", "Content:\n0123456789"} {
		if !strings.Contains(got, want) {
			t.Errorf("BuildPrompt() missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "ABCDEF") {
		t.Errorf("BuildPrompt() did not cap content: %s", got)
	}
}

func TestBuildPromptOmitsEmptyDataDate(t *testing.T) {
	p, err := NewTemplatePrompt("", 0)
	if err != nil {
		t.Fatalf("NewTemplatePrompt() error = %v", err)
	}
	got, err := p.BuildPrompt(models.DocumentRef{ID: "x", Name: "x.pdf"}, "text")
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	if strings.Contains(got, "Data date") {
		t.Errorf("BuildPrompt() = %q, want no data date line", got)
	}
}

func TestBuildPromptFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.tmpl")
	if err := os.WriteFile(path, []byte("Summarize {{.Name}} for {{.Investment}}: {{.Content}}"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := NewTemplatePrompt(path, 100)
	if err != nil {
		t.Fatalf("NewTemplatePrompt() error = %v", err)
	}
	got, err := p.BuildPrompt(models.DocumentRef{ID: "x", Name: "r.pdf"}, "body")
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	if want := "Summarize r.pdf for Unknown: body"; got != want {
		t.Errorf("BuildPrompt() = %q, want %q", got, want)
	}
}

func TestNewTemplatePromptErrors(t *testing.T) {
	if _, err := NewTemplatePrompt(filepath.Join(t.TempDir(), "missing.tmpl"), 0); err == nil {
		t.Error("expected error for missing template file")
	}
	path := filepath.Join(t.TempDir(), "bad.tmpl")
	if err := os.WriteFile(path, []byte("{{.Name"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewTemplatePrompt(path, 0); err == nil {
		t.Error("expected error for malformed template")
	}
}

func TestCapRunes(t *testing.T) {
	if got := capRunes("héllo", 2); got != "hé" {
		t.Errorf("capRunes() = %q, want %q", got, "hé")
	}
	if got := capRunes("abc", 0); got != "abc" {
		t.Errorf("capRunes() with no limit = %q", got)
	}
}
