package destinations

import (
	"context"
	"testing"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
)

type fakePages struct {
	titles []string
}

func (f *fakePages) CreateSummaryPage(ctx context.Context, title, summary string) (string, error) {
	f.titles = append(f.titles, title)
	return "https://notion.so/" + title, nil
}

func TestNotionPersist(t *testing.T) {
	pages := &fakePages{}
	n := NewNotion(pages)

	url, err := n.Persist(context.Background(), &models.DocumentInfo{
		Ref:      models.DocumentRef{ID: "1", Name: "listed name"},
		FileName: "Q3.pdf",
		Summary:  "s",
	}, nil)
	if err != nil || url != "https://notion.so/Q3.pdf" {
		t.Errorf("Persist() = %q, %v", url, err)
	}

	url, err = n.Persist(context.Background(), &models.DocumentInfo{Ref: models.DocumentRef{ID: "2"}}, nil)
	if err != nil || url != "" {
		t.Errorf("Persist() without summary = %q, %v", url, err)
	}
	if len(pages.titles) != 1 {
		t.Errorf("pages created = %d, want 1", len(pages.titles))
	}
}

func TestPageTitle(t *testing.T) {
	if got := pageTitle(&models.DocumentInfo{}); got != "Untitled Document" {
		t.Errorf("pageTitle() = %q", got)
	}
	if got := pageTitle(&models.DocumentInfo{Ref: models.DocumentRef{Name: "n"}}); got != "n" {
		t.Errorf("pageTitle() = %q", got)
	}
}
