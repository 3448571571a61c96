// Package destinations stores summarized documents: a Notion page, a Google
// Sheets row, a Firestore record, a GCS archive and a local SQLite catalog.
package destinations

import (
	"context"
	"log/slog"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
)

// Destination names, also used as keys of the pipeline's link map.
const (
	NameNotion    = "notion"
	NameSheets    = "sheets"
	NameFirestore = "firestore"
	NameArchive   = "archive"
	NameSQLite    = "sqlite"
)

type pageCreator interface {
	CreateSummaryPage(ctx context.Context, title, summary string) (string, error)
}

// Notion creates one wiki page per summary.
type Notion struct {
	client pageCreator
}

func NewNotion(client pageCreator) *Notion {
	return &Notion{client: client}
}

func (n *Notion) Name() string { return NameNotion }

// Persist creates the page and returns its URL. Documents without a summary
// get no page.
func (n *Notion) Persist(ctx context.Context, info *models.DocumentInfo, links map[string]string) (string, error) {
	if info.Summary == "" {
		slog.Info("No summary, skipping Notion page.", "documentId", info.Ref.ID)
		return "", nil
	}
	return n.client.CreateSummaryPage(ctx, pageTitle(info), info.Summary)
}

func pageTitle(info *models.DocumentInfo) string {
	switch {
	case info.FileName != "":
		return info.FileName
	case info.Ref.Name != "":
		return info.Ref.Name
	default:
		return "Untitled Document"
	}
}
