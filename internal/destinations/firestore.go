package destinations

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/financialdocumentflow/internal/models"
)

const recordStatusCompleted = "completed"

// Firestore keeps a catalog record per document, keyed by document ID.
type Firestore struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

func NewFirestore(client *firestore.Client, collection string) *Firestore {
	return &Firestore{client: client, collection: collection, now: time.Now}
}

func (f *Firestore) Name() string { return NameFirestore }

// Persist writes the record. A document whose bytes match an earlier
// document is still stored, with DuplicateOf pointing at the earlier one.
func (f *Firestore) Persist(ctx context.Context, info *models.DocumentInfo, links map[string]string) (string, error) {
	logCtx := slog.With("documentId", info.Ref.ID, "fileHash", info.FileHash)
	docID := firestoreDocID(info.Ref.ID)

	duplicateOf, err := f.isDuplicate(ctx, info.FileHash, docID)
	if err != nil {
		return "", err
	}
	if duplicateOf != "" {
		logCtx.Info("Duplicate file detected.", "existingDocId", duplicateOf)
	}

	record := summaryRecord(info, links, duplicateOf, f.now().UTC())
	if _, err := f.client.Collection(f.collection).Doc(docID).Set(ctx, record); err != nil {
		return "", fmt.Errorf("failed to write firestore record: %w", err)
	}
	return "", nil
}

// isDuplicate returns the ID of another record with the same file hash.
func (f *Firestore) isDuplicate(ctx context.Context, fileHash, docID string) (string, error) {
	if fileHash == "" {
		return "", nil
	}
	docs, err := f.client.Collection(f.collection).Where("fileHash", "==", fileHash).Limit(2).Documents(ctx).GetAll()
	if err != nil {
		return "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	for _, d := range docs {
		if d.Ref.ID != docID {
			return d.Ref.ID, nil
		}
	}
	return "", nil
}

func summaryRecord(info *models.DocumentInfo, links map[string]string, duplicateOf string, now time.Time) models.SummaryRecord {
	return models.SummaryRecord{
		DocumentID:   info.Ref.ID,
		Name:         info.Ref.Name,
		FileName:     info.FileName,
		FileHash:     info.FileHash,
		DocumentType: info.Ref.Type(),
		DataDate:     info.Ref.DataDate,
		Investment:   info.Ref.Investment(),
		PageCount:    info.PageCount,
		Summary:      info.Summary,
		WikiURL:      links[NameNotion],
		DuplicateOf:  duplicateOf,
		Status:       recordStatusCompleted,
		CreatedAt:    now,
	}
}

// firestoreDocID makes an ID safe to use as a document name.
func firestoreDocID(id string) string {
	return strings.ReplaceAll(id, "/", "_")
}
