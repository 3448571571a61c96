package destinations

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/financialdocumentflow/internal/gcp"
	"github.com/Lllllllleong/financialdocumentflow/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"
)

var nonAlphanumericRegex = regexp.MustCompile(`[^a-z0-9]+`)

type objectWriter func(ctx context.Context, objectName string, content []byte, contentType string) error

// Archive copies the source PDF, the summary and a metadata file into a
// bucket under one folder per document. Existing objects are left alone.
type Archive struct {
	bucket string
	write  objectWriter
	now    func() time.Time
}

type archiveMetadata struct {
	DocumentID    string            `json:"documentId"`
	Name          string            `json:"name"`
	FileName      string            `json:"fileName"`
	FileHash      string            `json:"fileHash"`
	DocumentType  string            `json:"documentType"`
	DataDate      string            `json:"dataDate,omitempty"`
	Investment    string            `json:"investment"`
	PageCount     int               `json:"pageCount"`
	SummaryLength int               `json:"summaryLength"`
	Links         map[string]string `json:"links,omitempty"`
	ArchivedAt    time.Time         `json:"archivedAt"`
}

type archiveObject struct {
	name        string
	content     []byte
	contentType string
}

func NewArchive(client *storage.Client, bucket string) *Archive {
	handle := client.Bucket(bucket)
	return &Archive{
		bucket: bucket,
		write: func(ctx context.Context, objectName string, content []byte, contentType string) error {
			return gcp.SaveToGCSAtomically(ctx, handle, objectName, content, contentType)
		},
		now: time.Now,
	}
}

func (a *Archive) Name() string { return NameArchive }

// Persist uploads the three objects concurrently and returns the folder URI.
func (a *Archive) Persist(ctx context.Context, info *models.DocumentInfo, links map[string]string) (string, error) {
	folder := archiveFolder(info)
	logCtx := slog.With("documentId", info.Ref.ID, "folder", folder)

	metadata, err := json.MarshalIndent(archiveMetadata{
		DocumentID:    info.Ref.ID,
		Name:          info.Ref.Name,
		FileName:      info.FileName,
		FileHash:      info.FileHash,
		DocumentType:  info.Ref.Type(),
		DataDate:      info.Ref.DataDate,
		Investment:    info.Ref.Investment(),
		PageCount:     info.PageCount,
		SummaryLength: len(info.Summary),
		Links:         links,
		ArchivedAt:    a.now().UTC(),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal archive metadata: %w", err)
	}

	objects := []archiveObject{
		{folder + "/source.pdf", optimizePDF(info.PDF), "application/pdf"},
		{folder + "/metadata.json", metadata, "application/json"},
	}
	if info.Summary != "" {
		objects = append(objects, archiveObject{folder + "/summary.md", []byte(summaryMarkdown(info)), "text/markdown"})
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(3)
	for _, obj := range objects {
		eg.Go(func() error {
			if err := a.write(gctx, obj.name, obj.content, obj.contentType); err != nil {
				return fmt.Errorf("%s: %w", obj.name, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return "", fmt.Errorf("failed to archive document: %w", err)
	}

	uri := fmt.Sprintf("gs://%s/%s/", a.bucket, folder)
	logCtx.Info("Document archived.", "uri", uri)
	return uri, nil
}

// optimizePDF shrinks the PDF with pdfcpu; the original bytes are kept when
// pdfcpu cannot process the file.
func optimizePDF(pdf []byte) []byte {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(pdf), &out, conf); err != nil {
		slog.Debug("PDF optimization failed, archiving original.", "error", err)
		return pdf
	}
	if out.Len() == 0 || out.Len() >= len(pdf) {
		return pdf
	}
	return out.Bytes()
}

func summaryMarkdown(info *models.DocumentInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", pageTitle(info))
	fmt.Fprintf(&b, "- Document ID: %s\n", info.Ref.ID)
	fmt.Fprintf(&b, "- Fund: %s\n", info.Ref.Investment())
	fmt.Fprintf(&b, "- Type: %s\n", info.Ref.Type())
	if info.Ref.DataDate != "" {
		fmt.Fprintf(&b, "- Data date: %s\n", info.Ref.DataDate)
	}
	fmt.Fprintf(&b, "\n## Executive Summary\n\n%s\n", info.Summary)
	return b.String()
}

// archiveFolder names the document's folder from its ID, falling back to
// the file hash when the ID has no usable characters. IDs changed by
// sanitizing get a short hash of the raw ID so "A-1" and "a_1" stay apart.
func archiveFolder(info *models.DocumentInfo) string {
	if name := sanitizeFileName(info.Ref.ID); name != "" {
		if name == info.Ref.ID {
			return name
		}
		sum := sha256.Sum256([]byte(info.Ref.ID))
		return name + "_" + hex.EncodeToString(sum[:4])
	}
	if len(info.FileHash) >= 16 {
		return info.FileHash[:16]
	}
	return "unnamed"
}

// sanitizeFileName lowercases s and collapses everything but letters and
// digits into underscores.
func sanitizeFileName(s string) string {
	lower := strings.ToLower(s)
	sanitized := nonAlphanumericRegex.ReplaceAllString(lower, "_")
	sanitized = strings.Trim(sanitized, "_")

	const maxLength = 100
	if len(sanitized) > maxLength {
		sanitized = sanitized[:maxLength]
	}
	return sanitized
}
