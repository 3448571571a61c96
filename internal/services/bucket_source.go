package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/financialdocumentflow/internal/gcp"
	"github.com/Lllllllleong/financialdocumentflow/internal/models"
	"google.golang.org/api/iterator"
)

// BucketSource reads PDFs from a GCS bucket. Object names are the document IDs.
type BucketSource struct {
	bucket *storage.BucketHandle
	prefix string
}

// NewBucketSource lists objects under prefix in bucket.
func NewBucketSource(client *storage.Client, bucket, prefix string) *BucketSource {
	return &BucketSource{bucket: client.Bucket(bucket), prefix: prefix}
}

// List returns every .pdf object under the prefix.
func (s *BucketSource) List(ctx context.Context) ([]models.DocumentRef, error) {
	var docs []models.DocumentRef
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: s.prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list bucket objects: %w", err)
		}
		if !IsPDFObject(attrs.Name) {
			continue
		}
		docs = append(docs, objectRef(attrs))
	}
	return docs, nil
}

// Download reads the object named by ref.ID.
func (s *BucketSource) Download(ctx context.Context, ref models.DocumentRef) ([]byte, string, error) {
	data, err := gcp.ReadObject(ctx, s.bucket, ref.ID)
	if err != nil {
		return nil, "", err
	}
	return data, path.Base(ref.ID), nil
}

// IsPDFObject reports whether an object name looks like a PDF.
func IsPDFObject(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}

func objectRef(attrs *storage.ObjectAttrs) models.DocumentRef {
	ref := models.DocumentRef{ID: attrs.Name, Name: path.Base(attrs.Name)}
	if !attrs.Updated.IsZero() {
		ref.DataDate = attrs.Updated.UTC().Format("2006-01-02")
	}
	if t := attrs.Metadata["document_type"]; t != "" {
		ref.DocumentType = t
	}
	if inv := attrs.Metadata["investment"]; inv != "" {
		ref.Allocations = []models.Allocation{{Investment: inv}}
	}
	return ref
}
