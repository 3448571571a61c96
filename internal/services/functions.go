package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/Lllllllleong/financialdocumentflow/internal/canoe"
	"github.com/Lllllllleong/financialdocumentflow/internal/config"
	"github.com/Lllllllleong/financialdocumentflow/internal/gcp"
	"github.com/Lllllllleong/financialdocumentflow/internal/models"
)

// ParseDestinations reads a comma separated list such as
// "notion,sheets,firestore,archive,sqlite".
func ParseDestinations(list string) (DestinationOptions, error) {
	var opts DestinationOptions
	for _, name := range strings.Split(list, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
		case "notion":
			opts.Notion = true
		case "sheets", "google-sheets":
			opts.Sheets = true
		case "firestore":
			opts.Firestore = true
		case "archive":
			opts.Archive = true
		case "sqlite", "catalog":
			opts.Catalog = true
		default:
			return opts, fmt.Errorf("unknown destination %q", name)
		}
	}
	return opts, nil
}

// loadFunctionConfig reads the optional CONFIG_FILE plus environment and
// resolves secrets from the environment only.
func loadFunctionConfig(ctx context.Context) (*config.Config, DestinationOptions, error) {
	cfg, err := config.Load(gcp.GetEnv("CONFIG_FILE", ""))
	if err != nil {
		return nil, DestinationOptions{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.ResolveSecrets(ctx, config.EnvResolver{})

	opts, err := ParseDestinations(gcp.GetEnv("DESTINATIONS", "firestore"))
	if err != nil {
		return nil, DestinationOptions{}, err
	}
	return cfg, opts, nil
}

// --- HTTP function: summarize one Canoe document ---

// DocumentSummarizerFunction summarizes documents by Canoe ID.
type DocumentSummarizerFunction struct {
	canoe    *canoe.Client
	pipeline *Pipeline
}

// NewDocumentSummarizer builds the function's clients from the environment.
func NewDocumentSummarizer(ctx context.Context) (*DocumentSummarizerFunction, error) {
	cfg, opts, err := loadFunctionConfig(ctx)
	if err != nil {
		return nil, err
	}
	comps := NewComponents(cfg)
	client, err := comps.CanoeClient(ctx)
	if err != nil {
		return nil, err
	}
	pipeline, err := comps.Pipeline(ctx, client, opts, false)
	if err != nil {
		return nil, err
	}
	return &DocumentSummarizerFunction{canoe: client, pipeline: pipeline}, nil
}

// Process looks the document up, runs the pipeline and reports the result.
func (f *DocumentSummarizerFunction) Process(ctx context.Context, req *models.SummarizeDocumentRequest) (*models.SummarizeDocumentResponse, error) {
	logCtx := slog.With("documentId", req.DocumentID, "executionId", req.ExecutionID)
	if req.DocumentID == "" {
		return nil, fmt.Errorf("documentId must be provided")
	}

	ref, _, err := f.canoe.Lookup(ctx, req.DocumentID)
	if err != nil {
		logCtx.Error("Failed to look up document.", "error", err)
		return nil, err
	}

	out := f.pipeline.Process(ctx, ref)
	if !out.OK() {
		logCtx.Error("Failed to summarize document.", "error", out.Err)
		return nil, out.Err
	}
	logCtx.Info("Document summarized.", "summaryLength", len(out.Summary))
	return &models.SummarizeDocumentResponse{
		Status:        "success",
		DocumentID:    req.DocumentID,
		SummaryLength: len(out.Summary),
		Links:         out.Links,
	}, nil
}

// --- CloudEvent function: summarize PDFs uploaded to a bucket ---

// UploadSummarizerFunction summarizes PDFs as they land in a bucket.
type UploadSummarizerFunction struct {
	comps    *Components
	pipeline *Pipeline
	// archiveBucket is set when archiving is on; uploads from it are the
	// function's own output.
	archiveBucket string
}

// NewUploadSummarizer builds the function's clients from the environment.
func NewUploadSummarizer(ctx context.Context) (*UploadSummarizerFunction, error) {
	cfg, opts, err := loadFunctionConfig(ctx)
	if err != nil {
		return nil, err
	}
	f := &UploadSummarizerFunction{}
	if opts.Archive {
		f.archiveBucket = cfg.Archive.Bucket
		if cfg.Inbox.Bucket != "" && cfg.Inbox.Bucket == cfg.Archive.Bucket {
			return nil, fmt.Errorf("archive bucket %q must differ from the inbox bucket", cfg.Archive.Bucket)
		}
	}
	f.comps = NewComponents(cfg)
	if _, err := f.comps.StorageClient(ctx); err != nil {
		return nil, err
	}
	f.pipeline, err = f.comps.Pipeline(ctx, nil, opts, false)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Process summarizes the uploaded object. Non-PDF objects and objects in
// the archive bucket are skipped.
func (f *UploadSummarizerFunction) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if f.archiveBucket != "" && e.Bucket == f.archiveBucket {
		logCtx.Info("Skipping object written by the archive.")
		return nil
	}
	if !IsPDFObject(e.Name) && e.ContentType != "application/pdf" {
		logCtx.Info("Skipping non-PDF object.", "contentType", e.ContentType)
		return nil
	}

	client, err := f.comps.StorageClient(ctx)
	if err != nil {
		return err
	}
	p := *f.pipeline
	p.Source = NewBucketSource(client, e.Bucket, "")

	out := p.Process(ctx, models.DocumentRef{ID: e.Name, Name: path.Base(e.Name)})
	if !out.OK() {
		logCtx.Error("Failed to summarize upload.", "error", out.Err)
		return out.Err
	}
	logCtx.Info("Upload summarized.", "summaryLength", len(out.Summary), "links", out.Links)
	return nil
}
