package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/financialdocumentflow/internal/canoe"
	"github.com/Lllllllleong/financialdocumentflow/internal/config"
	"github.com/Lllllllleong/financialdocumentflow/internal/destinations"
	"github.com/Lllllllleong/financialdocumentflow/internal/gcp"
	"github.com/Lllllllleong/financialdocumentflow/internal/models"
	"github.com/Lllllllleong/financialdocumentflow/internal/notion"
)

// DestinationOptions selects where summaries are stored.
type DestinationOptions struct {
	Notion    bool
	Sheets    bool
	Firestore bool
	Archive   bool
	Catalog   bool
}

// Components builds the clients a run needs from one Config and closes them
// when the run ends.
type Components struct {
	cfg     *config.Config
	storage *storage.Client
	vertex  *gcp.VertexClient
	closers []func() error

	// Sheets is set when the sheets destination was built.
	Sheets *destinations.Sheets
}

func NewComponents(cfg *config.Config) *Components {
	return &Components{cfg: cfg}
}

// StorageClient returns the shared GCS client, creating it on first use.
func (c *Components) StorageClient(ctx context.Context) (*storage.Client, error) {
	if c.storage != nil {
		return c.storage, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	c.storage = client
	c.closers = append(c.closers, client.Close)
	return client, nil
}

// CanoeClient authenticates against the document API.
func (c *Components) CanoeClient(ctx context.Context) (*canoe.Client, error) {
	client, err := canoe.NewClient(ctx, c.cfg.Canoe)
	if err != nil {
		return nil, fmt.Errorf("failed to create canoe client: %w", err)
	}
	return client, nil
}

// Summarizer builds the Gemini summarizer.
func (c *Components) Summarizer(ctx context.Context) (*VertexSummarizer, error) {
	if c.vertex == nil {
		client, err := gcp.NewVertexClient(ctx, c.cfg.Vertex)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		c.vertex = client
		c.closers = append(c.closers, client.Close)
	}
	return NewVertexSummarizer(c.vertex.SummaryModel, c.cfg.Vertex.MaxRetries), nil
}

// Destinations builds the enabled destinations in their fixed order:
// Notion, Sheets, Firestore, Archive, SQLite.
func (c *Components) Destinations(ctx context.Context, opts DestinationOptions) ([]Destination, error) {
	var dests []Destination

	if opts.Notion {
		client, err := notion.NewClient(c.cfg.Notion)
		if err != nil {
			return nil, fmt.Errorf("failed to create notion client: %w", err)
		}
		dests = append(dests, destinations.NewNotion(client))
	}

	if opts.Sheets {
		if err := c.cfg.Sheets.Validate(); err != nil {
			return nil, err
		}
		creds, err := c.cfg.Sheets.Credentials()
		if err != nil {
			return nil, err
		}
		svc, err := gcp.NewSheetsService(ctx, creds)
		if err != nil {
			return nil, err
		}
		c.Sheets = destinations.NewSheets(svc, c.cfg.Sheets.SpreadsheetID, c.cfg.Sheets.SheetName)
		dests = append(dests, c.Sheets)
	}

	if opts.Firestore {
		client, err := gcp.NewFirestoreClient(ctx, c.cfg.Firestore.ProjectID, c.cfg.Firestore.DatabaseID)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, client.Close)
		dests = append(dests, destinations.NewFirestore(client, c.cfg.Firestore.Collection))
	}

	if opts.Archive {
		if c.cfg.Archive.Bucket == "" {
			return nil, errors.New("archive bucket must be set (ARCHIVE_BUCKET)")
		}
		client, err := c.StorageClient(ctx)
		if err != nil {
			return nil, err
		}
		dests = append(dests, destinations.NewArchive(client, c.cfg.Archive.Bucket))
	}

	if opts.Catalog {
		catalog, err := destinations.OpenSQLiteCatalog(c.cfg.Catalog.SQLitePath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, catalog.Close)
		dests = append(dests, catalog)
	}

	names := make([]string, 0, len(dests))
	for _, d := range dests {
		names = append(names, d.Name())
	}
	slog.Info("Destinations configured.", "destinations", names)
	return dests, nil
}

// Pipeline wires a source, the summarizer and the chosen destinations.
func (c *Components) Pipeline(ctx context.Context, source Downloader, opts DestinationOptions, skipSummary bool) (*Pipeline, error) {
	p := &Pipeline{
		Source:      source,
		Extractor:   PDFExtractor{},
		SkipSummary: skipSummary,
	}
	if !skipSummary {
		prompts, err := NewTemplatePrompt(c.cfg.Vertex.PromptFile, c.cfg.Vertex.MaxContentChars)
		if err != nil {
			return nil, err
		}
		summarizer, err := c.Summarizer(ctx)
		if err != nil {
			return nil, err
		}
		p.Prompts = prompts
		p.Summarizer = summarizer
	}
	dests, err := c.Destinations(ctx, opts)
	if err != nil {
		return nil, err
	}
	p.Destinations = dests
	return p, nil
}

// Close releases every client in reverse creation order.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// CanoeLister lists documents matching filter.
func CanoeLister(client *canoe.Client, filter canoe.Filter) Lister {
	return func(ctx context.Context) ([]models.DocumentRef, error) {
		return client.List(ctx, filter)
	}
}
