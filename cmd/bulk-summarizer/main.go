package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/Lllllllleong/financialdocumentflow/internal/canoe"
	"github.com/Lllllllleong/financialdocumentflow/internal/config"
	"github.com/Lllllllleong/financialdocumentflow/internal/gcp"
	"github.com/Lllllllleong/financialdocumentflow/internal/models"
	"github.com/Lllllllleong/financialdocumentflow/internal/progress"
	"github.com/Lllllllleong/financialdocumentflow/internal/services"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "bulk-summarizer",
		Usage: "Summarize a batch of financial documents with resume and retry support",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML config file", EnvVars: []string{"CONFIG_FILE"}},
			&cli.StringFlag{Name: "preset", Usage: "filter preset name (default: " + canoe.DefaultPreset + ")"},
			&cli.IntFlag{Name: "days-back", Usage: "legacy filter: quarterly reports from the last N days"},
			&cli.StringFlag{Name: "filter-file", Usage: "filter presets file (YAML or JSON)"},
			&cli.BoolFlag{Name: "list-presets", Usage: "print the available presets and exit"},
			&cli.StringFlag{Name: "document-type", Usage: "override the preset's document type"},
			&cli.StringFlag{Name: "data-date-start", Usage: "override the data date start (YYYY-MM-DD)"},
			&cli.StringFlag{Name: "data-date-end", Usage: "override the data date end (YYYY-MM-DD)"},
			&cli.StringFlag{Name: "source", Value: "canoe", Usage: "document source: canoe or bucket"},
			&cli.StringFlag{Name: "bucket", Usage: "inbox bucket for --source bucket"},
			&cli.StringFlag{Name: "bucket-prefix", Usage: "object prefix for --source bucket"},
			&cli.BoolFlag{Name: "no-notion", Usage: "do not create Notion pages"},
			&cli.BoolFlag{Name: "google-sheets", Usage: "append rows to Google Sheets"},
			&cli.BoolFlag{Name: "sheets-only", Usage: "write to Google Sheets only"},
			&cli.BoolFlag{Name: "firestore", Usage: "write catalog records to Firestore"},
			&cli.BoolFlag{Name: "archive", Usage: "archive PDFs and summaries to GCS"},
			&cli.BoolFlag{Name: "catalog", Usage: "upsert summaries into the local SQLite catalog"},
			&cli.StringFlag{Name: "resume", Usage: "resume a session: 'latest' (the default when no value is given) or a session name/path"},
			&cli.BoolFlag{Name: "retry-failed", Usage: "retry the documents in the failed documents ledger"},
			&cli.BoolFlag{Name: "prune-resolved", Usage: "with --retry-failed, drop documents that now succeed from the ledger"},
			&cli.StringFlag{Name: "session-name", Usage: "name for the new session file"},
			&cli.BoolFlag{Name: "no-log-file", Usage: "log to stdout only"},
		},
		Action: bulkAction,
	}
	if err := app.Run(normalizeResumeArgs(os.Args)); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func bulkAction(c *cli.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("filter-file") {
		cfg.Canoe.FilterFile = c.String("filter-file")
	}

	closeLog, err := setupLogging(cfg.Logging, c.Bool("no-log-file"), time.Now())
	if err != nil {
		return err
	}
	defer closeLog()

	// --- 1. Presets ---
	presets, err := canoe.LoadPresets(cfg.Canoe.FilterFile)
	if err != nil {
		return err
	}
	if c.Bool("list-presets") {
		fmt.Println("Available filter presets:")
		for _, name := range canoe.PresetNames(presets) {
			fmt.Println(canoe.Describe(name, presets[name]))
		}
		return nil
	}

	mode, err := selectMode(c.IsSet("resume"), c.String("resume"), c.Bool("retry-failed"))
	if err != nil {
		return err
	}
	destOpts, err := destinationFlags{
		NoNotion:   c.Bool("no-notion"),
		Sheets:     c.Bool("google-sheets"),
		SheetsOnly: c.Bool("sheets-only"),
		Firestore:  c.Bool("firestore"),
		Archive:    c.Bool("archive"),
		Catalog:    c.Bool("catalog"),
	}.options()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.ResolveSecrets(ctx, config.NewSecretResolver(ctx, cfg.Secrets))

	// --- 2. Source and pipeline ---
	comps := services.NewComponents(cfg)
	defer func() {
		if err := comps.Close(); err != nil {
			slog.Warn("Failed to close clients.", "error", err)
		}
	}()

	var (
		source services.Downloader
		lister services.Lister
	)
	switch c.String("source") {
	case "canoe":
		overrides := canoe.Filter{
			"document_type":   c.String("document-type"),
			"data_date_start": c.String("data-date-start"),
			"data_date_end":   c.String("data-date-end"),
		}
		filter, desc, err := selectFilter(presets, c.String("preset"), c.Int("days-back"), overrides, time.Now())
		if err != nil {
			return err
		}
		client, err := comps.CanoeClient(ctx)
		if err != nil {
			return err
		}
		slog.Info("Using document filter.", "filter", desc, "params", filter)
		source, lister = client, services.CanoeLister(client, filter)
	case "bucket":
		bucket := c.String("bucket")
		if bucket == "" {
			bucket = cfg.Inbox.Bucket
		}
		if bucket == "" {
			return errors.New("--bucket or inbox.bucket must be set for --source bucket")
		}
		prefix := c.String("bucket-prefix")
		if prefix == "" {
			prefix = cfg.Inbox.Prefix
		}
		sc, err := comps.StorageClient(ctx)
		if err != nil {
			return err
		}
		bs := services.NewBucketSource(sc, bucket, prefix)
		source, lister = bs, bs.List
	default:
		return fmt.Errorf("unknown source %q", c.String("source"))
	}

	pipeline, err := comps.Pipeline(ctx, source, destOpts, false)
	if err != nil {
		return err
	}

	// --- 3. Session ---
	store, err := progress.NewStore(cfg.Progress.Dir)
	if err != nil {
		return err
	}
	sel, err := services.SelectSession(ctx, store, services.SelectOptions{
		Mode:        mode,
		Resume:      c.String("resume"),
		SessionName: c.String("session-name"),
		List:        lister,
		Intersect:   c.IsSet("preset") || c.IsSet("days-back") || c.IsSet("document-type") || c.IsSet("data-date-start") || c.IsSet("data-date-end"),
	})
	if err != nil {
		return err
	}
	if sel.Message != "" {
		fmt.Println(sel.Message)
	}
	if sel.Tracker == nil || len(sel.Documents) == 0 {
		return nil
	}
	if sel.Resumed {
		fmt.Printf("Resuming session %s with %d remaining documents.\n", sel.Tracker.SessionFile(), len(sel.Documents))
	}

	// --- 4. Run ---
	result, runErr := services.NewOrchestrator(pipeline, sel.Tracker).Run(ctx, sel.Documents)
	fmt.Print(sel.Tracker.SummaryReport())
	if runErr != nil {
		return cli.Exit(runErr.Error(), 1)
	}
	if result.Interrupted {
		fmt.Printf("\nInterrupted. Continue with --resume %s\n", sel.Tracker.SessionFile())
		return nil
	}

	afterBatch(context.WithoutCancel(ctx), cfg, comps, store, mode, c.Bool("prune-resolved"), sel.Tracker, result)
	return nil
}

// afterBatch runs the optional post-batch steps. Their failures are logged
// and do not change the exit code.
func afterBatch(ctx context.Context, cfg *config.Config, comps *services.Components, store *progress.Store, mode services.Mode, prune bool, tracker *progress.Tracker, result services.BatchResult) {
	if comps.Sheets != nil {
		if stats, err := comps.Sheets.Statistics(ctx); err != nil {
			slog.Warn("Failed to read sheet statistics.", "error", err)
		} else {
			fmt.Printf("\nGoogle Sheets: %d documents (%d with summaries, %d without)\n   %s\n",
				stats.TotalDocuments, stats.DocumentsWithSummaries, stats.DocumentsWithoutSummaries, stats.SpreadsheetURL)
		}
	}

	if mode == services.ModeRetryFailed && prune && len(result.Completed) > 0 {
		n, err := progress.PruneFailedDocuments(store.Dir(), result.Completed)
		if err != nil {
			slog.Warn("Failed to prune the failed documents ledger.", "error", err)
		} else {
			fmt.Printf("Removed %d resolved documents from the failed documents ledger.\n", n)
		}
	}

	if cfg.Workflow.ID == "" {
		return
	}
	client, err := executions.NewClient(ctx)
	if err != nil {
		slog.Warn("Failed to create workflow executions client.", "error", err)
		return
	}
	defer client.Close()

	snap := tracker.Snapshot()
	failedIDs := make([]string, 0, len(snap.FailedDocuments))
	for _, f := range snap.FailedDocuments {
		failedIDs = append(failedIDs, f.ID)
	}
	name, err := gcp.TriggerWorkflow(ctx, client, cfg.Workflow.ProjectID, cfg.Workflow.Location, cfg.Workflow.ID, models.BatchCompletedPayload{
		SessionFile: snap.SessionFile,
		Total:       snap.TotalDocuments,
		Processed:   snap.ProcessedCount,
		Failed:      snap.FailedCount,
		FailedIDs:   failedIDs,
	})
	if err != nil {
		slog.Warn("Failed to trigger post-batch workflow.", "error", err)
		return
	}
	slog.Info("Triggered post-batch workflow.", "execution", name)
}
