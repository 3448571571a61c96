package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lllllllleong/financialdocumentflow/internal/config"
	"github.com/Lllllllleong/financialdocumentflow/internal/services"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "single-summarizer",
		Usage: "Summarize one Canoe document",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "document-id", Required: true, Usage: "Canoe document ID"},
			&cli.StringFlag{Name: "config", Usage: "YAML config file", EnvVars: []string{"CONFIG_FILE"}},
			&cli.BoolFlag{Name: "no-summary", Usage: "download and store without summarizing"},
			&cli.BoolFlag{Name: "no-notion", Usage: "do not create a Notion page"},
			&cli.BoolFlag{Name: "google-sheets", Usage: "append a row to Google Sheets"},
			&cli.BoolFlag{Name: "sheets-only", Usage: "write to Google Sheets only"},
			&cli.StringFlag{Name: "save-pdf", Usage: "also write the downloaded PDF to this path"},
		},
		Action: singleAction,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func singleAction(c *cli.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	slog.SetDefault(config.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stdout))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg.ResolveSecrets(ctx, config.NewSecretResolver(ctx, cfg.Secrets))

	opts := services.DestinationOptions{Notion: !c.Bool("no-notion"), Sheets: c.Bool("google-sheets")}
	if c.Bool("sheets-only") {
		opts = services.DestinationOptions{Sheets: true}
	}
	if c.Bool("no-summary") {
		// Notion pages and sheet rows need a summary.
		opts = services.DestinationOptions{}
	}

	comps := services.NewComponents(cfg)
	defer comps.Close()

	client, err := comps.CanoeClient(ctx)
	if err != nil {
		return err
	}
	ref, fileName, err := client.Lookup(ctx, c.String("document-id"))
	if err != nil {
		return err
	}
	fmt.Printf("Document: %s\n   Fund: %s\n   Type: %s\n   Data date: %s\n", fileName, ref.Investment(), ref.Type(), ref.DataDate)

	var source services.Downloader = client
	if path := c.String("save-pdf"); path != "" {
		source = &savingDownloader{next: client, path: path}
	}

	pipeline, err := comps.Pipeline(ctx, source, opts, c.Bool("no-summary"))
	if err != nil {
		return err
	}
	out := pipeline.Process(ctx, ref)
	if !out.OK() {
		return out.Err
	}

	if out.Summary != "" {
		fmt.Printf("\nSummary:\n%s\n", out.Summary)
	}
	for name, url := range out.Links {
		fmt.Printf("%s: %s\n", name, url)
	}
	return nil
}
