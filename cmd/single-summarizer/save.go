package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
	"github.com/Lllllllleong/financialdocumentflow/internal/services"
)

// savingDownloader writes a copy of each download to path.
type savingDownloader struct {
	next services.Downloader
	path string
}

func (d *savingDownloader) Download(ctx context.Context, ref models.DocumentRef) ([]byte, string, error) {
	data, name, err := d.next.Download(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	if err := os.WriteFile(d.path, data, 0o644); err != nil {
		return nil, "", fmt.Errorf("failed to save PDF to %s: %w", d.path, err)
	}
	slog.Info("Saved PDF.", "path", d.path, "bytes", len(data))
	return data, name, nil
}
