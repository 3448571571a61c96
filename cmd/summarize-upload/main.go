package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/financialdocumentflow/internal/config"
	"github.com/Lllllllleong/financialdocumentflow/internal/gcp"
	"github.com/Lllllllleong/financialdocumentflow/internal/models"
	"github.com/Lllllllleong/financialdocumentflow/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	uploadInstance *services.UploadSummarizerFunction
	once           sync.Once
	initErr        error
)

func init() {
	slog.SetDefault(config.NewLogger(gcp.GetEnv("LOG_LEVEL", "info"), "json", os.Stdout))

	functions.CloudEvent("SummarizeUpload", summarizeUpload)
}

// main is required by the Go Functions Framework.
func main() {}

// summarizeUpload handles storage object-finalize events.
func summarizeUpload(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		uploadInstance, initErr = services.NewUploadSummarizer(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	return uploadInstance.Process(ctx, gcsEvent)
}
