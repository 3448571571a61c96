package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/financialdocumentflow/internal/config"
	"github.com/Lllllllleong/financialdocumentflow/internal/gcp"
	"github.com/Lllllllleong/financialdocumentflow/internal/models"
	"github.com/Lllllllleong/financialdocumentflow/internal/services"
)

var (
	summarizerInstance *services.DocumentSummarizerFunction
	once               sync.Once
	initErr            error
)

func init() {
	slog.SetDefault(config.NewLogger(gcp.GetEnv("LOG_LEVEL", "info"), "json", os.Stdout))

	functions.HTTP("HandleSummarizeDocument", handleSummarizeDocument)
}

// main is required by the Go Functions Framework.
func main() {}

func handleSummarizeDocument(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		summarizerInstance, initErr = services.NewDocumentSummarizer(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Summarizer initialization failed.", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.SummarizeDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body.", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" {
		http.Error(w, "Bad Request: documentId is required", http.StatusBadRequest)
		return
	}

	res, err := summarizerInstance.Process(r.Context(), &req)
	if err != nil {
		// Already logged with document context.
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response.", "error", err)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
