package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/financialdocumentflow/internal/config"
)

// SummarizerSystemPrompt frames every summarization request.
const SummarizerSystemPrompt = "You are a financial analyst writing for an investment committee. You read fund reports and investor letters and produce short, factual executive summaries. Never invent figures that are not in the document."

// VertexClient holds the pre-configured generative model for the app.
type VertexClient struct {
	SummaryModel *genai.GenerativeModel
	baseClient   *genai.Client
}

// NewVertexClient creates a client holding the summarizer model.
func NewVertexClient(ctx context.Context, cfg config.Vertex) (*VertexClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("NewVertexClient: %w", err)
	}

	baseClient, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the summary model ---
	summaryModel := baseClient.GenerativeModel(cfg.Model)
	summaryModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SummarizerSystemPrompt)},
	}
	summaryModel.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr(cfg.Temperature),
		MaxOutputTokens: genai.Ptr(cfg.MaxOutputTokens),
	}
	summaryModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockOnlyHigh},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockOnlyHigh},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockOnlyHigh},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockOnlyHigh},
	}

	return &VertexClient{
		SummaryModel: summaryModel,
		baseClient:   baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
