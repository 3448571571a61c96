// Package notion creates summary pages in a Notion database.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Lllllllleong/financialdocumentflow/internal/config"
	"github.com/Lllllllleong/financialdocumentflow/internal/retry"
)

// maxTextLength is the per rich-text object limit of the Notion API.
const maxTextLength = 2000

// Client posts pages to one Notion database.
type Client struct {
	token      string
	databaseID string
	baseURL    string
	version    string
	httpClient *http.Client
	retryDelay time.Duration
}

// APIError is a Notion error response.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion API returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// NewClient validates the configuration and returns a client.
func NewClient(cfg config.Notion) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		token:      cfg.Token,
		databaseID: cfg.DatabaseID,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		version:    cfg.Version,
		httpClient: &http.Client{Timeout: timeout},
		retryDelay: time.Second,
	}, nil
}

type richText struct {
	Type string `json:"type"`
	Text struct {
		Content string `json:"content"`
	} `json:"text"`
}

func textObjects(s string) []richText {
	var out []richText
	for _, chunk := range chunkRunes(s, maxTextLength) {
		rt := richText{Type: "text"}
		rt.Text.Content = chunk
		out = append(out, rt)
	}
	if out == nil {
		out = []richText{}
	}
	return out
}

func chunkRunes(s string, n int) []string {
	r := []rune(s)
	var chunks []string
	for len(r) > 0 {
		end := min(n, len(r))
		chunks = append(chunks, string(r[:end]))
		r = r[end:]
	}
	return chunks
}

// pageRequest builds the pages.create body: a Title property, an
// "Executive Summary" heading and the summary paragraph.
func (c *Client) pageRequest(title, summary string) map[string]any {
	if title == "" {
		title = "Untitled Document"
	}
	return map[string]any{
		"parent": map[string]string{"database_id": c.databaseID},
		"properties": map[string]any{
			"Title": map[string]any{"title": textObjects(title)},
		},
		"children": []map[string]any{
			{
				"object":    "block",
				"type":      "heading_2",
				"heading_2": map[string]any{"rich_text": textObjects("Executive Summary")},
			},
			{
				"object":    "block",
				"type":      "paragraph",
				"paragraph": map[string]any{"rich_text": textObjects(summary)},
			},
		},
	}
}

// CreateSummaryPage creates a page for a document and returns its URL.
func (c *Client) CreateSummaryPage(ctx context.Context, title, summary string) (string, error) {
	payload, err := json.Marshal(c.pageRequest(title, summary))
	if err != nil {
		return "", fmt.Errorf("encode page payload: %w", err)
	}

	var pageURL string
	err = retry.Do(ctx, 3, c.retryDelay, "notion create page", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/pages", bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(fmt.Errorf("create page request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Notion-Version", c.version)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("notion request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			apiErr := decodeAPIError(resp)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return apiErr
			}
			return retry.Permanent(apiErr)
		}

		var page struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return retry.Permanent(fmt.Errorf("decode page response: %w", err))
		}
		if page.URL == "" {
			return retry.Permanent(errors.New("notion response has no page url"))
		}
		pageURL = page.URL
		return nil
	})
	if err != nil {
		return "", err
	}
	return pageURL, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
