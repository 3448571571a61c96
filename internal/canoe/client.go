// Package canoe talks to the Canoe document API: listing documents by filter
// and downloading their PDFs.
package canoe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Lllllllleong/financialdocumentflow/internal/config"
	"github.com/Lllllllleong/financialdocumentflow/internal/models"
	"github.com/Lllllllleong/financialdocumentflow/internal/retry"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	listFields   = "id,name,document_type,data_date,allocations"
	lookupFields = "id,name,document_type,data_date,allocations,original_file_name"
)

// ErrNotFound is returned when a document ID matches nothing.
var ErrNotFound = errors.New("document not found")

// APIError is a non-2xx response from the document API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("canoe API returned %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client is an authenticated Canoe API client. The OAuth token is fetched
// lazily and refreshed by the transport.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	retryDelay time.Duration
}

type apiDocument struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	DocumentType     string              `json:"document_type"`
	DataDate         string              `json:"data_date"`
	Allocations      []models.Allocation `json:"allocations"`
	OriginalFileName string              `json:"original_file_name"`
}

func (d apiDocument) ref() models.DocumentRef {
	return models.DocumentRef{
		ID:           d.ID,
		Name:         d.Name,
		DocumentType: d.DocumentType,
		DataDate:     d.DataDate,
		Allocations:  d.Allocations,
	}
}

// NewClient builds a client using the client-credentials grant against
// {base_url}/oauth/token.
func NewClient(ctx context.Context, cfg config.Canoe) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     baseURL + "/oauth/token",
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
	httpClient := cc.Client(tokenCtx)
	httpClient.Timeout = timeout

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		maxRetries: max(cfg.MaxRetries, 1),
		retryDelay: time.Second,
	}, nil
}

// List returns the documents matching filter.
func (c *Client) List(ctx context.Context, filter Filter) ([]models.DocumentRef, error) {
	params := url.Values{}
	for k, v := range filter {
		params.Set(k, v)
	}
	if params.Get("fields") == "" {
		params.Set("fields", listFields)
	}

	var docs []apiDocument
	if err := c.getJSON(ctx, "/v1/documents/data", params, &docs); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	refs := make([]models.DocumentRef, 0, len(docs))
	for _, d := range docs {
		refs = append(refs, d.ref())
	}
	slog.Info("Listed documents.", "count", len(refs), "documentType", filter["document_type"])
	return refs, nil
}

// Lookup returns a document's metadata and its original file name.
func (c *Client) Lookup(ctx context.Context, id string) (models.DocumentRef, string, error) {
	params := url.Values{"id": {id}, "fields": {lookupFields}}
	var docs []apiDocument
	if err := c.getJSON(ctx, "/v1/documents/data", params, &docs); err != nil {
		return models.DocumentRef{}, "", fmt.Errorf("failed to look up document %s: %w", id, err)
	}
	if len(docs) == 0 {
		return models.DocumentRef{}, "", fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	d := docs[0]
	fileName := d.OriginalFileName
	if fileName == "" {
		fileName = fmt.Sprintf("Document_%s.pdf", id)
	}
	return d.ref(), fileName, nil
}

// Download fetches a document's PDF and its original file name.
func (c *Client) Download(ctx context.Context, ref models.DocumentRef) ([]byte, string, error) {
	_, fileName, err := c.Lookup(ctx, ref.ID)
	if err != nil {
		return nil, "", err
	}

	var data []byte
	err = retry.Do(ctx, c.maxRetries, c.retryDelay, "canoe download", func(ctx context.Context) error {
		body, err := c.get(ctx, "/v1/documents/"+url.PathEscape(ref.ID), nil)
		if err != nil {
			return err
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to download document %s: %w", ref.ID, err)
	}
	return data, fileName, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	return retry.Do(ctx, c.maxRetries, c.retryDelay, "canoe "+path, func(ctx context.Context) error {
		body, err := c.get(ctx, path, params)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	})
}

// get performs one request. Client errors are wrapped as permanent so the
// retry loop only repeats network failures, 429s and 5xx responses.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode < 500 {
			return nil, retry.Permanent(fmt.Errorf("failed to obtain access token: %w", err))
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if apiErr.retryable() {
			return nil, apiErr
		}
		return nil, retry.Permanent(apiErr)
	}
	return body, nil
}
