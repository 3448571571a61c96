package gcp

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// NewSheetsService creates a Sheets API client from service account JSON.
func NewSheetsService(ctx context.Context, credentialsJSON []byte) (*sheets.Service, error) {
	if len(credentialsJSON) == 0 {
		return nil, fmt.Errorf("sheets credentials must be provided")
	}
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}
	return svc, nil
}
