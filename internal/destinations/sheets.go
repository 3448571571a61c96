package destinations

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
	"google.golang.org/api/sheets/v4"
)

const (
	defaultSheetName  = "Quarterly Reports"
	maxSummaryLength  = 500
	sheetsRateLimit   = 100 * time.Millisecond
	statusCompleted   = "Completed"
	noSummaryCellText = "NA"
)

var sheetHeaders = []any{
	"Fund Name", "Document ID", "Date Processed", "Data Date",
	"Summary", "Document Type", "Processing Status", "Notion URL",
}

// SheetStats counts the rows of the summary sheet.
type SheetStats struct {
	TotalDocuments            int
	DocumentsWithSummaries    int
	DocumentsWithoutSummaries int
	SpreadsheetURL            string
}

// Sheets appends one row per summary to a Google Sheet.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
	now           func() time.Time

	mu        sync.Mutex
	ready     bool
	lastCall  time.Time
	rateLimit time.Duration
}

func NewSheets(svc *sheets.Service, spreadsheetID, sheetName string) *Sheets {
	if sheetName == "" {
		sheetName = defaultSheetName
	}
	return &Sheets{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		now:           time.Now,
		rateLimit:     sheetsRateLimit,
	}
}

func (s *Sheets) Name() string { return NameSheets }

// URL is the spreadsheet's browser link.
func (s *Sheets) URL() string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s", s.spreadsheetID)
}

// Persist appends the document's row and returns the spreadsheet URL.
func (s *Sheets) Persist(ctx context.Context, info *models.DocumentInfo, links map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureSheet(ctx); err != nil {
		return "", err
	}

	row := buildRow(info, links[NameNotion], s.now())
	s.throttle()
	resp, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName+"!A:H", &sheets.ValueRange{
		Values: [][]any{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to append summary row: %w", err)
	}
	if resp.Updates != nil {
		slog.Info("Added summary to Google Sheets.", "documentId", info.Ref.ID, "range", resp.Updates.UpdatedRange)
	}
	return s.URL() + "/edit#gid=0", nil
}

// ensureSheet creates the sheet with a styled header row unless it exists.
func (s *Sheets) ensureSheet(ctx context.Context) error {
	if s.ready {
		return nil
	}
	s.throttle()
	meta, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read spreadsheet %s: %w", s.spreadsheetID, err)
	}
	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.sheetName {
			slog.Info("Using existing sheet.", "sheet", s.sheetName)
			s.ready = true
			return nil
		}
	}

	s.throttle()
	resp, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{
					Title:          s.sheetName,
					GridProperties: &sheets.GridProperties{RowCount: 1000, ColumnCount: 10},
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", s.sheetName, err)
	}
	var sheetID int64
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}

	s.throttle()
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.sheetName+"!A1:H1", &sheets.ValueRange{
		Values: [][]any{sheetHeaders},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write sheet headers: %w", err)
	}

	// Header styling is cosmetic; a failure is only logged.
	s.throttle()
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, headerFormatRequest(sheetID)).Context(ctx).Do(); err != nil {
		slog.Warn("Failed to format sheet headers.", "sheet", s.sheetName, "error", err)
	}

	slog.Info("Created new sheet.", "sheet", s.sheetName)
	s.ready = true
	return nil
}

// Statistics counts data rows and how many carry a summary.
func (s *Sheets) Statistics(ctx context.Context) (*SheetStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.throttle()
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A:H").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", s.sheetName, err)
	}
	stats := &SheetStats{SpreadsheetURL: s.URL()}
	if len(resp.Values) <= 1 {
		return stats, nil
	}
	for _, row := range resp.Values[1:] {
		stats.TotalDocuments++
		if len(row) > 4 && fmt.Sprint(row[4]) != noSummaryCellText {
			stats.DocumentsWithSummaries++
		}
	}
	stats.DocumentsWithoutSummaries = stats.TotalDocuments - stats.DocumentsWithSummaries
	return stats, nil
}

func (s *Sheets) throttle() {
	if s.rateLimit <= 0 {
		return
	}
	if wait := s.rateLimit - time.Since(s.lastCall); wait > 0 {
		time.Sleep(wait)
	}
	s.lastCall = time.Now()
}

func buildRow(info *models.DocumentInfo, notionURL string, now time.Time) []any {
	fund := info.Ref.Investment()
	if fund == "Unknown" && info.FileName != "" {
		fund = info.FileName
	}
	summary := noSummaryCellText
	if info.Summary != "" {
		summary = cell(info.Summary, maxSummaryLength)
	}
	return []any{
		cell(fund, 100),
		cell(info.Ref.ID, 50),
		now.Format("2006-01-02 15:04:05"),
		cell(info.Ref.DataDate, 50),
		summary,
		cell(info.Ref.Type(), 50),
		statusCompleted,
		cell(notionURL, 200),
	}
}

// cell trims s and cuts it to max runes, ending in "..." when cut.
func cell(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func headerFormatRequest(sheetID int64) *sheets.BatchUpdateSpreadsheetRequest {
	return &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{SheetId: sheetID, StartRowIndex: 0, EndRowIndex: 1},
					Cell: &sheets.CellData{
						UserEnteredFormat: &sheets.CellFormat{
							BackgroundColor: &sheets.Color{Red: 0.2, Green: 0.5, Blue: 0.8},
							TextFormat: &sheets.TextFormat{
								Bold:            true,
								ForegroundColor: &sheets.Color{Red: 1, Green: 1, Blue: 1},
							},
						},
					},
					Fields: "userEnteredFormat(backgroundColor,textFormat)",
				},
			},
			{
				AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
					Dimensions: &sheets.DimensionRange{SheetId: sheetID, Dimension: "COLUMNS", StartIndex: 0, EndIndex: 8},
				},
			},
		},
	}
}
