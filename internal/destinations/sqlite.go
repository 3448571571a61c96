package destinations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const catalogSchema = `
CREATE TABLE IF NOT EXISTS summaries (
	document_id   TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	file_name     TEXT,
	file_hash     TEXT,
	document_type TEXT,
	data_date     TEXT,
	investment    TEXT,
	page_count    INTEGER,
	summary       TEXT,
	links         TEXT,
	updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_summaries_file_hash ON summaries(file_hash);
`

// CatalogEntry is one row of the local catalog.
type CatalogEntry struct {
	DocumentID   string
	Name         string
	FileName     string
	FileHash     string
	DocumentType string
	DataDate     string
	Investment   string
	PageCount    int
	Summary      string
	Links        map[string]string
	UpdatedAt    time.Time
}

// SQLiteCatalog keeps the latest summary of every document in a local
// SQLite file, so summaries survive without any cloud destination.
type SQLiteCatalog struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteCatalog opens or creates the catalog at path.
func OpenSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(catalogSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteCatalog{db: db, now: time.Now}, nil
}

func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

func (c *SQLiteCatalog) Name() string { return NameSQLite }

// Persist upserts the document's row. It returns no URL.
func (c *SQLiteCatalog) Persist(ctx context.Context, info *models.DocumentInfo, links map[string]string) (string, error) {
	linksJSON, err := json.Marshal(links)
	if err != nil {
		return "", fmt.Errorf("failed to marshal links: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO summaries (document_id, name, file_name, file_hash, document_type, data_date, investment, page_count, summary, links, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			name = excluded.name,
			file_name = excluded.file_name,
			file_hash = excluded.file_hash,
			document_type = excluded.document_type,
			data_date = excluded.data_date,
			investment = excluded.investment,
			page_count = excluded.page_count,
			summary = excluded.summary,
			links = excluded.links,
			updated_at = excluded.updated_at`,
		info.Ref.ID, info.Ref.Name, info.FileName, info.FileHash, info.Ref.Type(), info.Ref.DataDate,
		info.Ref.Investment(), info.PageCount, info.Summary, string(linksJSON),
		c.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("failed to upsert catalog entry: %w", err)
	}
	return "", nil
}

// Get returns the entry for a document, or nil when there is none.
func (c *SQLiteCatalog) Get(ctx context.Context, documentID string) (*CatalogEntry, error) {
	var (
		e         CatalogEntry
		fileName  sql.NullString
		fileHash  sql.NullString
		docType   sql.NullString
		dataDate  sql.NullString
		invest    sql.NullString
		pages     sql.NullInt64
		summary   sql.NullString
		linksJSON sql.NullString
		updated   string
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT document_id, name, file_name, file_hash, document_type, data_date, investment, page_count, summary, links, updated_at
		FROM summaries WHERE document_id = ?`, documentID,
	).Scan(&e.DocumentID, &e.Name, &fileName, &fileHash, &docType, &dataDate, &invest, &pages, &summary, &linksJSON, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog entry %s: %w", documentID, err)
	}

	e.FileName, e.FileHash, e.DocumentType = fileName.String, fileHash.String, docType.String
	e.DataDate, e.Investment, e.Summary = dataDate.String, invest.String, summary.String
	e.PageCount = int(pages.Int64)
	if linksJSON.Valid && linksJSON.String != "" && linksJSON.String != "null" {
		if err := json.Unmarshal([]byte(linksJSON.String), &e.Links); err != nil {
			return nil, fmt.Errorf("failed to parse links for %s: %w", documentID, err)
		}
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at for %s: %w", documentID, err)
	}
	return &e, nil
}

// Count returns the number of catalogued documents.
func (c *SQLiteCatalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM summaries").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count catalog entries: %w", err)
	}
	return n, nil
}
