// Package config loads the summarizer's configuration from YAML and the
// environment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration, built once at start-up and passed to
// every collaborator.
type Config struct {
	Progress  Progress  `yaml:"progress"`
	Canoe     Canoe     `yaml:"canoe"`
	Vertex    Vertex    `yaml:"vertex"`
	Notion    Notion    `yaml:"notion"`
	Sheets    Sheets    `yaml:"sheets"`
	Firestore Firestore `yaml:"firestore"`
	Archive   Archive   `yaml:"archive"`
	Inbox     Inbox     `yaml:"inbox"`
	Catalog   Catalog   `yaml:"catalog"`
	Workflow  Workflow  `yaml:"workflow"`
	Secrets   Secrets   `yaml:"secrets"`
	Logging   Logging   `yaml:"logging"`
}

// Progress holds where session checkpoints are written.
type Progress struct {
	Dir string `yaml:"dir"`
}

// Canoe holds credentials and endpoints for the document API.
type Canoe struct {
	BaseURL      string        `yaml:"base_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	FilterFile   string        `yaml:"filter_file"`
}

// Vertex configures the Gemini summarizer.
type Vertex struct {
	ProjectID       string  `yaml:"project_id"`
	Region          string  `yaml:"region"`
	Model           string  `yaml:"model"`
	PromptFile      string  `yaml:"prompt_file"`
	MaxContentChars int     `yaml:"max_content_chars"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
	Temperature     float32 `yaml:"temperature"`
	MaxRetries      int     `yaml:"max_retries"`
}

// Notion configures the wiki destination.
type Notion struct {
	Token      string        `yaml:"token"`
	DatabaseID string        `yaml:"database_id"`
	BaseURL    string        `yaml:"base_url"`
	Version    string        `yaml:"version"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Sheets configures the spreadsheet destination.
type Sheets struct {
	CredentialsJSON string `yaml:"credentials_json"`
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
}

// Firestore configures the cloud summary catalog.
type Firestore struct {
	ProjectID  string `yaml:"project_id"`
	DatabaseID string `yaml:"database_id"`
	Collection string `yaml:"collection"`
}

// Archive configures the GCS bucket that keeps source PDFs and summaries.
type Archive struct {
	Bucket string `yaml:"bucket"`
}

// Inbox is the bucket read by the bucket document source and the upload
// trigger.
type Inbox struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// Catalog configures the local SQLite catalog.
type Catalog struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Workflow names the Cloud Workflow started after a batch finishes.
type Workflow struct {
	ProjectID string `yaml:"project_id"`
	Location  string `yaml:"location"`
	ID        string `yaml:"id"`
}

// Secrets selects where missing credentials are looked up.
type Secrets struct {
	Provider string `yaml:"provider"` // bitwarden, env or none
	Folder   string `yaml:"folder"`
	Binary   string `yaml:"binary"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Progress: Progress{Dir: "data/progress"},
		Canoe: Canoe{
			BaseURL:    "https://api.canoesoftware.com",
			Timeout:    60 * time.Second,
			MaxRetries: 3,
			FilterFile: "config/document_filters.json",
		},
		Vertex: Vertex{
			Region:          "us-central1",
			Model:           "gemini-1.5-pro",
			MaxContentChars: 10000,
			MaxOutputTokens: 2000,
			Temperature:     0.2,
			MaxRetries:      3,
		},
		Notion: Notion{
			BaseURL: "https://api.notion.com",
			Version: "2022-06-28",
			Timeout: 30 * time.Second,
		},
		Sheets:    Sheets{SheetName: "Quarterly Reports"},
		Firestore: Firestore{Collection: "summaries"},
		Catalog:   Catalog{SQLitePath: "data/catalog.db"},
		Workflow:  Workflow{Location: "us-central1"},
		Secrets:   Secrets{Provider: "bitwarden", Folder: "Axiom", Binary: "bw"},
		Logging:   Logging{Level: "info", Format: "text", Dir: "logs"},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML file at path on top of the defaults and then applies
// environment variable overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.fillProjectIDs()
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"PROGRESS_DIR", &cfg.Progress.Dir},
		{"CANOE_BASE_URL", &cfg.Canoe.BaseURL},
		{"CANOE_CLIENT_ID", &cfg.Canoe.ClientID},
		{"CANOE_CLIENT_SECRET", &cfg.Canoe.ClientSecret},
		{"FILTER_FILE", &cfg.Canoe.FilterFile},
		{"PROJECT_ID", &cfg.Vertex.ProjectID},
		{"VERTEX_AI_REGION", &cfg.Vertex.Region},
		{"VERTEX_MODEL", &cfg.Vertex.Model},
		{"PROMPT_FILE", &cfg.Vertex.PromptFile},
		{"NOTION_TOKEN", &cfg.Notion.Token},
		{"NOTION_DATABASE_ID", &cfg.Notion.DatabaseID},
		{"GOOGLE_SHEETS_CREDENTIALS_JSON", &cfg.Sheets.CredentialsJSON},
		{"GOOGLE_SHEETS_CREDENTIALS_FILE", &cfg.Sheets.CredentialsFile},
		{"GOOGLE_SHEETS_SPREADSHEET_ID", &cfg.Sheets.SpreadsheetID},
		{"FIRESTORE_DATABASE_ID", &cfg.Firestore.DatabaseID},
		{"FIRESTORE_COLLECTION", &cfg.Firestore.Collection},
		{"ARCHIVE_BUCKET", &cfg.Archive.Bucket},
		{"INBOX_BUCKET", &cfg.Inbox.Bucket},
		{"INBOX_PREFIX", &cfg.Inbox.Prefix},
		{"SQLITE_PATH", &cfg.Catalog.SQLitePath},
		{"WORKFLOW_ID", &cfg.Workflow.ID},
		{"WORKFLOW_LOCATION", &cfg.Workflow.Location},
		{"SECRETS_PROVIDER", &cfg.Secrets.Provider},
		{"BW_FOLDER", &cfg.Secrets.Folder},
		{"LOG_LEVEL", &cfg.Logging.Level},
		{"LOG_FORMAT", &cfg.Logging.Format},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// fillProjectIDs lets one PROJECT_ID serve every Google Cloud client.
func (c *Config) fillProjectIDs() {
	if c.Firestore.ProjectID == "" {
		c.Firestore.ProjectID = c.Vertex.ProjectID
	}
	if c.Workflow.ProjectID == "" {
		c.Workflow.ProjectID = c.Vertex.ProjectID
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks the document API settings.
func (c Canoe) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("canoe client_id and client_secret must be set (CANOE_CLIENT_ID, CANOE_CLIENT_SECRET)")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("canoe base_url must be set")
	}
	return nil
}

// Validate checks the summarizer settings.
func (v Vertex) Validate() error {
	if v.ProjectID == "" || v.Region == "" {
		return fmt.Errorf("vertex project_id and region must be set (PROJECT_ID, VERTEX_AI_REGION)")
	}
	return nil
}

// Validate checks the wiki settings.
func (n Notion) Validate() error {
	if n.Token == "" || n.DatabaseID == "" {
		return fmt.Errorf("notion token and database_id must be set (NOTION_TOKEN, NOTION_DATABASE_ID)")
	}
	return nil
}

// Validate checks the spreadsheet settings.
func (s Sheets) Validate() error {
	if s.CredentialsJSON == "" && s.CredentialsFile == "" {
		return fmt.Errorf("sheets credentials_json or credentials_file must be set")
	}
	if s.SpreadsheetID == "" {
		return fmt.Errorf("sheets spreadsheet_id must be set (GOOGLE_SHEETS_SPREADSHEET_ID)")
	}
	return nil
}

// Credentials returns the service account JSON, reading the file if needed.
func (s Sheets) Credentials() ([]byte, error) {
	if s.CredentialsJSON != "" {
		return []byte(s.CredentialsJSON), nil
	}
	data, err := os.ReadFile(s.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheets credentials: %w", err)
	}
	return data, nil
}
