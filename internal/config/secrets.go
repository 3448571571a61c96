package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode"
)

// ErrSecretNotFound is returned when a resolver has no value for a secret.
var ErrSecretNotFound = errors.New("secret not found")

// SecretResolver looks up a named field of a stored credential item.
type SecretResolver interface {
	GetSecret(ctx context.Context, item, field string) (string, error)
}

// ResolveSecrets fills credentials that are still empty after the file and
// environment have been applied. Lookup failures are logged and skipped;
// Validate reports whatever is still missing.
func (c *Config) ResolveSecrets(ctx context.Context, r SecretResolver) {
	if r == nil {
		return
	}
	targets := []struct {
		item, field string
		dst         *string
	}{
		{"Canoe", "client_id", &c.Canoe.ClientID},
		{"Canoe", "client_secret", &c.Canoe.ClientSecret},
		{"Notion", "token", &c.Notion.Token},
		{"Notion", "database_id", &c.Notion.DatabaseID},
		{"GoogleSheets", "credentials_json", &c.Sheets.CredentialsJSON},
		{"GoogleSheets", "spreadsheet_id", &c.Sheets.SpreadsheetID},
	}
	for _, t := range targets {
		if *t.dst != "" {
			continue
		}
		v, err := r.GetSecret(ctx, t.item, t.field)
		if err != nil {
			if !errors.Is(err, ErrSecretNotFound) {
				slog.Warn("Secret lookup failed.", "item", t.item, "field", t.field, "error", err)
			}
			continue
		}
		*t.dst = v
		slog.Debug("Resolved secret.", "item", t.item, "field", t.field)
	}
}

// NewSecretResolver builds the resolver selected by the configuration. When
// the Bitwarden vault cannot be opened it falls back to the environment.
func NewSecretResolver(ctx context.Context, s Secrets) SecretResolver {
	env := EnvResolver{}
	switch strings.ToLower(s.Provider) {
	case "none":
		return nil
	case "env":
		return env
	}
	bw, err := NewBitwardenResolver(ctx, s.Binary, s.Folder)
	if err != nil {
		slog.Warn("Bitwarden not available, falling back to environment variables.", "error", err)
		return env
	}
	return ChainResolver{bw, env}
}

// ---------------------------------------------------------------------------
// Environment
// ---------------------------------------------------------------------------

// EnvResolver reads ITEM_FIELD environment variables, e.g. Canoe/client_id
// from CANOE_CLIENT_ID.
type EnvResolver struct{}

func (EnvResolver) GetSecret(_ context.Context, item, field string) (string, error) {
	name := envName(item + "_" + field)
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s: %w", name, ErrSecretNotFound)
}

func envName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, s)
}

// ChainResolver tries each resolver in order.
type ChainResolver []SecretResolver

func (c ChainResolver) GetSecret(ctx context.Context, item, field string) (string, error) {
	var errs []error
	for _, r := range c {
		v, err := r.GetSecret(ctx, item, field)
		if err == nil && v != "" {
			return v, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%s.%s: %w", item, field, ErrSecretNotFound)
	}
	return "", errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Bitwarden
// ---------------------------------------------------------------------------

type commandRunner func(ctx context.Context, stdin string, args ...string) ([]byte, error)

// BitwardenResolver reads credentials from items in one Bitwarden folder
// through the bw CLI.
type BitwardenResolver struct {
	folder  string
	session string
	run     commandRunner
	folders map[string]string
}

type bwItem struct {
	Name     string `json:"name"`
	FolderID string `json:"folderId"`
	Notes    string `json:"notes"`
	Login    *struct {
		Username string `json:"username"`
		Password string `json:"password"`
		URIs     []struct {
			URI string `json:"uri"`
		} `json:"uris"`
	} `json:"login"`
	Fields []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"fields"`
}

// NewBitwardenResolver checks the vault status and unlocks it with
// BW_PASSWORD (sent on stdin) or an existing BW_SESSION.
func NewBitwardenResolver(ctx context.Context, binary, folder string) (*BitwardenResolver, error) {
	if binary == "" {
		binary = "bw"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("bitwarden CLI not found: %w", err)
	}
	return newBitwardenResolver(ctx, folder, execRunner(binary))
}

func newBitwardenResolver(ctx context.Context, folder string, run commandRunner) (*BitwardenResolver, error) {
	r := &BitwardenResolver{folder: folder, run: run, folders: make(map[string]string)}

	status, err := r.status(ctx, "")
	if err != nil {
		return nil, err
	}
	switch status {
	case "unauthenticated":
		return nil, errors.New("bitwarden CLI not authenticated, run 'bw login'")
	case "unlocked":
		r.session = os.Getenv("BW_SESSION")
		return r, nil
	case "locked":
	default:
		return nil, fmt.Errorf("unexpected bitwarden status %q", status)
	}

	if password := os.Getenv("BW_PASSWORD"); password != "" {
		unlockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		out, err := r.run(unlockCtx, password, "unlock", "--raw")
		if err != nil {
			return nil, fmt.Errorf("failed to unlock bitwarden: %w", err)
		}
		r.session = strings.TrimSpace(string(out))
	} else {
		r.session = os.Getenv("BW_SESSION")
		if r.session == "" {
			return nil, errors.New("bitwarden is locked, set BW_SESSION or BW_PASSWORD")
		}
	}

	if len(r.session) < 10 {
		return nil, errors.New("invalid bitwarden session token")
	}
	if st, err := r.status(ctx, r.session); err != nil || st != "unlocked" {
		return nil, fmt.Errorf("bitwarden session not usable (status %q): %v", st, err)
	}
	slog.Info("Bitwarden unlocked.")
	return r, nil
}

func (r *BitwardenResolver) status(ctx context.Context, session string) (string, error) {
	args := []string{"status"}
	if session != "" {
		args = append(args, "--session", session)
	}
	out, err := r.run(ctx, "", args...)
	if err != nil {
		return "", fmt.Errorf("bw status: %w", err)
	}
	var st struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(out, &st); err != nil {
		return "", fmt.Errorf("failed to parse bitwarden status: %w", err)
	}
	return st.Status, nil
}

func (r *BitwardenResolver) withSession(args ...string) []string {
	if r.session != "" {
		args = append(args, "--session", r.session)
	}
	return args
}

// GetSecret finds item in the configured folder and extracts field.
func (r *BitwardenResolver) GetSecret(ctx context.Context, item, field string) (string, error) {
	out, err := r.run(ctx, "", r.withSession("list", "items", "--search", item)...)
	if err != nil {
		return "", fmt.Errorf("bw list items: %w", err)
	}
	var items []bwItem
	if err := json.Unmarshal(out, &items); err != nil {
		return "", fmt.Errorf("failed to parse bitwarden items: %w", err)
	}

	for _, it := range items {
		if it.FolderID == "" {
			continue
		}
		name, err := r.folderName(ctx, it.FolderID)
		if err != nil || name != r.folder {
			continue
		}
		if v := fieldValue(it, field); v != "" {
			return v, nil
		}
		return "", fmt.Errorf("field %q of %s: %w", field, item, ErrSecretNotFound)
	}
	return "", fmt.Errorf("item %q in folder %q: %w", item, r.folder, ErrSecretNotFound)
}

func (r *BitwardenResolver) folderName(ctx context.Context, id string) (string, error) {
	if name, ok := r.folders[id]; ok {
		return name, nil
	}
	out, err := r.run(ctx, "", r.withSession("get", "folder", id)...)
	if err != nil {
		return "", err
	}
	var folder struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(out, &folder); err != nil {
		return "", err
	}
	r.folders[id] = folder.Name
	return folder.Name, nil
}

// fieldValue maps common credential names onto login fields, then custom
// fields, then "key: value" lines in the notes.
func fieldValue(it bwItem, field string) string {
	if it.Login != nil {
		switch field {
		case "username", "client_id":
			if it.Login.Username != "" {
				return it.Login.Username
			}
		case "password", "client_secret", "api_key", "token":
			if it.Login.Password != "" {
				return it.Login.Password
			}
		case "base_url":
			if len(it.Login.URIs) > 0 && it.Login.URIs[0].URI != "" {
				return it.Login.URIs[0].URI
			}
		}
	}
	for _, f := range it.Fields {
		if f.Name == field {
			return f.Value
		}
	}
	for _, line := range strings.Split(it.Notes, "\n") {
		if k, v, ok := strings.Cut(line, ":"); ok && strings.TrimSpace(k) == field {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func execRunner(binary string) commandRunner {
	return func(ctx context.Context, stdin string, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, binary, args...)
		if stdin != "" {
			cmd.Stdin = strings.NewReader(stdin)
		}
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		out, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w: %s", binary, args[0], err, strings.TrimSpace(stderr.String()))
		}
		return out, nil
	}
}
