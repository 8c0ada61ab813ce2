package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
	ProviderMbox  = "mbox"
	ProviderMCP   = "mcp"
)

// Config mirrors config.yaml.
type Config struct {
	Source struct {
		Provider string `yaml:"provider"` // gmail, imap, mbox or mcp
	} `yaml:"source"`
	Gmail struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		User            string `yaml:"user"`
	} `yaml:"gmail"`
	IMAP struct {
		Host     string   `yaml:"host"`
		Email    string   `yaml:"email"`
		UseTLS   bool     `yaml:"use_tls"`
		Provider string   `yaml:"provider"`
		Auth     string   `yaml:"auth"` // password or oauth
		Password string   `yaml:"password"`
		Folders  []string `yaml:"folders"`
	} `yaml:"imap"`
	Mbox struct {
		Path string `yaml:"path"`
	} `yaml:"mbox"`
	MCP struct {
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
		Listen   string `yaml:"listen"`
	} `yaml:"mcp"`
	Fetch struct {
		Start             string        `yaml:"start"` // YYYY-MM-DD or RFC3339
		End               string        `yaml:"end"`   // YYYY-MM-DD or RFC3339
		MaxEmails         int           `yaml:"max_emails"`
		MaxRetries        int           `yaml:"max_retries"`
		RetryBackoff      time.Duration `yaml:"retry_backoff"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
	} `yaml:"fetch"`
	Extract struct {
		Keywords          []string `yaml:"keywords"`
		SnippetLength     int      `yaml:"snippet_length"`
		Timezone          string   `yaml:"timezone"`
		CompanyFromSender bool     `yaml:"company_from_sender"`
	} `yaml:"extract"`
	Export struct {
		CSV  string `yaml:"csv"`
		XLSX string `yaml:"xlsx"`
	} `yaml:"export"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console or json
		File   string `yaml:"file"`
	} `yaml:"log"`
}

// Load reads the config file, expands ${VAR} references and applies
// defaults. A missing file yields the defaults when allowMissing is set.
func Load(path string, allowMissing bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			cfg := &Config{}
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML config content.
func Parse(b []byte) (*Config, error) {
	content := expandEnvVars(string(b))

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset field.
func (cfg *Config) ApplyDefaults() {
	if cfg.Source.Provider == "" {
		cfg.Source.Provider = ProviderGmail
	}
	cfg.Source.Provider = strings.ToLower(cfg.Source.Provider)

	if cfg.Gmail.CredentialsFile == "" {
		cfg.Gmail.CredentialsFile = "credentials.json"
	}
	if cfg.Gmail.TokenFile == "" {
		cfg.Gmail.TokenFile = "token.json"
	}
	if cfg.Gmail.User == "" {
		cfg.Gmail.User = "me"
	}

	if cfg.IMAP.Provider == "" && cfg.IMAP.Email != "" {
		cfg.IMAP.Provider = inferEmailProvider(cfg.IMAP.Email)
	}
	if cfg.IMAP.Host == "" && cfg.IMAP.Email != "" {
		cfg.IMAP.Host = inferIMAPHost(cfg.IMAP.Email)
		if cfg.IMAP.Host != "" {
			cfg.IMAP.UseTLS = true
		}
	}
	if cfg.IMAP.Auth == "" {
		cfg.IMAP.Auth = "password"
	}
	if len(cfg.IMAP.Folders) == 0 {
		cfg.IMAP.Folders = getDefaultFolders(cfg.IMAP.Provider)
	}

	if cfg.MCP.Listen == "" {
		cfg.MCP.Listen = ":8080"
	}

	if cfg.Fetch.MaxEmails <= 0 {
		cfg.Fetch.MaxEmails = 500
	}
	if cfg.Fetch.RetryBackoff <= 0 {
		cfg.Fetch.RetryBackoff = time.Second
	}

	if cfg.Extract.SnippetLength <= 0 {
		cfg.Extract.SnippetLength = 200
	}
	if cfg.Extract.Timezone == "" {
		cfg.Extract.Timezone = "Local"
	}

	if cfg.Export.CSV == "" {
		cfg.Export.CSV = "applications.csv"
	}
	if cfg.Export.XLSX == "" {
		cfg.Export.XLSX = "applications.xlsx"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

// Validate checks the settings the selected provider needs.
func (cfg *Config) Validate() error {
	switch cfg.Source.Provider {
	case ProviderGmail:
		if cfg.Gmail.CredentialsFile == "" {
			return errors.New("gmail.credentials_file is required")
		}
	case ProviderIMAP:
		if cfg.IMAP.Email == "" {
			return errors.New("imap.email is required")
		}
		if cfg.IMAP.Host == "" {
			return fmt.Errorf("imap.host is required: cannot infer it from %s", cfg.IMAP.Email)
		}
		if cfg.IMAP.Auth != "password" && cfg.IMAP.Auth != "oauth" {
			return fmt.Errorf("imap.auth must be password or oauth, got %q", cfg.IMAP.Auth)
		}
	case ProviderMbox:
		if cfg.Mbox.Path == "" {
			return errors.New("mbox.path is required")
		}
	case ProviderMCP:
		if cfg.MCP.Endpoint == "" {
			return errors.New("mcp.endpoint is required")
		}
	default:
		return fmt.Errorf("unknown source.provider %q", cfg.Source.Provider)
	}
	if cfg.Fetch.MaxRetries < 0 {
		return errors.New("fetch.max_retries must not be negative")
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves extract.timezone.
func (cfg *Config) Location() (*time.Location, error) {
	if strings.EqualFold(cfg.Extract.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(cfg.Extract.Timezone)
	if err != nil {
		return nil, fmt.Errorf("extract.timezone: %w", err)
	}
	return loc, nil
}

// expandEnvVars replaces ${VAR_NAME}; unknown variables are left as is.
func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return match
	})
}

func inferEmailProvider(email string) string {
	email = strings.ToLower(email)

	if strings.Contains(email, "@gmail.com") || strings.Contains(email, "@googlemail.com") {
		return "gmail"
	}
	if strings.Contains(email, "@outlook.com") || strings.Contains(email, "@hotmail.com") || strings.Contains(email, "@live.com") {
		return "outlook"
	}
	if strings.Contains(email, "@yahoo.com") || strings.Contains(email, "@yahoo.co.") {
		return "yahoo"
	}

	return "custom"
}

func inferIMAPHost(email string) string {
	switch inferEmailProvider(email) {
	case "gmail":
		return "imap.gmail.com:993"
	case "outlook":
		return "outlook.office365.com:993"
	case "yahoo":
		return "imap.mail.yahoo.com:993"
	default:
		return ""
	}
}

// Gmail's All Mail already holds the inbox, so only it is searched.
func getDefaultFolders(provider string) []string {
	switch provider {
	case "gmail":
		return []string{"[Gmail]/All Mail"}
	case "outlook":
		return []string{"INBOX", "Archive"}
	default:
		return []string{"INBOX"}
	}
}

// ParseDateLoose parses YYYY-MM-DD or RFC3339, returning def otherwise.
func ParseDateLoose(s string, def time.Time) time.Time {
	if s == "" {
		return def
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return def
}
