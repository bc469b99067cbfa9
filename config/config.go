package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "config.yaml"
	ExamplePath = "config.example.yaml"

	BackendGoogle   = "google"
	BackendPostgres = "postgres"

	ProviderGemini = "gemini"
	ProviderOllama = "ollama"

	placeholderGeminiKey = "SUA_CHAVE_GEMINI_AQUI"
)

type Config struct {
	Debug       bool              `yaml:"debug"`
	Spreadsheet SpreadsheetConfig `yaml:"spreadsheet"`
	Columns     Columns           `yaml:"columns"`
	AI          AIConfig          `yaml:"ai"`
	Lookup      LookupConfig      `yaml:"lookup"`
	Logging     LoggingConfig     `yaml:"logging"`
	Progress    ProgressConfig    `yaml:"progress"`

	// Path is the file the configuration was read from, empty for built-in defaults.
	Path string `yaml:"-"`
}

type SpreadsheetConfig struct {
	Backend         string   `yaml:"backend"`
	CredentialsFile string   `yaml:"credentials_file"`
	Name            string   `yaml:"name"`
	ID              string   `yaml:"id"`
	Sheets          []string `yaml:"sheets"`
	DateFormat      string   `yaml:"date_format"`
	TimestampFormat string   `yaml:"timestamp_format"`
	Timezone        string   `yaml:"timezone"`
	PostgresDSN     string   `yaml:"postgres_dsn"`
}

// Columns maps each tracked field to the header name used in the sheet.
type Columns struct {
	CaseNumber          string `yaml:"case_number"`
	CurrentStatus       string `yaml:"current_status"`
	LastChecked         string `yaml:"last_checked"`
	Summary             string `yaml:"summary"`
	LastPublicationDate string `yaml:"last_publication_date"`
	LastPublicationType string `yaml:"last_publication_type"`
}

type AIConfig struct {
	Provider        string       `yaml:"provider"`
	Gemini          GeminiConfig `yaml:"gemini"`
	Ollama          OllamaConfig `yaml:"ollama"`
	Timeout         Duration     `yaml:"timeout"`
	MaxPublications int          `yaml:"max_publications"`
}

type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

type LookupConfig struct {
	BaseURL          string   `yaml:"base_url"`
	Delay            Duration `yaml:"delay"`
	Timeout          Duration `yaml:"timeout"`
	MaxRetries       int      `yaml:"max_retries"`
	MaxPages         int      `yaml:"max_pages"`
	PageSize         int      `yaml:"page_size"`
	VerifyCheckDigit bool     `yaml:"verify_check_digit"`
	UserAgent        string   `yaml:"user_agent"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ProgressConfig struct {
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`
}

// Duration accepts either a Go duration string ("2s", "1m30s") or a bare
// integer number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := parseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return d, nil
}

func Defaults() *Config {
	return &Config{
		Spreadsheet: SpreadsheetConfig{
			Backend:         BackendGoogle,
			CredentialsFile: "credenciais.json",
			Name:            "Controle Processual",
			DateFormat:      "02/01/2006",
			TimestampFormat: "02/01/2006 15:04",
			Timezone:        "America/Sao_Paulo",
		},
		Columns: DefaultColumns(),
		AI: AIConfig{
			Provider:        ProviderGemini,
			Gemini:          GeminiConfig{Model: "gemini-2.0-flash"},
			Ollama:          OllamaConfig{URL: "http://localhost:11434", Model: "llama3.1:8b-instruct-q4_K_M"},
			Timeout:         Duration(60 * time.Second),
			MaxPublications: 3,
		},
		Lookup: LookupConfig{
			BaseURL:    "https://comunicaapi.pje.jus.br/api/v1",
			Delay:      Duration(2 * time.Second),
			Timeout:    Duration(30 * time.Second),
			MaxRetries: 2,
			MaxPages:   5,
			PageSize:   100,
			UserAgent:  "consultaprocessual/1.0",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func DefaultColumns() Columns {
	return Columns{
		CaseNumber:          "Processo",
		CurrentStatus:       "Status_Atual",
		LastChecked:         "Ultima_Verificacao",
		Summary:             "Resumo_IA",
		LastPublicationDate: "Ultima_Publicacao",
		LastPublicationType: "Tipo_Ultima_Publicacao",
	}
}

// LoadEnv reads .env files into the process environment without overriding
// variables that are already set. Missing files are not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the configuration file at path over the defaults and applies
// environment overrides. An empty path means DefaultPath with a fallback to
// ExamplePath and then to the built-in defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if resolved != "" {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, Errorf("read %s: %v", resolved, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, Errorf("parse %s: %v", resolved, err)
		}
		cfg.Path = resolved
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.resolveRelativePaths()
	return cfg, nil
}

func resolvePath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", Errorf("config file %s: %v", path, err)
		}
		return path, nil
	}
	for _, candidate := range []string{DefaultPath, ExamplePath} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("GOOGLE_CREDENTIALS_FILE", &c.Spreadsheet.CredentialsFile)
	str("GOOGLE_SHEET_NAME", &c.Spreadsheet.Name)
	str("GOOGLE_SHEET_ID", &c.Spreadsheet.ID)
	str("DATABASE_URL", &c.Spreadsheet.PostgresDSN)
	str("IA_PROVIDER", &c.AI.Provider)
	str("GEMINI_API_KEY", &c.AI.Gemini.APIKey)
	str("GEMINI_MODEL", &c.AI.Gemini.Model)
	str("OLLAMA_URL", &c.AI.Ollama.URL)
	str("OLLAMA_MODEL", &c.AI.Ollama.Model)
	str("PROGRESS_JWT_SECRET", &c.Progress.JWTSecret)
	c.AI.Provider = strings.ToLower(c.AI.Provider)

	if v, ok := lookup("DELAY_ENTRE_CONSULTAS"); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return Errorf("DELAY_ENTRE_CONSULTAS: %v", err)
		}
		c.Lookup.Delay = Duration(d)
	}
	if v, ok := lookup("MAX_PUBLICACOES"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Errorf("MAX_PUBLICACOES: %q is not a number", v)
		}
		c.AI.MaxPublications = n
	}
	if v, ok := lookup("DEBUG"); ok && v != "" {
		c.Debug = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	if c.Debug {
		c.Logging.Level = "debug"
	}
	return nil
}

// resolveRelativePaths makes the credentials file relative to the directory
// holding the config file.
func (c *Config) resolveRelativePaths() {
	creds := c.Spreadsheet.CredentialsFile
	if creds == "" || filepath.IsAbs(creds) || c.Path == "" {
		return
	}
	c.Spreadsheet.CredentialsFile = filepath.Join(filepath.Dir(c.Path), creds)
}

// Location returns the timezone used to stamp last-checked timestamps.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Spreadsheet.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Validate checks everything a run needs before touching any external
// service. AI settings are only checked when aiEnabled is true.
func (c *Config) Validate(aiEnabled bool) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Spreadsheet.Backend {
	case BackendGoogle:
		if c.Spreadsheet.Name == "" && c.Spreadsheet.ID == "" {
			add("spreadsheet.name or spreadsheet.id is required")
		}
		if c.Spreadsheet.CredentialsFile == "" {
			add("spreadsheet.credentials_file is required")
		} else if _, err := os.Stat(c.Spreadsheet.CredentialsFile); err != nil {
			add("credentials file not found: %s", c.Spreadsheet.CredentialsFile)
		}
	case BackendPostgres:
		if c.Spreadsheet.PostgresDSN == "" {
			add("spreadsheet.postgres_dsn (or DATABASE_URL) is required for the postgres backend")
		}
		if c.Spreadsheet.Name == "" {
			add("spreadsheet.name is required")
		}
	default:
		add("unknown spreadsheet.backend %q (use %s or %s)", c.Spreadsheet.Backend, BackendGoogle, BackendPostgres)
	}
	if _, err := time.LoadLocation(c.Spreadsheet.Timezone); err != nil {
		add("invalid spreadsheet.timezone %q", c.Spreadsheet.Timezone)
	}
	if c.Spreadsheet.DateFormat == "" || c.Spreadsheet.TimestampFormat == "" {
		add("spreadsheet.date_format and spreadsheet.timestamp_format must not be empty")
	}

	if err := c.Columns.Validate(); err != nil {
		add("%v", err)
	}

	if aiEnabled {
		switch c.AI.Provider {
		case ProviderGemini:
			if c.AI.Gemini.APIKey == "" || c.AI.Gemini.APIKey == placeholderGeminiKey {
				add("Gemini API key is not configured")
			}
			if c.AI.Gemini.Model == "" {
				add("ai.gemini.model is required")
			}
		case ProviderOllama:
			if _, err := url.ParseRequestURI(c.AI.Ollama.URL); err != nil {
				add("invalid ai.ollama.url %q", c.AI.Ollama.URL)
			}
			if c.AI.Ollama.Model == "" {
				add("ai.ollama.model is required")
			}
		default:
			add("unknown ai.provider %q (use %s or %s)", c.AI.Provider, ProviderGemini, ProviderOllama)
		}
		if c.AI.MaxPublications < 1 {
			add("ai.max_publications must be at least 1")
		}
	}

	if _, err := url.ParseRequestURI(c.Lookup.BaseURL); err != nil {
		add("invalid lookup.base_url %q", c.Lookup.BaseURL)
	}
	if c.Lookup.Delay < 0 {
		add("lookup.delay must not be negative")
	}
	if c.Lookup.MaxRetries < 0 {
		add("lookup.max_retries must not be negative")
	}
	if c.Lookup.MaxPages < 1 {
		add("lookup.max_pages must be at least 1")
	}
	if c.Lookup.PageSize < 1 || c.Lookup.PageSize > 100 {
		add("lookup.page_size must be between 1 and 100")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		add("logging.format must be json or console")
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

// Validate rejects empty names and two fields mapped to the same header.
func (c Columns) Validate() error {
	seen := make(map[string]string)
	for field, name := range c.byField() {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("columns.%s must not be empty", field)
		}
		key := NormalizeHeader(name)
		if other, dup := seen[key]; dup {
			first, second := other, field
			if second < first {
				first, second = second, first
			}
			return fmt.Errorf("columns.%s and columns.%s map to the same header %q", first, second, name)
		}
		seen[key] = field
	}
	return nil
}

func (c Columns) byField() map[string]string {
	return map[string]string{
		"case_number":           c.CaseNumber,
		"current_status":        c.CurrentStatus,
		"last_checked":          c.LastChecked,
		"summary":               c.Summary,
		"last_publication_date": c.LastPublicationDate,
		"last_publication_type": c.LastPublicationType,
	}
}

// NormalizeHeader folds case and drops underscores and spaces so "Status Atual"
// matches "status_atual".
func NormalizeHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "")
	return strings.ReplaceAll(name, " ", "")
}
