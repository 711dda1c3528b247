package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Model      string `yaml:"model"`
	MaxRetries int    `yaml:"max_retries" validate:"gte=0"`
}

// GeminiEmbedderConfig holds configuration for the Gemini embedContent API.
type GeminiEmbedderConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// EmbedderConfig selects the primary embedding provider. The deterministic
// fallback is always available; type "fallback" uses nothing else.
type EmbedderConfig struct {
	Type          string                `yaml:"type" validate:"oneof=fallback openai gemini"`
	Dimension     int                   `yaml:"dimension" validate:"gt=0"`
	MaxInputChars int                   `yaml:"max_input_chars" validate:"gt=0"`
	TimeoutSecs   int                   `yaml:"timeout_secs" validate:"gt=0"`
	OpenAI        *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Gemini        *GeminiEmbedderConfig `yaml:"gemini,omitempty"`
}

// ChunkerConfig sets the sliding window, counted in characters.
type ChunkerConfig struct {
	Size    int `yaml:"size" validate:"gt=0"`
	Overlap int `yaml:"overlap" validate:"gte=0,ltfield=Size"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k" validate:"gt=0"`
}

type IngestConfig struct {
	Workers int `yaml:"workers" validate:"gt=0"`
}

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Type     string           `yaml:"type" validate:"oneof=memory sqlite postgres bolt qdrant"`
	SQLite   *FileStoreConfig `yaml:"sqlite,omitempty"`
	Bolt     *FileStoreConfig `yaml:"bolt,omitempty"`
	Postgres *PostgresConfig  `yaml:"postgres,omitempty"`
	Qdrant   *QdrantConfig    `yaml:"qdrant,omitempty"`
}

type FileStoreConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig reads the DSN from DSNEnv when DSN is empty.
type PostgresConfig struct {
	DSN                 string `yaml:"dsn"`
	DSNEnv              string `yaml:"dsn_env"`
	MaxOpenConns        int    `yaml:"max_open_conns"`
	MaxIdleConns        int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSecs int    `yaml:"conn_max_lifetime_secs"`
}

// QdrantConfig contains connection details for a Qdrant collection.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OpenAIChatConfig configures the chat completion generator.
type OpenAIChatConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" validate:"gte=0"`
}

// GeneratorConfig selects the answer generator. The extractive generator
// also serves as the fallback when the remote one fails.
type GeneratorConfig struct {
	Type         string            `yaml:"type" validate:"oneof=extractive openai"`
	MaxSentences int               `yaml:"max_sentences" validate:"gt=0"`
	OpenAI       *OpenAIChatConfig `yaml:"openai,omitempty"`
}

type SweeperConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionMins int  `yaml:"retention_mins" validate:"gt=0"`
	IntervalSecs  int  `yaml:"interval_secs" validate:"gt=0"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr" validate:"required"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	CronSecretEnv  string   `yaml:"cron_secret_env"`
	MaxUploadMB    int      `yaml:"max_upload_mb" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Store     StoreConfig     `yaml:"store"`
	Generator GeneratorConfig `yaml:"generator"`
	Sweeper   SweeperConfig   `yaml:"sweeper"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, len(keys))
	for i, k := range keys {
		msgs[i] = e.Fields[k]
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

var validate = validator.New()

// Validate checks field constraints after defaults have been applied.
func (c *AppConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := strings.TrimPrefix(fe.Namespace(), "AppConfig.")
		switch fe.Tag() {
		case "required":
			fields[name] = fmt.Sprintf("%s is required", name)
		case "oneof":
			fields[name] = fmt.Sprintf("%s must be one of: %s", name, fe.Param())
		case "gt", "gte", "lte":
			fields[name] = fmt.Sprintf("%s must be %s %s", name, fe.Tag(), fe.Param())
		case "ltfield":
			fields[name] = fmt.Sprintf("%s must be less than %s", name, fe.Param())
		default:
			fields[name] = fmt.Sprintf("%s failed on '%s'", name, fe.Tag())
		}
	}
	return &ValidationError{Fields: fields}
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := seedConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rag/config.yaml.
// If neither exists, it writes defaults to ~/.config/rag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c EmbedderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

func (c SweeperConfig) Retention() time.Duration {
	return time.Duration(c.RetentionMins) * time.Minute
}

func (c SweeperConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rag", "config.yaml"), nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "rag")
}

// seedConfig holds the defaults a zero value cannot express. Files are
// decoded on top of it, so an omitted key keeps the seeded value.
func seedConfig() AppConfig {
	return AppConfig{
		Chunker: ChunkerConfig{Overlap: 50},
		Sweeper: SweeperConfig{Enabled: true},
	}
}

func defaultConfig() *AppConfig {
	cfg := seedConfig()
	cfg.Embedder.Type = "fallback"
	cfg.Store.Type = "sqlite"
	cfg.Generator.Type = "extractive"
	applyConfigDefaults(&cfg)
	return &cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "fallback"
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 768
	}
	if cfg.Embedder.MaxInputChars == 0 {
		cfg.Embedder.MaxInputChars = 2048
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 10
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
	}
	if cfg.Embedder.Type == "gemini" {
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiEmbedderConfig{}
		}
		g := cfg.Embedder.Gemini
		if g.BaseURL == "" {
			g.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
		}
		if g.APIKeyEnv == "" {
			g.APIKeyEnv = "GOOGLE_API_KEY"
		}
		if g.Model == "" {
			g.Model = "text-embedding-004"
		}
	}

	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 500
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}

	if cfg.Store.Type == "" {
		cfg.Store.Type = "sqlite"
	}
	switch cfg.Store.Type {
	case "sqlite":
		if cfg.Store.SQLite == nil {
			cfg.Store.SQLite = &FileStoreConfig{}
		}
		if cfg.Store.SQLite.Path == "" {
			cfg.Store.SQLite.Path = filepath.Join(defaultDataDir(), "rag.db")
		}
	case "bolt":
		if cfg.Store.Bolt == nil {
			cfg.Store.Bolt = &FileStoreConfig{}
		}
		if cfg.Store.Bolt.Path == "" {
			cfg.Store.Bolt.Path = filepath.Join(defaultDataDir(), "rag.bolt")
		}
	case "postgres":
		if cfg.Store.Postgres == nil {
			cfg.Store.Postgres = &PostgresConfig{}
		}
		if cfg.Store.Postgres.DSN == "" && cfg.Store.Postgres.DSNEnv == "" {
			cfg.Store.Postgres.DSNEnv = "DATABASE_URL"
		}
	case "qdrant":
		if cfg.Store.Qdrant == nil {
			cfg.Store.Qdrant = &QdrantConfig{}
		}
		q := cfg.Store.Qdrant
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.Collection == "" {
			q.Collection = "documents"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "extractive"
	}
	if cfg.Generator.MaxSentences == 0 {
		cfg.Generator.MaxSentences = 3
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIChatConfig{}
		}
		o := cfg.Generator.OpenAI
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "gpt-4o-mini"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 60
		}
	}

	if cfg.Sweeper.RetentionMins == 0 {
		cfg.Sweeper.RetentionMins = 30
	}
	if cfg.Sweeper.IntervalSecs == 0 {
		cfg.Sweeper.IntervalSecs = 300
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}
