// Package config loads docrag configuration from a YAML file, the
// environment and built-in defaults, in that order of increasing precedence
// for environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Embedding providers
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// Default values
const (
	DefaultChunkSize        = 1000
	DefaultChunkOverlap     = 200
	DefaultWorkers          = 1
	DefaultTopK             = 20
	DefaultMaxContextChunks = 200
	DefaultCacheSize        = 10000
	DefaultTimeoutSecs      = 60
	DefaultOllamaURL        = "http://localhost:11434"
	DefaultOpenAIURL        = "https://api.openai.com"
)

// ErrConfiguration is matched by every *ConfigurationError
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports a missing or invalid setting. It is fatal at startup.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrConfiguration) true
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Config holds the application configuration
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunker   ChunkerConfig   `yaml:"chunker,omitempty"`
	Indexer   IndexerConfig   `yaml:"indexer,omitempty"`
	Search    SearchConfig    `yaml:"search,omitempty"`
	Log       LogConfig       `yaml:"log,omitempty"`
}

// StorageConfig selects the vector store backend
type StorageConfig struct {
	Driver string `yaml:"driver"`         // "sqlite" | "postgres"
	Path   string `yaml:"path,omitempty"` // SQLite database file
	DSN    string `yaml:"dsn,omitempty"`  // PostgreSQL connection string
}

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"` // "ollama" | "openai" | "local"
	Model             string  `yaml:"model,omitempty"`
	BaseURL           string  `yaml:"base_url,omitempty"`
	APIKey            string  `yaml:"api_key,omitempty"`
	TimeoutSecs       int     `yaml:"timeout_secs,omitempty"`
	BatchSize         int     `yaml:"batch_size,omitempty"` // 0 sends each document in one call
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	CacheSize         int     `yaml:"cache_size,omitempty"`
}

// Timeout returns the per-request provider timeout
func (e EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSecs) * time.Second
}

// ChunkerConfig holds chunking parameters
type ChunkerConfig struct {
	ChunkSize int `yaml:"chunk_size,omitempty"`
	Overlap   int `yaml:"overlap,omitempty"`
}

// IndexerConfig holds indexer-specific configuration
type IndexerConfig struct {
	Workers int      `yaml:"workers,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"` // doublestar patterns matched against document names
}

// SearchConfig holds retrieval defaults
type SearchConfig struct {
	TopK             int `yaml:"top_k,omitempty"`
	MaxContextChunks int `yaml:"max_context_chunks,omitempty"`
}

// LogConfig holds logging options
type LogConfig struct {
	Verbose bool `yaml:"verbose,omitempty"`
}

// DefaultPath returns ~/.docrag/config.yaml
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".docrag", "config.yaml")
	}
	return filepath.Join(homeDir, ".docrag", "config.yaml")
}

// Load resolves the config file and builds the configuration.
// An explicit path must exist. Otherwise $DOCRAG_CONFIG or the default
// location is read when present, and defaults are used when it is not.
func Load(path string) (*Config, error) {
	required := path != ""
	if path == "" {
		path = os.Getenv("DOCRAG_CONFIG")
		required = path != ""
	}
	if path == "" {
		path = DefaultPath()
	}

	cfg := newConfig()
	data, err := os.ReadFile(expandPath(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err) && !required:
		// defaults only
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(cfg)
}

// Parse builds a configuration from YAML bytes
func Parse(data []byte) (*Config, error) {
	cfg := newConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return finish(cfg)
}

// Default returns the configuration used when no file is present
func Default() (*Config, error) {
	return finish(newConfig())
}

// newConfig presets the fields where zero is a meaningful value. YAML only
// overwrites keys that are present, so an explicit 0 survives.
func newConfig() *Config {
	return &Config{
		Chunker: ChunkerConfig{Overlap: DefaultChunkOverlap},
		Indexer: IndexerConfig{Workers: DefaultWorkers},
	}
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables
func (c *Config) applyEnv() {
	setString(&c.Storage.Driver, "DOCRAG_DB_DRIVER")
	setString(&c.Storage.Path, "DOCRAG_DB_PATH")
	setString(&c.Storage.DSN, "DOCRAG_DB_DSN")
	setString(&c.Embedding.Provider, "DOCRAG_EMBEDDING_PROVIDER")
	setString(&c.Embedding.Model, "DOCRAG_EMBEDDING_MODEL")
	setString(&c.Embedding.BaseURL, "DOCRAG_EMBEDDING_BASE_URL")

	if v := os.Getenv("DOCRAG_VERBOSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Log.Verbose = b
		}
	}

	// Provider credentials and hosts only fill gaps
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Embedding.BaseURL == "" && strings.EqualFold(c.Embedding.Provider, ProviderOllama) {
		c.Embedding.BaseURL = os.Getenv("OLLAMA_HOST")
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.Driver == DriverSQLite {
		if c.Storage.Path == "" {
			c.Storage.Path = filepath.Join(filepath.Dir(DefaultPath()), "docrag.db")
		}
		if c.Storage.Path != ":memory:" {
			c.Storage.Path = expandPath(c.Storage.Path)
		}
	}

	c.Embedding.Provider = strings.ToLower(c.Embedding.Provider)
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = detectProvider(c.Embedding.APIKey)
	}
	if c.Embedding.BaseURL == "" {
		switch c.Embedding.Provider {
		case ProviderOllama:
			c.Embedding.BaseURL = DefaultOllamaURL
		case ProviderOpenAI:
			c.Embedding.BaseURL = DefaultOpenAIURL
		}
	}
	c.Embedding.BaseURL = strings.TrimRight(c.Embedding.BaseURL, "/")
	if c.Embedding.TimeoutSecs == 0 {
		c.Embedding.TimeoutSecs = DefaultTimeoutSecs
	}
	if c.Embedding.CacheSize == 0 {
		c.Embedding.CacheSize = DefaultCacheSize
	}

	if c.Chunker.ChunkSize == 0 {
		c.Chunker.ChunkSize = DefaultChunkSize
	}
	if c.Search.TopK == 0 {
		c.Search.TopK = DefaultTopK
	}
	if c.Search.MaxContextChunks == 0 {
		c.Search.MaxContextChunks = DefaultMaxContextChunks
	}
}

// detectProvider picks a provider when none is configured:
// an OpenAI key selects openai, OLLAMA_HOST selects ollama, otherwise local.
func detectProvider(apiKey string) string {
	if apiKey != "" {
		return ProviderOpenAI
	}
	if os.Getenv("OLLAMA_HOST") != "" {
		return ProviderOllama
	}
	return ProviderLocal
}

// Validate checks the configuration for missing credentials and bad values
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			return &ConfigurationError{Field: "storage.path", Message: "required for sqlite"}
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return &ConfigurationError{Field: "storage.dsn", Message: "required for postgres (set DOCRAG_DB_DSN)"}
		}
	default:
		return &ConfigurationError{Field: "storage.driver", Message: fmt.Sprintf("unknown driver %q", c.Storage.Driver)}
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			return &ConfigurationError{Field: "embedding.api_key", Message: "required for openai (set OPENAI_API_KEY)"}
		}
	case ProviderOllama, ProviderLocal:
	default:
		return &ConfigurationError{Field: "embedding.provider", Message: fmt.Sprintf("unknown provider %q", c.Embedding.Provider)}
	}

	if c.Embedding.BatchSize < 0 {
		return &ConfigurationError{Field: "embedding.batch_size", Message: "must not be negative"}
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return &ConfigurationError{Field: "embedding.requests_per_second", Message: "must not be negative"}
	}
	if c.Chunker.ChunkSize < 0 || c.Chunker.Overlap < 0 {
		return &ConfigurationError{Field: "chunker", Message: "chunk_size and overlap must not be negative"}
	}
	if c.Indexer.Workers < 1 {
		return &ConfigurationError{Field: "indexer.workers", Message: "must be at least 1"}
	}
	for _, pattern := range c.Indexer.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return &ConfigurationError{Field: "indexer.exclude", Message: fmt.Sprintf("invalid pattern %q", pattern)}
		}
	}
	if c.Search.TopK < 0 || c.Search.MaxContextChunks < 0 {
		return &ConfigurationError{Field: "search", Message: "top_k and max_context_chunks must not be negative"}
	}
	return nil
}

// expandPath expands ~ and $HOME to the user's home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "$HOME/") || path == "$HOME" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path, "$HOME"))
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
	}
	return path
}
