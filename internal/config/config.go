// Package config loads lecture-ingest configuration from YAML files and the
// environment. Environment variables always win over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spherical/lecture-ingest/internal/domain"
	"gopkg.in/yaml.v3"
)

// Supported extraction backends
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
)

// Config holds all configuration for an ingestion run.
type Config struct {
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Retry         RetryConfig         `yaml:"retry"`
	Render        RenderConfig        `yaml:"render"`
	Cache         CacheConfig         `yaml:"cache"`
	Store         StoreConfig         `yaml:"store"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ExtractionConfig holds extraction service settings.
type ExtractionConfig struct {
	Provider       string        `yaml:"provider"` // openrouter, openai or gemini
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url"`
	Subject        string        `yaml:"subject"`
	PromptFile     string        `yaml:"prompt_file"`
	BatchSize      int           `yaml:"batch_size"`
	Concurrency    int           `yaml:"concurrency"`
	FailFast       bool          `yaml:"fail_fast"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      float64       `yaml:"rate_limit"` // requests per second, 0 disables
	Stream         bool          `yaml:"stream"`
}

// RetryConfig holds retry settings for extraction calls.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// RenderConfig holds page rendering settings.
type RenderConfig struct {
	StagingDir string  `yaml:"staging_dir"`
	DPI        float64 `yaml:"dpi"`
	Quality    int     `yaml:"quality"`
	KeepImages bool    `yaml:"keep_images"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // none, memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// StoreConfig holds document sink settings.
type StoreConfig struct {
	Driver string `yaml:"driver"` // none, sqlite or postgres
	DSN    string `yaml:"dsn"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// LoadDotEnv loads a .env file if one exists.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...) // Ignore error if .env doesn't exist
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.ConfigError("read config file", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.ConfigError("parse config file", err)
		}

		if cfg.Extraction.PromptFile != "" {
			cfg.Extraction.PromptFile = ResolveRelativePath(path, cfg.Extraction.PromptFile)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, domain.ConfigError("validate config", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Extraction: ExtractionConfig{
			Provider:       ProviderOpenRouter,
			Subject:        "deep learning",
			BatchSize:      domain.DefaultBatchSize,
			Concurrency:    1,
			FailFast:       true,
			RequestTimeout: 5 * time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries:     3,
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     30 * time.Second,
		},
		Render: RenderConfig{
			DPI:     150,
			Quality: 85,
		},
		Cache: CacheConfig{
			Driver:     "none",
			TTL:        24 * time.Hour,
			MaxEntries: 1000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
		Store: StoreConfig{
			Driver: "none",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Extraction.Provider {
	case ProviderOpenRouter, ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("invalid extraction provider: %s", c.Extraction.Provider)
	}

	if c.Extraction.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", c.Extraction.BatchSize)
	}

	if c.Extraction.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Extraction.Concurrency)
	}

	if c.Extraction.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}

	if c.Render.Quality < 1 || c.Render.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", c.Render.Quality)
	}

	if c.Render.DPI < 0 {
		return fmt.Errorf("dpi must not be negative")
	}

	switch c.Cache.Driver {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	switch c.Store.Driver {
	case "none":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store dsn is required for driver %s", c.Store.Driver)
		}
	default:
		return fmt.Errorf("invalid store driver: %s", c.Store.Driver)
	}

	return nil
}

// RequireAPIKey reports a config error when no key is available for the provider.
func (c *Config) RequireAPIKey() error {
	if c.Extraction.APIKey == "" {
		return domain.ConfigError(apiKeyEnv(c.Extraction.Provider)+" not set", nil)
	}
	return nil
}

// apiKeyEnv returns the environment variable holding the provider's API key.
func apiKeyEnv(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return "OPENROUTER_API_KEY"
	}
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.Extraction.Provider = strings.ToLower(v)
	}

	if v := os.Getenv(apiKeyEnv(cfg.Extraction.Provider)); v != "" {
		cfg.Extraction.APIKey = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Extraction.Model = v
	}

	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.Extraction.BaseURL = v
	}

	if v := os.Getenv("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Extraction.BatchSize = n
		}
	}

	if v := os.Getenv("CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Extraction.Concurrency = n
		}
	}

	if v := os.Getenv("STAGING_DIR"); v != "" {
		cfg.Render.StagingDir = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		// Parse redis://host:port format
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Store.Driver = "sqlite"
			cfg.Store.DSN = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Store.Driver = "postgres"
			cfg.Store.DSN = v
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	return filepath.Join(filepath.Dir(configPath), targetPath)
}
