// Package config provides unified configuration loading for the question
// bank pipeline. Supports YAML files, environment variables, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the digitization pipeline.
type Config struct {
	Paths         PathsConfig         `yaml:"paths"`
	Render        RenderConfig        `yaml:"render"`
	VLM           VLMConfig           `yaml:"vlm"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// PathsConfig holds input/output locations. StoreFile, LedgerFile and
// VectorFile are names inside ResultDir.
type PathsConfig struct {
	InputDir   string `yaml:"input_dir"`
	ResultDir  string `yaml:"result_dir"`
	TempDir    string `yaml:"temp_dir"`
	StoreFile  string `yaml:"store_file"`
	LedgerFile string `yaml:"ledger_file"`
	VectorFile string `yaml:"vector_file"`
}

// RenderConfig holds page rasterization settings.
type RenderConfig struct {
	DPI int `yaml:"dpi"`
}

// VLMConfig holds structured-extraction service settings. The API key is
// never read from YAML; it comes from the environment only.
type VLMConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	MaxTokens  int           `yaml:"max_tokens"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	APIKey     string        `yaml:"-"`
}

// EmbeddingConfig holds embedding service settings.
type EmbeddingConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json or console
}

// Load reads configuration from a YAML file and applies environment overrides.
// An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			InputDir:   "files",
			ResultDir:  "result",
			TempDir:    "temp",
			StoreFile:  "processed_questions.json",
			LedgerFile: "processed_files.log",
			VectorFile: "db_embeddings.npy",
		},
		Render: RenderConfig{
			DPI: 300,
		},
		VLM: VLMConfig{
			BaseURL:    "https://openrouter.ai/api/v1",
			Model:      "google/gemini-2.5-flash",
			MaxTokens:  8192,
			Timeout:    120 * time.Second,
			MaxRetries: 3,
		},
		Embedding: EmbeddingConfig{
			BaseURL:   "https://openrouter.ai/api/v1",
			Model:     "baai/bge-large-zh-v1.5",
			Dimension: 1024,
			BatchSize: 32,
			Timeout:   60 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Paths.InputDir == "" {
		return fmt.Errorf("input_dir must not be empty")
	}
	if c.Paths.ResultDir == "" {
		return fmt.Errorf("result_dir must not be empty")
	}
	if c.Render.DPI < 72 || c.Render.DPI > 600 {
		return fmt.Errorf("render dpi must be between 72 and 600, got %d", c.Render.DPI)
	}
	if c.VLM.MaxTokens < 1 {
		return fmt.Errorf("vlm max_tokens must be positive")
	}
	if c.VLM.MaxRetries < 0 {
		return fmt.Errorf("vlm max_retries must not be negative")
	}
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("embedding batch_size must be positive")
	}
	return nil
}

// StorePath returns the full path of the question store document.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.ResultDir, c.Paths.StoreFile)
}

// LedgerPath returns the full path of the processed-files ledger.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.ResultDir, c.Paths.LedgerFile)
}

// VectorPath returns the full path of the embedding matrix file.
func (c *Config) VectorPath() string {
	return filepath.Join(c.Paths.ResultDir, c.Paths.VectorFile)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QBANK_INPUT_DIR"); v != "" {
		cfg.Paths.InputDir = v
	}

	if v := os.Getenv("QBANK_RESULT_DIR"); v != "" {
		cfg.Paths.ResultDir = v
	}

	if v := os.Getenv("QBANK_TEMP_DIR"); v != "" {
		cfg.Paths.TempDir = v
	}

	if v := os.Getenv("QBANK_API_URL"); v != "" {
		cfg.VLM.BaseURL = v
		cfg.Embedding.BaseURL = v
	}

	if v := os.Getenv("QBANK_API_KEY"); v != "" {
		cfg.VLM.APIKey = v
	}

	if v := os.Getenv("QBANK_VLM_MODEL"); v != "" {
		cfg.VLM.Model = v
	}

	if v := os.Getenv("QBANK_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("QBANK_RENDER_DPI"); v != "" {
		if dpi, err := strconv.Atoi(v); err == nil {
			cfg.Render.DPI = dpi
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
