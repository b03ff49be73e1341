package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the full docvecd configuration.
type Config struct {
	Listen string `yaml:"listen"`

	TaskDBPath   string `yaml:"task_db_path"`
	VectorDBPath string `yaml:"vector_db_path"`
	UploadDir    string `yaml:"upload_dir"`
	ImageDir     string `yaml:"image_dir"`

	// BaseURL is the public prefix used when building image URLs,
	// e.g. "http://192.168.1.101:8001".
	BaseURL string `yaml:"base_url"`

	// TokenizerPath points at a HuggingFace tokenizer.json. Empty falls
	// back to whitespace tokenization.
	TokenizerPath string `yaml:"tokenizer_path"`
	WindowSize    int    `yaml:"window_size"`
	Overlap       int    `yaml:"overlap"`

	Embedding EmbeddingConfig `yaml:"embedding"`

	// StaleMinutes is how long a processing task may sit untouched before
	// startup requeues it.
	StaleMinutes int `yaml:"stale_minutes"`
	// PurgeHours is how long finished tasks are kept.
	PurgeHours int `yaml:"purge_hours"`

	LogLevel string `yaml:"log_level"`
}

// EmbeddingConfig configures the embedding backend. An empty endpoint
// selects the no-op embedder (zero vectors), which is only useful for
// development.
type EmbeddingConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:       ":8001",
		TaskDBPath:   "db/tasks.db",
		VectorDBPath: "db/vectors.db",
		UploadDir:    "uploads",
		ImageDir:     "image_store",
		BaseURL:      "http://localhost:8001",
		WindowSize:   700,
		Overlap:      100,
		StaleMinutes: 30,
		PurgeHours:   24,
		LogLevel:     "info",
	}
}

// LoadConfig reads and parses a YAML config file merged over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.TaskDBPath == "" {
		return fmt.Errorf("task_db_path is required")
	}
	if c.VectorDBPath == "" {
		return fmt.Errorf("vector_db_path is required")
	}
	if c.UploadDir == "" {
		return fmt.Errorf("upload_dir is required")
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("window_size must be > 0")
	}
	if c.Overlap < 0 || c.Overlap >= c.WindowSize {
		return fmt.Errorf("overlap must be in [0, window_size)")
	}
	return nil
}
