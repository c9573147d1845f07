// Package config provides configuration loading and structs for the shikibetsu server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	LogLevel   string           `yaml:"log_level"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Retriever  RetrieverConfig  `yaml:"retriever"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the dataset backend and the two persisted artifacts.
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	DatasetPath string `yaml:"dataset_path"`
	IndexPath   string `yaml:"index_path"`
}

// EmbeddingConfig selects and tunes the sentence embedder.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// RetrieverConfig holds vector index and voting settings.
type RetrieverConfig struct {
	IndexType         string   `yaml:"index_type"`
	CellSize          int      `yaml:"cell_size"`
	NProbe            int      `yaml:"nprobe"`
	TopK              int      `yaml:"top_k"`
	// FallbackThreshold unset means 0.7; 0 disables the retriever fallback.
	FallbackThreshold *float64 `yaml:"fallback_threshold"`
	Voting            string   `yaml:"voting"`
	KMeansIterations  int      `yaml:"kmeans_iterations"`
}

// ClassifierConfig selects the zero-shot scorer.
type ClassifierConfig struct {
	Provider          string        `yaml:"provider"`
	Language          string        `yaml:"language"`
	ModelPath         string        `yaml:"model_path"`
	Endpoint          string        `yaml:"endpoint"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxTokens         int           `yaml:"max_tokens"`
	FallbackThreshold float64       `yaml:"fallback_threshold"`
}

// PipelineConfig holds the ensemble mode.
type PipelineConfig struct {
	Mode string `yaml:"mode"`
}

// WatchConfig lists seed files (or glob patterns) reimported on change.
type WatchConfig struct {
	Files    []string      `yaml:"files"`
	Debounce time.Duration `yaml:"debounce"`
	ExistOK  *bool         `yaml:"exist_ok"`
}

// ExistOKOrDefault reports whether reimports skip known examples; defaults to true when unset.
func (w *WatchConfig) ExistOKOrDefault() bool {
	if w.ExistOK != nil {
		return *w.ExistOK
	}
	return true
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatasetPath = expandPath(cfg.Storage.DatasetPath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Classifier.ModelPath != "" {
		cfg.Classifier.ModelPath = expandPath(cfg.Classifier.ModelPath, configDir)
	}
	for i, f := range cfg.Watch.Files {
		cfg.Watch.Files[i] = expandPath(f, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
