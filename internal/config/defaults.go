package config

import (
	"time"

	"github.com/hyperjump/shikibetsu/internal/embedding"
)

const (
	defaultDataDir        = ".shikibetsu/intent"
	defaultEmbeddingModel = "distiluse-base-multilingual-cased-v2"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.DatasetPath == "" {
		cfg.Storage.DatasetPath = defaultDataDir + "/examples.db"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = defaultDataDir + "/intent.idx"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = defaultEmbeddingModel
	}
	if cfg.Embedding.Dimensions == 0 {
		if dim, ok := embedding.ModelDimensions(cfg.Embedding.Model); ok {
			cfg.Embedding.Dimensions = dim
		} else {
			cfg.Embedding.Dimensions = 512
		}
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 128
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}

	if cfg.Retriever.IndexType == "" {
		cfg.Retriever.IndexType = "ivf"
	}
	if cfg.Retriever.CellSize == 0 {
		cfg.Retriever.CellSize = 10
	}
	if cfg.Retriever.NProbe == 0 {
		cfg.Retriever.NProbe = 8
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 5
	}
	if cfg.Retriever.FallbackThreshold == nil {
		t := 0.7
		cfg.Retriever.FallbackThreshold = &t
	}
	if cfg.Retriever.Voting == "" {
		cfg.Retriever.Voting = "soft"
	}
	if cfg.Retriever.KMeansIterations == 0 {
		cfg.Retriever.KMeansIterations = 20
	}

	if cfg.Classifier.Provider == "" {
		cfg.Classifier.Provider = "onnx"
	}
	if cfg.Classifier.Language == "" {
		cfg.Classifier.Language = "en"
	}
	if cfg.Classifier.APIKeyEnv == "" {
		cfg.Classifier.APIKeyEnv = "SHIKIBETSU_CLASSIFIER_TOKEN"
	}
	if cfg.Classifier.Timeout == 0 {
		cfg.Classifier.Timeout = 30 * time.Second
	}
	if cfg.Classifier.MaxTokens == 0 {
		cfg.Classifier.MaxTokens = 256
	}

	if cfg.Pipeline.Mode == "" {
		cfg.Pipeline.Mode = "both"
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
}

// Default returns a config with defaults applied and paths resolved against the home directory.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Storage.DatasetPath = expandPath(cfg.Storage.DatasetPath, "")
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, "")
	return cfg
}
