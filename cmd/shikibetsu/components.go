package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hyperjump/shikibetsu/internal/classifier"
	"github.com/hyperjump/shikibetsu/internal/config"
	"github.com/hyperjump/shikibetsu/internal/embedding"
	"github.com/hyperjump/shikibetsu/internal/intent"
	"github.com/hyperjump/shikibetsu/internal/keyword"
	"github.com/hyperjump/shikibetsu/internal/retriever"
	"github.com/hyperjump/shikibetsu/internal/storage"
	"github.com/hyperjump/shikibetsu/internal/vector"
	"go.uber.org/zap"
)

// Components holds the wired pipeline and everything it owns.
// Dataset, Embedder, Finder and Engine are nil in classifier mode.
type Components struct {
	Dataset  storage.Dataset
	Embedder embedding.Embedder
	Finder   *keyword.Finder
	Engine   *retriever.Engine
	Scorer   classifier.Scorer
	Pipeline *intent.Pipeline
}

// Close releases components in reverse dependency order. The engine owns the finder.
func (c *Components) Close() {
	if c.Pipeline != nil {
		_ = c.Pipeline.Close()
	} else if c.Scorer != nil {
		_ = c.Scorer.Close()
	}
	if c.Engine != nil {
		_ = c.Engine.Close()
	} else if c.Finder != nil {
		_ = c.Finder.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Dataset != nil {
		_ = c.Dataset.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	mode, err := intent.ParseMode(cfg.Pipeline.Mode)
	if err != nil {
		return nil, err
	}
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	var r intent.Retriever
	if mode != intent.ModeClassifier {
		if err := c.initRetriever(ctx, cfg, logger); err != nil {
			return nil, err
		}
		r = c.Engine
	}
	if mode != intent.ModeRetriever {
		c.Scorer, err = newScorer(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	c.Pipeline, err = intent.New(mode, r, c.Scorer,
		intent.WithLogger(logger),
		intent.WithClassifierThreshold(cfg.Classifier.FallbackThreshold))
	if err != nil {
		return nil, err
	}
	logger.Info("pipeline initialized", zap.String("mode", string(mode)))
	return c, nil
}

func (c *Components) initRetriever(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	ds, err := storage.Open(cfg.Storage.Backend, cfg.Storage.DatasetPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Dataset = ds

	c.Embedder, err = newEmbedder(cfg, logger)
	if err != nil {
		return err
	}
	c.Finder, err = keyword.NewFinder()
	if err != nil {
		return fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	indexType := cfg.Retriever.IndexType
	if vector.IndexType(indexType) == vector.IndexTypeFAISS && !vector.IsFAISSAvailable() {
		logger.Warn("FAISS not available, falling back to ivf", zap.String("requested_type", indexType))
		indexType = string(vector.IndexTypeIVF)
	}
	build := vector.NewBuilder(indexType, c.Embedder.Dimensions(), vector.Params{
		NProbe:     cfg.Retriever.NProbe,
		Iterations: cfg.Retriever.KMeansIterations,
	})
	logger.Info("vector index configured",
		zap.String("type", indexType),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()))

	c.Engine, err = retriever.New(ctx, c.Dataset, c.Embedder, build, retriever.Options{
		IndexPath:         cfg.Storage.IndexPath,
		CellSize:          cfg.Retriever.CellSize,
		TopK:              cfg.Retriever.TopK,
		FallbackThreshold: cfg.Retriever.FallbackThreshold,
	}, retriever.WithLogger(logger), retriever.WithFinder(c.Finder))
	if err != nil {
		return fmt.Errorf("failed to initialize retriever: %w", err)
	}
	return nil
}

// newEmbedder builds the configured embedder behind the embedding cache.
// A missing ONNX model falls back to the hashing embedder.
func newEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	dim := cfg.Embedding.Dimensions
	var e embedding.Embedder
	switch cfg.Embedding.Provider {
	case "onnx":
		onnx, err := embedding.NewONNXEmbedder(cfg.Embedding.ModelPath, dim, cfg.Embedding.MaxTokens)
		if err != nil {
			logger.Warn("onnx embedder unavailable, using hashing embedder", zap.Error(err))
			e = embedding.NewHashingEmbedder(dim)
		} else {
			e = onnx
		}
	case "hashing":
		e = embedding.NewHashingEmbedder(dim)
	case "mock":
		e = embedding.NewMockEmbedder(dim)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
	return embedding.NewCachedEmbedder(e, cfg.Embedding.CacheSize), nil
}

// newScorer builds the configured zero-shot scorer.
// A missing ONNX model falls back to the lexical scorer.
func newScorer(cfg *config.Config, logger *zap.Logger) (classifier.Scorer, error) {
	lang, err := classifier.ParseLanguage(cfg.Classifier.Language)
	if err != nil {
		return nil, err
	}
	switch cfg.Classifier.Provider {
	case classifier.ProviderONNX:
		s, err := classifier.NewONNXScorer(cfg.Classifier.ModelPath, lang, cfg.Classifier.MaxTokens)
		if err != nil {
			logger.Warn("onnx classifier unavailable, using lexical scorer", zap.String("language", lang.Code), zap.Error(err))
			return classifier.NewLexicalScorer(), nil
		}
		return s, nil
	case classifier.ProviderHTTP:
		return classifier.NewHTTPScorer(cfg.Classifier.Endpoint, os.Getenv(cfg.Classifier.APIKeyEnv), lang, cfg.Classifier.Timeout)
	case classifier.ProviderLexical:
		return classifier.NewLexicalScorer(), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Classifier.Provider)
	}
}
