// Package embedding provides text embedding providers and caching.
package embedding

import (
	"context"
	"strings"
)

// Embedder produces L2-normalized vector embeddings for text.
// Dimensions is fixed for the lifetime of the embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// knownModels maps sentence-embedding model names to their output dimension.
var knownModels = map[string]int{
	"distiluse-base-multilingual-cased-v1":  512,
	"distiluse-base-multilingual-cased-v2":  512,
	"paraphrase-multilingual-minilm-l12-v2": 384,
	"paraphrase-multilingual-mpnet-base-v2": 768,
	"all-minilm-l6-v2":                      384,
}

// ModelDimensions returns the output dimension of a known model, matched by base name
// without extension (so "/models/all-MiniLM-L6-v2.onnx" matches). ok is false for unknown models.
func ModelDimensions(model string) (int, bool) {
	name := strings.ToLower(model)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".onnx")
	dim, ok := knownModels[name]
	return dim, ok
}

func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
