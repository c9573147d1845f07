//go:build cgo
// +build cgo

package embedding

import (
	"context"

	"github.com/hyperjump/shikibetsu/pkg/utils"
)

// ONNXEmbedder produces sentence embeddings with a model exported to ONNX whose
// pooled output is named "output". Needs CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	enc        *EncoderSession
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int
}

// NewONNXEmbedder loads the model at modelPath for inputs of maxTokens tokens.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	enc, err := NewEncoderSession(modelPath, "output", maxTokens, dimensions)
	if err != nil {
		return nil, err
	}
	return &ONNXEmbedder{enc: enc, tokenizer: &SimpleTokenizer{}, dimensions: dimensions, maxTokens: maxTokens}, nil
}

// Embed returns the L2-normalized embedding of text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec, err := e.enc.Run(e.tokenizer.Tokenize(text, e.maxTokens))
	if err != nil {
		return nil, err
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

func (e *ONNXEmbedder) Dimensions() int { return e.dimensions }

func (e *ONNXEmbedder) Close() error { return e.enc.Close() }
