//go:build cgo
// +build cgo

package classifier

import (
	"context"

	"github.com/hyperjump/shikibetsu/internal/embedding"
	"github.com/hyperjump/shikibetsu/pkg/utils"
)

// nliClasses is the logits width of the supported NLI heads. Column order differs per model.
const nliClasses = 3

// ONNXScorer runs an exported NLI model once per (text, hypothesis) pair and
// reports the entailment probability. The model's output is named "logits".
type ONNXScorer struct {
	enc       *embedding.EncoderSession
	tokenizer embedding.Tokenizer
	language  Language
	maxTokens int
}

// NewONNXScorer loads the NLI model at modelPath. Hypotheses are phrased with lang's
// template and read from its entailment column. A non-positive maxTokens uses 256.
func NewONNXScorer(modelPath string, lang Language, maxTokens int) (*ONNXScorer, error) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	enc, err := embedding.NewEncoderSession(modelPath, "logits", maxTokens, nliClasses)
	if err != nil {
		return nil, err
	}
	return &ONNXScorer{enc: enc, tokenizer: &embedding.SimpleTokenizer{}, language: lang, maxTokens: maxTokens}, nil
}

// Score returns the entailment probability of each label's hypothesis given text.
func (s *ONNXScorer) Score(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	if err := checkInput(text, labels); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(labels))
	for _, label := range labels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logits, err := s.enc.Run(s.tokenizer.TokenizePair(text, s.language.Hypothesis(label), s.maxTokens))
		if err != nil {
			return nil, err
		}
		out[label] = utils.Softmax(logits)[s.language.Entailment]
	}
	return out, nil
}

// Close releases the ONNX session and its tensors.
func (s *ONNXScorer) Close() error { return s.enc.Close() }
