// Package classifier provides zero-shot intent scorers.
package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/shikibetsu/internal/models"
)

// Scorer assigns each candidate label an independent probability that text expresses it.
type Scorer interface {
	Score(ctx context.Context, text string, labels []string) (map[string]float64, error)
	Close() error
}

// Provider names accepted by the configuration.
const (
	ProviderONNX    = "onnx"
	ProviderHTTP    = "http"
	ProviderLexical = "lexical"
)

// Best returns the highest-scoring label. Ties go to the label listed first.
func Best(scores map[string]float64, labels []string) (string, float64) {
	var (
		best  string
		score float64
	)
	for i, l := range labels {
		s := scores[l]
		if i == 0 || s > score {
			best, score = l, s
		}
	}
	return best, score
}

func checkInput(text string, labels []string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: text cannot be empty", models.ErrInvalidArgument)
	}
	if len(labels) == 0 {
		return fmt.Errorf("%w: at least one candidate label is required", models.ErrInvalidArgument)
	}
	return nil
}
