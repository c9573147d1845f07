package classifier

import (
	"context"
	"strings"

	"github.com/hyperjump/shikibetsu/pkg/utils"
)

// LexicalScorer scores a label by the share of its words found in the text.
// It needs no model and serves offline setups and tests.
type LexicalScorer struct{}

// NewLexicalScorer returns a LexicalScorer.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Score returns, per label, the fraction of label words present in text.
func (s *LexicalScorer) Score(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	if err := checkInput(text, labels); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := make(map[string]struct{})
	for _, w := range utils.Tokens(text) {
		words[stem(w)] = struct{}{}
	}
	out := make(map[string]float64, len(labels))
	for _, label := range labels {
		terms := utils.Tokens(strings.NewReplacer("_", " ", "-", " ").Replace(label))
		if len(terms) == 0 {
			out[label] = 0
			continue
		}
		hit := 0
		for _, t := range terms {
			if _, ok := words[stem(t)]; ok {
				hit++
			}
		}
		out[label] = float64(hit) / float64(len(terms))
	}
	return out, nil
}

// Close is a no-op.
func (s *LexicalScorer) Close() error {
	return nil
}

// stem drops a possessive and a plural "s".
func stem(w string) string {
	w = strings.TrimSuffix(w, "'s")
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		w = w[:len(w)-1]
	}
	return w
}
