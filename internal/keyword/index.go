// Package keyword provides full-text lookup over example utterances.
package keyword

import (
	"context"

	"github.com/hyperjump/shikibetsu/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// Label restricts hits to examples with this exact label.
	Label string
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	// Default is 1 when FuzzyEnabled is true.
	Fuzziness int
}

// KeywordIndex defines keyword lookup over examples keyed by models.Key.ID.
type KeywordIndex interface {
	Index(ctx context.Context, examples []models.Example) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, key models.Key) error
	Reset(ctx context.Context) error
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
}
