package keyword

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/shikibetsu/internal/models"
)

// Finder implements KeywordIndex with an in-memory Bleve index.
// The dataset is the source of truth, so the index is rebuilt on start instead of persisted.
type Finder struct {
	mu    sync.RWMutex
	index bleve.Index
}

type exampleDoc struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textField := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase + tokenize, no stemming.
	textField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textField)
	docMapping.AddFieldMappingsAt("label", bleve.NewKeywordFieldMapping())
	im.AddDocumentMapping("example", docMapping)
	im.DefaultType = "example"
	im.DefaultMapping = docMapping
	return im
}

// NewFinder creates an empty in-memory index.
func NewFinder() (*Finder, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &Finder{index: index}, nil
}

// Index adds examples in one batch.
func (f *Finder) Index(ctx context.Context, examples []models.Example) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	batch := f.index.NewBatch()
	for _, ex := range examples {
		if err := batch.Index(ex.Key().ID(), exampleDoc{Text: ex.Text, Label: ex.Label}); err != nil {
			return fmt.Errorf("failed to index example %s: %w", ex.Key(), err)
		}
	}
	if err := f.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index batch: %w", err)
	}
	return nil
}

// Search runs a match (or fuzzy) query over example texts and returns up to limit hits.
func (f *Finder) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if limit <= 0 {
		limit = 10
	}
	var q blevequery.Query
	if opts != nil && opts.FuzzyEnabled {
		fuzziness := opts.Fuzziness
		if fuzziness <= 0 {
			fuzziness = 1
		}
		q = buildFuzzyQuery(query, fuzziness)
	} else {
		mq := bleve.NewMatchQuery(query)
		mq.SetField("text")
		q = mq
	}
	if opts != nil && opts.Label != "" {
		lq := bleve.NewTermQuery(opts.Label)
		lq.SetField("label")
		q = bleve.NewConjunctionQuery(q, lq)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	f.mu.RLock()
	results, err := f.index.SearchInContext(ctx, req)
	f.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery ORs one FuzzyQuery per query term.
func buildFuzzyQuery(queryStr string, fuzziness int) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField("text")
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField("text")
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes one example.
func (f *Finder) Delete(ctx context.Context, key models.Key) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.index.Delete(key.ID())
}

// Reset swaps in a fresh empty index.
func (f *Finder) Reset(ctx context.Context) error {
	fresh, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return fmt.Errorf("failed to create Bleve index: %w", err)
	}
	f.mu.Lock()
	old := f.index
	f.index = fresh
	f.mu.Unlock()
	return old.Close()
}

// DocCount returns the total number of indexed examples.
func (f *Finder) DocCount() (uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.index.DocCount()
}

// Close closes the Bleve index.
func (f *Finder) Close() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.index.Close()
}
