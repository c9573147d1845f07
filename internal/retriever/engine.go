// Package retriever recognizes intents by nearest-neighbour voting over labeled examples.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hyperjump/shikibetsu/internal/embedding"
	"github.com/hyperjump/shikibetsu/internal/keyword"
	"github.com/hyperjump/shikibetsu/internal/models"
	"github.com/hyperjump/shikibetsu/internal/storage"
	"github.com/hyperjump/shikibetsu/internal/vector"
	"go.uber.org/zap"
)

const (
	// DefaultTopK is the number of neighbours consulted per query.
	DefaultTopK = 5
	// DefaultFallbackThreshold is the minimum best similarity for a confident answer.
	DefaultFallbackThreshold = 0.7
)

// Options tunes the engine. Zero values take the package defaults.
type Options struct {
	// IndexPath is where the index snapshot lives. Empty disables snapshots.
	IndexPath         string
	CellSize          int
	TopK              int
	// FallbackThreshold is the minimum best similarity for a confident answer.
	// Nil means DefaultFallbackThreshold; zero or below turns the fallback off.
	FallbackThreshold *float64
}

func (o Options) withDefaults() Options {
	if o.CellSize <= 0 {
		o.CellSize = vector.DefaultCellSize
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.FallbackThreshold == nil {
		t := DefaultFallbackThreshold
		o.FallbackThreshold = &t
	}
	return o
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for rebuild and persistence events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithFinder attaches a keyword index kept in sync with the example set.
func WithFinder(f keyword.KeywordIndex) Option {
	return func(e *Engine) { e.finder = f }
}

// RecognizeOptions are per-query settings.
type RecognizeOptions struct {
	Voting models.Voting
	// TopK overrides the engine default when positive.
	TopK int
}

// state is published by pointer and never mutated afterwards.
type state struct {
	index     vector.VectorIndex
	examples  []models.Example
	positions map[models.Key]int
}

// Engine owns the example sequence and its vector index.
type Engine struct {
	dataset  storage.Dataset
	embedder embedding.Embedder
	build    vector.Builder
	opts     Options
	finder   keyword.KeywordIndex
	logger   *zap.Logger

	// writeMu admits one mutation at a time.
	writeMu sync.Mutex
	// mu guards cur; searches hold it for reading so a replaced index is closed only when idle.
	mu  sync.RWMutex
	cur *state
}

// New loads the dataset and index snapshot and returns a ready engine.
func New(ctx context.Context, dataset storage.Dataset, embedder embedding.Embedder, build vector.Builder, opts Options, options ...Option) (*Engine, error) {
	e := &Engine{
		dataset:  dataset,
		embedder: embedder,
		build:    build,
		opts:     opts.withDefaults(),
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		opt(e)
	}
	if err := e.load(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Add inserts one example. A known (text, label) pair is skipped when existOK is set,
// otherwise ErrDuplicateExample is returned. Reports whether the example was inserted.
func (e *Engine) Add(ctx context.Context, in models.ExampleInput, existOK bool) (bool, error) {
	if err := in.Validate(); err != nil {
		return false, err
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if _, ok := e.snapshot().positions[in.Key()]; ok {
		if existOK {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s", models.ErrDuplicateExample, in.Key())
	}
	vec, err := e.embedder.Embed(ctx, in.Text)
	if err != nil {
		return false, fmt.Errorf("embed example: %w", err)
	}
	ex := models.Example{Text: in.Text, Label: in.Label, Vector: vec}
	if err := e.insert(ctx, []models.Example{ex}); err != nil {
		return false, err
	}
	return true, nil
}

// AddBatch inserts examples all-or-nothing with a single index update.
// Duplicates, against the store or earlier in the batch, follow the same existOK policy as Add.
// Returns the number of inserted examples.
func (e *Engine) AddBatch(ctx context.Context, inputs []models.ExampleInput, existOK bool) (int, error) {
	for i := range inputs {
		if err := inputs[i].Validate(); err != nil {
			return 0, fmt.Errorf("example %d: %w", i, err)
		}
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	known := e.snapshot().positions
	seen := make(map[models.Key]struct{}, len(inputs))
	fresh := make([]models.ExampleInput, 0, len(inputs))
	for _, in := range inputs {
		key := in.Key()
		_, stored := known[key]
		_, batched := seen[key]
		if stored || batched {
			if existOK {
				continue
			}
			return 0, fmt.Errorf("%w: %s", models.ErrDuplicateExample, key)
		}
		seen[key] = struct{}{}
		fresh = append(fresh, in)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	texts := make([]string, len(fresh))
	for i, in := range fresh {
		texts[i] = in.Text
	}
	vecs, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed examples: %w", err)
	}
	if len(vecs) != len(fresh) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(fresh))
	}
	added := make([]models.Example, len(fresh))
	for i, in := range fresh {
		added[i] = models.Example{Text: in.Text, Label: in.Label, Vector: vecs[i]}
	}
	if err := e.insert(ctx, added); err != nil {
		return 0, err
	}
	return len(added), nil
}

// insert appends embedded examples. Caller holds writeMu.
func (e *Engine) insert(ctx context.Context, added []models.Example) error {
	dim := e.embedder.Dimensions()
	for _, ex := range added {
		if len(ex.Vector) != dim {
			return fmt.Errorf("embedding dimension %d, want %d", len(ex.Vector), dim)
		}
	}
	cur := e.snapshot()
	examples := make([]models.Example, 0, len(cur.examples)+len(added))
	examples = append(examples, cur.examples...)
	examples = append(examples, added...)

	next, err := e.nextIndex(ctx, cur.index, examples, added)
	if err != nil {
		return err
	}
	commit := func() error { return e.dataset.Append(ctx, added) }
	if err := e.publish(next, examples, commit); err != nil {
		return err
	}
	if e.finder != nil {
		if err := e.finder.Index(ctx, added); err != nil {
			e.logger.Warn("keyword index update failed", zap.Error(err))
		}
	}
	e.logger.Debug("examples added",
		zap.Int("added", len(added)),
		zap.Int("size", len(examples)),
		zap.Int("nlist", next.NList()))
	return nil
}

// Remove deletes one example and rebuilds the index. ErrNotFound when absent.
func (e *Engine) Remove(ctx context.Context, key models.Key) error {
	key.Text = strings.TrimSpace(key.Text)
	key.Label = strings.TrimSpace(key.Label)
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	cur := e.snapshot()
	pos, ok := cur.positions[key]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNotFound, key)
	}
	examples := make([]models.Example, 0, len(cur.examples)-1)
	examples = append(examples, cur.examples[:pos]...)
	examples = append(examples, cur.examples[pos+1:]...)

	next, err := e.rebuild(ctx, examples)
	if err != nil {
		return err
	}
	commit := func() error { return e.dataset.Delete(ctx, key) }
	if err := e.publish(next, examples, commit); err != nil {
		return err
	}
	if e.finder != nil {
		if err := e.finder.Delete(ctx, key); err != nil {
			e.logger.Warn("keyword index delete failed", zap.Error(err))
		}
	}
	e.logger.Debug("example removed", zap.Stringer("key", key), zap.Int("size", len(examples)))
	return nil
}

// Clear removes every example.
func (e *Engine) Clear(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	next, err := e.rebuild(ctx, nil)
	if err != nil {
		return err
	}
	commit := func() error { return e.dataset.Clear(ctx) }
	if err := e.publish(next, nil, commit); err != nil {
		return err
	}
	if e.finder != nil {
		if err := e.finder.Reset(ctx); err != nil {
			e.logger.Warn("keyword index reset failed", zap.Error(err))
		}
	}
	e.logger.Debug("examples cleared")
	return nil
}

// Recognize votes over the nearest examples to text.
// ErrEmptyIndex when no examples exist; ErrInvalidArgument for an unknown voting mode.
func (e *Engine) Recognize(ctx context.Context, text string, opts RecognizeOptions) (*models.Recognition, error) {
	if e.Size() == 0 {
		return nil, vector.ErrEmptyIndex
	}
	voting, err := models.ParseVoting(string(opts.Voting))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", models.ErrInvalidArgument)
	}
	k := opts.TopK
	if k <= 0 {
		k = e.opts.TopK
	}

	query, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	e.mu.RLock()
	cur := e.cur
	hits, err := cur.index.Search(ctx, query, k)
	var neighbors []models.Neighbor
	if err == nil {
		neighbors = make([]models.Neighbor, 0, len(hits))
		for _, h := range hits {
			if h.Position < 0 || h.Position >= len(cur.examples) {
				continue
			}
			ex := cur.examples[h.Position]
			neighbors = append(neighbors, models.Neighbor{Similarity: h.Score, Label: ex.Label, Text: ex.Text})
		}
	}
	e.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(neighbors) == 0 {
		return nil, vector.ErrEmptyIndex
	}

	winner, scores := vote(neighbors, voting)
	rec := &models.Recognition{
		Label:     winner,
		Winner:    winner,
		Neighbors: neighbors,
		Scores:    scores,
	}
	if t := *e.opts.FallbackThreshold; t > 0 && neighbors[0].Similarity < t {
		rec.Fallback = true
		rec.Label = models.FallbackLabel
	}
	return rec, nil
}

// Find runs a keyword lookup over example texts. Requires WithFinder.
func (e *Engine) Find(ctx context.Context, query string, limit int, opts *keyword.SearchOptions) ([]models.Example, error) {
	if e.finder == nil {
		return nil, errors.New("keyword lookup not configured")
	}
	hits, err := e.finder.Search(ctx, query, limit, opts)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Example)
	for _, ex := range e.Examples() {
		byID[ex.Key().ID()] = ex
	}
	out := make([]models.Example, 0, len(hits))
	for _, h := range hits {
		if ex, ok := byID[h.ID]; ok {
			out = append(out, ex)
		}
	}
	return out, nil
}

// Size returns the number of stored examples.
func (e *Engine) Size() int {
	return len(e.snapshot().examples)
}

// NList returns the current number of index cells.
func (e *Engine) NList() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cur.index.NList()
}

// IndexType returns the vector index implementation name.
func (e *Engine) IndexType() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cur.index.Type()
}

// Contains reports whether every label is known.
func (e *Engine) Contains(labels ...string) bool {
	known := make(map[string]struct{})
	for _, l := range e.Labels() {
		known[l] = struct{}{}
	}
	for _, l := range labels {
		if _, ok := known[l]; !ok {
			return false
		}
	}
	return true
}

// Labels returns the distinct labels in first-insertion order.
func (e *Engine) Labels() []string {
	examples := e.snapshot().examples
	seen := make(map[string]struct{})
	var labels []string
	for _, ex := range examples {
		if _, ok := seen[ex.Label]; ok {
			continue
		}
		seen[ex.Label] = struct{}{}
		labels = append(labels, ex.Label)
	}
	return labels
}

// Examples returns a copy of the stored examples in insertion order.
func (e *Engine) Examples() []models.Example {
	examples := e.snapshot().examples
	out := make([]models.Example, len(examples))
	copy(out, examples)
	return out
}

// Close releases the index and the keyword finder. The dataset is owned by the caller.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	if e.cur != nil && e.cur.index != nil {
		errs = append(errs, e.cur.index.Close())
	}
	if e.finder != nil {
		errs = append(errs, e.finder.Close())
	}
	return errors.Join(errs...)
}

func (e *Engine) snapshot() *state {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cur
}

func newState(index vector.VectorIndex, examples []models.Example) *state {
	positions := make(map[models.Key]int, len(examples))
	for i, ex := range examples {
		positions[ex.Key()] = i
	}
	return &state{index: index, examples: examples, positions: positions}
}

func vectorsOf(examples []models.Example) [][]float32 {
	out := make([][]float32, len(examples))
	for i, ex := range examples {
		out[i] = ex.Vector
	}
	return out
}
