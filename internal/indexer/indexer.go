// Package indexer imports seed files into the example store.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperjump/shikibetsu/internal/extract"
	"github.com/hyperjump/shikibetsu/internal/fileid"
	"github.com/hyperjump/shikibetsu/internal/models"
	"go.uber.org/zap"
)

// BatchAdder stores examples all-or-nothing.
type BatchAdder interface {
	AddBatch(ctx context.Context, inputs []models.ExampleInput, existOK bool) (int, error)
}

type stamp struct {
	mtime int64
	size  int64
}

// Indexer reads seed files and adds their examples, one batch per file.
type Indexer struct {
	target    BatchAdder
	extractor *extract.Extractor
	existOK   bool
	logger    *zap.Logger

	mu   sync.Mutex
	seen map[string]stamp // seed ID -> last imported version
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for import events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer that adds to target. With existOK, examples already
// stored are skipped; otherwise a file holding a known example fails as a whole.
func NewIndexer(target BatchAdder, extractor *extract.Extractor, existOK bool, opts ...IndexerOption) *Indexer {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	idx := &Indexer{
		target:    target,
		extractor: extractor,
		existOK:   existOK,
		logger:    zap.NewNop(),
		seen:      make(map[string]stamp),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexFile imports one seed file and returns the number of examples added.
// A file unchanged (same mtime and size) since its last successful import is skipped.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", absPath)
	}
	id := fileid.SeedID(absPath)
	st := stamp{mtime: info.ModTime().UnixNano(), size: info.Size()}
	idx.mu.Lock()
	prev, ok := idx.seen[id]
	idx.mu.Unlock()
	if ok && prev == st {
		idx.logger.Debug("indexer skipping unchanged seed file", zap.String("path", absPath))
		return 0, nil
	}

	examples, err := idx.extractor.Extract(absPath)
	if err != nil {
		return 0, fmt.Errorf("extract examples: %w", err)
	}
	for i := range examples {
		examples[i].Text = Preprocess(examples[i].Text)
	}
	added, err := idx.target.AddBatch(ctx, examples, idx.existOK)
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", absPath, err)
	}

	idx.mu.Lock()
	idx.seen[id] = st
	idx.mu.Unlock()
	idx.logger.Info("seed file imported",
		zap.String("path", absPath),
		zap.String("seed_id", id),
		zap.Int("examples", len(examples)),
		zap.Int("added", added))
	return added, nil
}

// IndexPaths expands patterns and imports every matching seed file in order.
// onFile, when set, is called after each file. Returns the total added and the first error.
func (idx *Indexer) IndexPaths(ctx context.Context, patterns []string, onFile func(path string, added int)) (int, error) {
	paths, err := extract.Expand(patterns)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := idx.IndexFile(ctx, p)
		if err != nil {
			return total, err
		}
		total += n
		if onFile != nil {
			onFile(p, n)
		}
	}
	return total, nil
}

// Forget drops the import record for path so the next IndexFile reads it again.
func (idx *Indexer) Forget(path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return
	}
	idx.mu.Lock()
	delete(idx.seen, fileid.SeedID(absPath))
	idx.mu.Unlock()
}
