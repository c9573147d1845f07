package retriever

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/hyperjump/shikibetsu/internal/models"
	"github.com/hyperjump/shikibetsu/internal/vector"
	"go.uber.org/zap"
)

// load restores examples from the dataset and the index from its snapshot.
// A missing or inconsistent snapshot is rebuilt from the dataset and written back.
func (e *Engine) load(ctx context.Context) error {
	if e.opts.IndexPath != "" {
		if err := os.MkdirAll(filepath.Dir(e.opts.IndexPath), 0755); err != nil {
			return fmt.Errorf("create index dir: %w", err)
		}
	}
	examples, err := e.dataset.Load(ctx)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	dim := e.embedder.Dimensions()
	for _, ex := range examples {
		if len(ex.Vector) != dim {
			return fmt.Errorf("dataset %s holds %d-dim vectors, embedder produces %d", e.dataset.Path(), len(ex.Vector), dim)
		}
	}

	index, err := e.restore(examples)
	if err != nil {
		return err
	}
	if index == nil {
		e.logger.Info("rebuilding vector index from dataset", zap.Int("examples", len(examples)))
		index, err = e.rebuild(ctx, examples)
		if err != nil {
			return err
		}
		if len(examples) > 0 {
			if err := e.writeSnapshot(index); err != nil {
				e.logger.Warn("failed to write index snapshot", zap.Error(err))
			}
		}
	}
	e.cur = newState(index, examples)

	if e.finder != nil && len(examples) > 0 {
		if err := e.finder.Index(ctx, examples); err != nil {
			return fmt.Errorf("keyword index: %w", err)
		}
	}
	e.logger.Info("retriever loaded",
		zap.Int("examples", len(examples)),
		zap.Int("nlist", index.NList()),
		zap.String("index_type", index.Type()))
	return nil
}

// restore returns the snapshot index when it matches the dataset, or nil when a rebuild is needed.
func (e *Engine) restore(examples []models.Example) (vector.VectorIndex, error) {
	if e.opts.IndexPath == "" || len(examples) == 0 {
		return nil, nil
	}
	if _, err := os.Stat(e.opts.IndexPath); err != nil {
		return nil, nil
	}
	want := vector.NList(len(examples), e.opts.CellSize)
	index, err := e.build(want)
	if err != nil {
		return nil, fmt.Errorf("create vector index: %w", err)
	}
	if err := index.Load(e.opts.IndexPath); err != nil {
		e.logger.Warn("discarding unreadable index snapshot", zap.String("path", e.opts.IndexPath), zap.Error(err))
		_ = index.Close()
		return nil, nil
	}
	if !index.Trained() || index.Size() != len(examples) || index.NList() != want {
		e.logger.Warn("index snapshot does not match dataset",
			zap.Int("snapshot_size", index.Size()),
			zap.Int("dataset_size", len(examples)),
			zap.Int("snapshot_nlist", index.NList()),
			zap.Int("want_nlist", want))
		_ = index.Close()
		return nil, nil
	}
	if pos, ok := holdsVectors(index, examples); !ok {
		e.logger.Warn("index snapshot vectors do not match dataset", zap.Int("position", pos))
		_ = index.Close()
		return nil, nil
	}
	return index, nil
}

// holdsVectors reports whether index stores exactly the example vectors in order.
// Indexes that cannot return stored vectors are never trusted. On mismatch the
// first differing position is returned, or -1 when the index cannot be checked.
func holdsVectors(index vector.VectorIndex, examples []models.Example) (int, bool) {
	r, ok := index.(vector.Reconstructor)
	if !ok {
		return -1, false
	}
	for pos, ex := range examples {
		v, ok := r.Vector(pos)
		if !ok || !slices.Equal(v, ex.Vector) {
			return pos, false
		}
	}
	return len(examples), true
}

// nextIndex returns the index for examples after appending added. The current index
// is extended on a copy while nlist is unchanged, otherwise everything is retrained.
func (e *Engine) nextIndex(ctx context.Context, cur vector.VectorIndex, examples, added []models.Example) (vector.VectorIndex, error) {
	want := vector.NList(len(examples), e.opts.CellSize)
	if !cur.Trained() || cur.NList() != want {
		return e.rebuild(ctx, examples)
	}
	next, err := cur.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone vector index: %w", err)
	}
	if err := next.Add(ctx, vectorsOf(added)); err != nil {
		_ = next.Close()
		return nil, fmt.Errorf("add to vector index: %w", err)
	}
	return next, nil
}

// rebuild creates a fresh index sized for examples. Empty input yields an untrained index.
func (e *Engine) rebuild(ctx context.Context, examples []models.Example) (vector.VectorIndex, error) {
	nlist := vector.NList(len(examples), e.opts.CellSize)
	index, err := e.build(nlist)
	if err != nil {
		return nil, fmt.Errorf("create vector index: %w", err)
	}
	if len(examples) == 0 {
		return index, nil
	}
	vecs := vectorsOf(examples)
	if err := index.Train(ctx, vecs); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("train vector index: %w", err)
	}
	if err := index.Add(ctx, vecs); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("add to vector index: %w", err)
	}
	return index, nil
}

// publish persists next and swaps it in. The snapshot goes to a temp file, the dataset
// transaction commits, the snapshot is renamed into place, then memory is updated.
// Any failure before commit leaves disk and memory untouched. Once the dataset has
// committed the mutation succeeds; a snapshot that cannot be installed is dropped
// and load rebuilds it from the dataset.
func (e *Engine) publish(next vector.VectorIndex, examples []models.Example, commit func() error) error {
	tmp := ""
	if e.opts.IndexPath != "" {
		tmp = e.opts.IndexPath + ".tmp"
		if err := next.Save(tmp); err != nil {
			_ = os.Remove(tmp)
			_ = next.Close()
			return fmt.Errorf("write index snapshot: %w", err)
		}
	}
	if err := commit(); err != nil {
		if tmp != "" {
			_ = os.Remove(tmp)
		}
		_ = next.Close()
		return err
	}

	if tmp != "" {
		if err := os.Rename(tmp, e.opts.IndexPath); err != nil {
			e.logger.Error("index snapshot not installed; it will be rebuilt on next load",
				zap.String("path", e.opts.IndexPath), zap.Error(err))
			e.dropSnapshot(tmp)
		}
	}

	e.mu.Lock()
	prev := e.cur
	e.cur = newState(next, examples)
	e.mu.Unlock()
	if prev != nil && prev.index != nil {
		_ = prev.index.Close()
	}
	return nil
}

// dropSnapshot removes the pending temp file and the now stale installed snapshot.
func (e *Engine) dropSnapshot(tmp string) {
	for _, p := range []string{tmp, e.opts.IndexPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			e.logger.Warn("failed to remove stale index snapshot", zap.String("path", p), zap.Error(err))
		}
	}
}

// writeSnapshot installs index at IndexPath through a temp file.
func (e *Engine) writeSnapshot(index vector.VectorIndex) error {
	tmp := e.opts.IndexPath + ".tmp"
	if err := index.Save(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, e.opts.IndexPath); err != nil {
		return errors.Join(err, os.Remove(tmp))
	}
	return nil
}
