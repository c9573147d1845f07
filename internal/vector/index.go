// Package vector defines the vector index interface and shared types.
package vector

import (
	"context"
	"errors"
)

var (
	// ErrUntrainable is returned when Train gets no vectors, or fewer vectors than cells.
	ErrUntrainable = errors.New("index cannot be trained on the given vectors")
	// ErrNotTrained is returned when vectors are added before the index is trained.
	ErrNotTrained = errors.New("index is not trained")
	// ErrEmptyIndex is returned when searching an index that holds no vectors.
	ErrEmptyIndex = errors.New("index is empty")
)

// VectorIndex is an inverted-file ANN index over L2-normalized vectors.
// Vectors are addressed by their insertion position (0-based).
type VectorIndex interface {
	// Train fits the partition centroids. Vectors are not added.
	Train(ctx context.Context, vectors [][]float32) error
	// Add appends vectors to a trained index.
	Add(ctx context.Context, vectors [][]float32) error
	// Search returns up to k nearest vectors by inner product, best first.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	// Reset discards vectors and centroids, returning to the untrained state.
	Reset() error
	// Clone returns an independent copy of the index.
	Clone() (VectorIndex, error)
	Save(path string) error
	Load(path string) error
	Trained() bool
	Size() int
	NList() int
	Dimensions() int
	Type() string
	Close() error
}

// Reconstructor is implemented by indexes that can return the vector stored at a
// position. The returned slice is shared and must not be modified.
type Reconstructor interface {
	Vector(pos int) ([]float32, bool)
}

// VectorResult is a single search hit.
type VectorResult struct {
	Position int
	Score    float64
}

// Params configures partitioning and search breadth.
type Params struct {
	// NList is the number of partition cells.
	NList int
	// NProbe is the number of cells scanned per query; clamped to NList.
	NProbe int
	// Iterations bounds k-means training rounds.
	Iterations int
}

func (p Params) withDefaults() Params {
	if p.NList <= 0 {
		p.NList = 1
	}
	if p.NProbe <= 0 {
		p.NProbe = DefaultNProbe
	}
	if p.NProbe > p.NList {
		p.NProbe = p.NList
	}
	if p.Iterations <= 0 {
		p.Iterations = DefaultIterations
	}
	return p
}
