//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"fmt"
)

var errFAISSUnavailable = fmt.Errorf("FAISS not available")

// FAISSIndex is a stub that returns an error when FAISS is not available.
// Build with -tags=faiss to enable FAISS support.
type FAISSIndex struct{}

// NewFAISSIndex returns an error because FAISS is not available.
func NewFAISSIndex(dimensions int, params Params) (*FAISSIndex, error) {
	return nil, fmt.Errorf("FAISS not available: build with -tags=faiss and install FAISS library")
}

func (f *FAISSIndex) Train(ctx context.Context, vectors [][]float32) error { return errFAISSUnavailable }

func (f *FAISSIndex) Add(ctx context.Context, vectors [][]float32) error { return errFAISSUnavailable }

func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	return nil, errFAISSUnavailable
}

func (f *FAISSIndex) Reset() error { return errFAISSUnavailable }

func (f *FAISSIndex) Clone() (VectorIndex, error) { return nil, errFAISSUnavailable }

func (f *FAISSIndex) Save(path string) error { return errFAISSUnavailable }

func (f *FAISSIndex) Load(path string) error { return errFAISSUnavailable }

func (f *FAISSIndex) Trained() bool { return false }

func (f *FAISSIndex) Size() int { return 0 }

func (f *FAISSIndex) NList() int { return 0 }

func (f *FAISSIndex) Dimensions() int { return 0 }

func (f *FAISSIndex) Type() string { return string(IndexTypeFAISS) }

func (f *FAISSIndex) Close() error { return nil }
