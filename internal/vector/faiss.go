//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexIVF_c.h>
#include <faiss/c_api/index_factory_c.h>
#include <faiss/c_api/clone_index_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"
)

// FAISSIndex wraps a FAISS IndexIVFFlat with inner-product metric.
// FAISS assigns sequential ids on add, which are used directly as positions.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
	params     Params
	mu         sync.RWMutex
}

// NewFAISSIndex creates an untrained "IVF{nlist},Flat" index with inner product.
func NewFAISSIndex(dimensions int, params Params) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	params = params.withDefaults()
	index, err := newFAISSIVF(dimensions, params)
	if err != nil {
		return nil, err
	}
	return &FAISSIndex{index: index, dimensions: dimensions, params: params}, nil
}

func newFAISSIVF(dimensions int, params Params) (*C.FaissIndex, error) {
	desc := C.CString(fmt.Sprintf("IVF%d,Flat", params.NList))
	defer C.free(unsafe.Pointer(desc))
	var index *C.FaissIndex
	if ret := C.faiss_index_factory(&index, C.int(dimensions), desc, C.METRIC_INNER_PRODUCT); ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	setNProbe(index, params.NProbe)
	return index, nil
}

func setNProbe(index *C.FaissIndex, nprobe int) {
	if ivf := C.faiss_IndexIVF_cast(index); ivf != nil {
		C.faiss_IndexIVF_set_nprobe(ivf, C.size_t(nprobe))
	}
}

// faissLastError returns the last FAISS error message.
func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

func (f *FAISSIndex) flatten(vectors [][]float32) ([]float32, error) {
	flat := make([]float32, len(vectors)*f.dimensions)
	for i, vec := range vectors {
		if len(vec) != f.dimensions {
			return nil, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), f.dimensions)
		}
		copy(flat[i*f.dimensions:(i+1)*f.dimensions], vec)
	}
	return flat, nil
}

// Train fits the coarse quantizer.
func (f *FAISSIndex) Train(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return fmt.Errorf("%w: no training vectors", ErrUntrainable)
	}
	if len(vectors) < f.params.NList {
		return fmt.Errorf("%w: %d vectors for %d cells", ErrUntrainable, len(vectors), f.params.NList)
	}
	flat, err := f.flatten(vectors)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if ret := C.faiss_Index_train(f.index, C.idx_t(len(vectors)), (*C.float)(unsafe.Pointer(&flat[0]))); ret != 0 {
		return fmt.Errorf("failed to train FAISS index: %s", faissLastError())
	}
	return nil
}

// Add appends vectors to the trained index.
func (f *FAISSIndex) Add(ctx context.Context, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if C.faiss_Index_is_trained(f.index) == 0 {
		return ErrNotTrained
	}
	if len(vectors) == 0 {
		return nil
	}
	flat, err := f.flatten(vectors)
	if err != nil {
		return err
	}
	if ret := C.faiss_Index_add(f.index, C.idx_t(len(vectors)), (*C.float)(unsafe.Pointer(&flat[0]))); ret != 0 {
		return fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}
	return nil
}

// Search returns up to k vectors by inner product.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	ntotal := int(C.faiss_Index_ntotal(f.index))
	if ntotal == 0 {
		return nil, ErrEmptyIndex
	}
	if k <= 0 {
		return nil, nil
	}
	k = min(k, ntotal)

	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}
	results := make([]*VectorResult, 0, k)
	for i := 0; i < k; i++ {
		if labels[i] < 0 {
			continue // fewer than k vectors in probed cells
		}
		results = append(results, &VectorResult{Position: int(labels[i]), Score: float64(distances[i])})
	}
	return results, nil
}

// Reset replaces the index with a fresh untrained one.
func (f *FAISSIndex) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	index, err := newFAISSIVF(f.dimensions, f.params)
	if err != nil {
		return err
	}
	C.faiss_Index_free(f.index)
	f.index = index
	return nil
}

// Clone returns an independent copy of the index.
func (f *FAISSIndex) Clone() (VectorIndex, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out *C.FaissIndex
	if ret := C.faiss_clone_index(f.index, &out); ret != 0 {
		return nil, fmt.Errorf("failed to clone FAISS index: %s", faissLastError())
	}
	return &FAISSIndex{index: out, dimensions: f.dimensions, params: f.params}, nil
}

// Save writes the index to path.
func (f *FAISSIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	if ret := C.faiss_write_index_fname(f.index, cPath); ret != 0 {
		return fmt.Errorf("failed to save FAISS index: %s", faissLastError())
	}
	return nil
}

// Load reads the index from path. If the file does not exist, no error is returned and the index is unchanged.
func (f *FAISSIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	var loaded *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &loaded); ret != 0 {
		return fmt.Errorf("failed to load FAISS index: %s", faissLastError())
	}
	if d := int(C.faiss_Index_d(loaded)); d != f.dimensions {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", d, f.dimensions)
	}
	ivf := C.faiss_IndexIVF_cast(loaded)
	if ivf == nil {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("snapshot is not an IVF index")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	C.faiss_Index_free(f.index)
	f.index = loaded
	f.params.NList = int(C.faiss_IndexIVF_nlist(ivf))
	f.params = f.params.withDefaults()
	setNProbe(f.index, f.params.NProbe)
	return nil
}

// Trained reports whether the coarse quantizer is trained.
func (f *FAISSIndex) Trained() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return C.faiss_Index_is_trained(f.index) != 0
}

// Size returns the number of vectors.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int(C.faiss_Index_ntotal(f.index))
}

// NList returns the number of inverted lists.
func (f *FAISSIndex) NList() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.params.NList
}

// Dimensions returns the vector dimension.
func (f *FAISSIndex) Dimensions() int {
	return f.dimensions
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}
