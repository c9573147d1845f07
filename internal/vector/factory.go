package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeIVF is the pure-Go inverted-file index. Always available.
	IndexTypeIVF IndexType = "ivf"
	// IndexTypeFAISS uses FAISS IndexIVFFlat with inner product.
	// Requires FAISS library and build tag -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// NewVectorIndex creates an untrained vector index of the specified type.
// Supported types: "ivf" (default), "faiss".
// FAISS requires building with -tags=faiss and having FAISS library installed.
func NewVectorIndex(indexType string, dimensions int, params Params) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeIVF, "":
		return NewIVFIndex(dimensions, params)
	case IndexTypeFAISS:
		return NewFAISSIndex(dimensions, params)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: ivf, faiss)", indexType)
	}
}

// Builder creates fresh untrained indexes of one type and dimension with a given nlist.
type Builder func(nlist int) (VectorIndex, error)

// NewBuilder returns a Builder for the given type. Unset NList in params is replaced per call.
func NewBuilder(indexType string, dimensions int, params Params) Builder {
	return func(nlist int) (VectorIndex, error) {
		p := params
		p.NList = nlist
		return NewVectorIndex(indexType, dimensions, p)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
// This is determined by the build tag -tags=faiss.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1, Params{NList: 1})
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
