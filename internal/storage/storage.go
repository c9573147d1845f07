// Package storage defines the durable dataset of labeled examples.
package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hyperjump/shikibetsu/internal/models"
)

// Dataset persists the ordered example sequence. Each mutating call is atomic:
// either every row is written or none is.
type Dataset interface {
	// Load returns all examples in insertion order.
	Load(ctx context.Context) ([]models.Example, error)
	// Append adds examples at the end in one transaction. A known key fails with models.ErrDuplicateExample.
	Append(ctx context.Context, examples []models.Example) error
	// Delete removes one example. An unknown key fails with models.ErrNotFound.
	Delete(ctx context.Context, key models.Key) error
	// Clear removes every example.
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	// Path returns the file backing the dataset.
	Path() string
	Close() error
}

// Backend names a Dataset implementation.
type Backend string

const (
	// BackendSQLite stores examples in a SQLite database (default).
	BackendSQLite Backend = "sqlite"
	// BackendBolt stores examples in a bbolt key/value file.
	BackendBolt Backend = "bolt"
)

// Open opens the dataset at path with the named backend. Parent directories are created.
func Open(backend string, path string) (Dataset, error) {
	switch Backend(backend) {
	case BackendSQLite, "":
		return NewSQLiteDataset(path)
	case BackendBolt:
		return NewBoltDataset(path)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: sqlite, bolt)", backend)
	}
}

func encodeVector(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(x))
	}
	return out
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}
