package embedding

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/hyperjump/shikibetsu/pkg/utils"
)

// MockEmbedder returns scripted vectors for texts registered with Set and a
// deterministic pseudo-random unit vector for any other text.
type MockEmbedder struct {
	dimensions int

	mu    sync.RWMutex
	fixed map[string][]float32
}

// NewMockEmbedder returns a mock embedder of the given dimensions (384 when non-positive).
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions, fixed: make(map[string][]float32)}
}

// Set scripts the embedding of text. v is normalized; its length must match Dimensions.
func (e *MockEmbedder) Set(text string, v []float32) error {
	if len(v) != e.dimensions {
		return fmt.Errorf("mock embedding for %q has %d dimensions, want %d", text, len(v), e.dimensions)
	}
	out := append([]float32(nil), v...)
	utils.NormalizeL2(out)
	e.mu.Lock()
	e.fixed[text] = out
	e.mu.Unlock()
	return nil
}

// Embed returns the scripted vector for text, or one seeded by its hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	v, ok := e.fixed[text]
	e.mu.RUnlock()
	if ok {
		return append([]float32(nil), v...), nil
	}
	rng := rand.New(rand.NewSource(int64(HashString(text))))
	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(rng.NormFloat64())
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *MockEmbedder) Close() error {
	return nil
}
