package embedding

import (
	"context"
	"hash/fnv"

	"github.com/hyperjump/shikibetsu/pkg/utils"
)

// HashingEmbedder is a bag-of-words embedder using the hashing trick: each lowercase
// token increments one signed bucket. Texts sharing words get a positive similarity,
// so it works offline without a model.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder returns a hashing embedder with the given number of buckets (default 512).
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Embed returns the normalized token-count vector of text.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	for _, tok := range utils.Tokens(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dimensions))
		if sum>>63 == 1 {
			emb[bucket]--
		} else {
			emb[bucket]++
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the number of buckets.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HashingEmbedder) Close() error {
	return nil
}
