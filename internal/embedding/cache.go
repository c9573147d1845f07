package embedding

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// CacheStats counts lookups since the cache was created.
type CacheStats struct {
	Hits, Misses uint64
	Entries      int
}

// EmbeddingCache keeps the most recently used embeddings by text.
type EmbeddingCache struct {
	mu      sync.Mutex
	limit   int
	order   *list.List // front is most recent
	entries map[string]*list.Element
	hits    uint64
	misses  uint64
}

type cached struct {
	text string
	vec  []float32
}

// NewEmbeddingCache returns a cache holding at most limit vectors.
func NewEmbeddingCache(limit int) *EmbeddingCache {
	return &EmbeddingCache{limit: limit, order: list.New(), entries: map[string]*list.Element{}}
}

func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[text]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*cached).vec, true
}

func (c *EmbeddingCache) Set(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[text]; ok {
		el.Value.(*cached).vec = vec
		c.order.MoveToFront(el)
		return
	}
	c.entries[text] = c.order.PushFront(&cached{text: text, vec: vec})
	for c.order.Len() > c.limit {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.entries, last.Value.(*cached).text)
	}
}

func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *EmbeddingCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Entries: c.order.Len()}
}

// CachedEmbedder memoizes another Embedder.
// Returned vectors are shared with the cache and must not be modified.
type CachedEmbedder struct {
	Embedder
	cache *EmbeddingCache
}

// NewCachedEmbedder wraps e. A non-positive capacity returns e unchanged.
func NewCachedEmbedder(e Embedder, capacity int) Embedder {
	if capacity <= 0 {
		return e
	}
	return &CachedEmbedder{Embedder: e, cache: NewEmbeddingCache(capacity)}
}

func (c *CachedEmbedder) Stats() CacheStats { return c.cache.Stats() }

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec)
	return vec, nil
}

// EmbedBatch sends each distinct uncached text to the wrapped embedder in one batch.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	pending := map[string][]int{}
	var missing []string
	for i, text := range texts {
		if vec, ok := c.cache.Get(text); ok {
			out[i] = vec
			continue
		}
		if _, seen := pending[text]; !seen {
			missing = append(missing, text)
		}
		pending[text] = append(pending[text], i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	vecs, err := c.Embedder.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, text := range missing {
		c.cache.Set(text, vecs[j])
		for _, i := range pending[text] {
			out[i] = vecs[j]
		}
	}
	return out, nil
}
