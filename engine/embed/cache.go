package embed

import (
	"context"
	"sync"
)

// DefaultCacheSize bounds the memoization table.
const DefaultCacheSize = 4096

// Cache memoizes an Embedder on exact text match so repeated queries do not
// recompute vectors. Eviction is oldest-first.
type Cache struct {
	inner Embedder

	mu    sync.Mutex
	max   int
	table map[string][]float32
	order []string

	hits, misses int64
}

// NewCache wraps inner with a memoization table of at most max entries.
func NewCache(inner Embedder, max int) *Cache {
	if max <= 0 {
		max = DefaultCacheSize
	}
	return &Cache{
		inner: inner,
		max:   max,
		table: make(map[string][]float32, max),
	}
}

// Dimension returns the wrapped embedder's dimension.
func (c *Cache) Dimension() int { return c.inner.Dimension() }

// Embed returns the cached vector for text, computing and storing it on miss.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	if vec, ok := c.table[text]; ok {
		c.hits++
		c.mu.Unlock()
		return vec, nil
	}
	c.misses++
	c.mu.Unlock()

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(text, vec)
	return vec, nil
}

// EmbedBatch embeds only the uncached texts, merging with cached vectors in
// input order.
func (c *Cache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	c.mu.Lock()
	for i, text := range texts {
		if vec, ok := c.table[text]; ok {
			c.hits++
			out[i] = vec
		} else {
			c.misses++
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
		}
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	computed, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range computed {
		out[missingIdx[j]] = vec
		c.store(missing[j], vec)
	}
	return out, nil
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache) store(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.table[text]; ok {
		return
	}
	for len(c.table) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.table, oldest)
	}
	c.table[text] = vec
	c.order = append(c.order, text)
}
