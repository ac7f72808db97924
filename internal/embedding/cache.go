package embedding

import (
	"context"

	"github.com/dgraph-io/ristretto"

	"go-autoagent/internal/memory"
)

// Cached memoizes embeddings by exact text. The agent embeds the same goal
// text for search and for write-back, so repeated calls are common.
type Cached struct {
	next  memory.Embedder
	cache *ristretto.Cache
}

// NewCached wraps next with a cache bounded by maxCost bytes of vectors.
func NewCached(next memory.Embedder, maxCost int64) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Dimensions() int { return c.next.Dimensions() }

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			out := make([]float32, len(vec))
			copy(out, vec)
			return out, nil
		}
	}
	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.cache.Set(text, stored, int64(len(stored)*4))
	return vec, nil
}

// Wait blocks until pending cache writes are visible.
func (c *Cached) Wait() { c.cache.Wait() }

func (c *Cached) Close() { c.cache.Close() }
