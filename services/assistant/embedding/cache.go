// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embedding

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheCapacity bounds the embedding LRU. Least-recently-used entries are
// evicted first once the bound is reached.
const CacheCapacity = 1000

// CachedEmbedder wraps an Embedder with a bounded LRU cache.
//
// # Description
//
// Keys are the input text normalized to lowercase and trimmed; values are
// vectors only (the query string itself is never stored beyond the key).
// On a batch call, inputs are split into cached and uncached sets, the
// uncached set is encoded through the inner provider in one call, and
// results are reassembled in original input order before insertion.
//
// # Thread Safety
//
// Safe for concurrent use; the LRU serializes access internally.
// Correctness over throughput: a stale miss under contention only costs a
// recomputation.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with a CacheCapacity-entry LRU.
func NewCachedEmbedder(inner Embedder) *CachedEmbedder {
	// lru.New only fails on a non-positive size.
	cache, _ := lru.New[string, []float32](CacheCapacity)
	return &CachedEmbedder{inner: inner, cache: cache}
}

// Name implements Embedder, delegating to the wrapped provider.
func (c *CachedEmbedder) Name() string { return c.inner.Name() }

// Dimensions implements Embedder.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Len reports the current number of cached vectors.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }

// cacheKey normalizes text for cache lookup.
func cacheKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Embed implements Embedder with cache lookups around the inner provider.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	uncached := make([]string, 0, len(texts))
	uncachedIdx := make([]int, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.cache.Get(cacheKey(text)); ok {
			out[i] = vec
			continue
		}
		uncached = append(uncached, text)
		uncachedIdx = append(uncachedIdx, i)
	}

	if len(uncached) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, uncached)
	if err != nil {
		return nil, err
	}

	for j, idx := range uncachedIdx {
		out[idx] = vecs[j]
		c.cache.Add(cacheKey(uncached[j]), vecs[j])
	}

	return out, nil
}
