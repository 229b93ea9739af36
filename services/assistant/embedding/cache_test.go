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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records which texts reach the inner provider and
// returns a distinct vector per text.
type countingEmbedder struct {
	batches [][]string
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, texts)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), float32(i)}
	}
	return out, nil
}

func (c *countingEmbedder) Name() string    { return "counting" }
func (c *countingEmbedder) Dimensions() int { return 2 }

func TestCachedEmbedder_SecondCallHitsCache(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner)
	ctx := context.Background()

	first, err := cached.Embed(ctx, []string{"bonjour"})
	require.NoError(t, err)

	second, err := cached.Embed(ctx, []string{"bonjour"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, inner.batches, 1)
}

func TestCachedEmbedder_KeyNormalization(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner)
	ctx := context.Background()

	_, err := cached.Embed(ctx, []string{"Bonjour "})
	require.NoError(t, err)
	_, err = cached.Embed(ctx, []string{"bonjour"})
	require.NoError(t, err)

	// Lowercase+trim collapse both calls onto one key.
	assert.Len(t, inner.batches, 1)
}

func TestCachedEmbedder_MixedBatchKeepsInputOrder(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner)
	ctx := context.Background()

	_, err := cached.Embed(ctx, []string{"aa", "bbb"})
	require.NoError(t, err)

	// "bbb" is cached; "cccc" and "d" are not. Results must still line up
	// with the input order.
	out, err := cached.Embed(ctx, []string{"cccc", "bbb", "d"})
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, float32(4), out[0][0]) // len("cccc")
	assert.Equal(t, float32(3), out[1][0]) // len("bbb"), from cache
	assert.Equal(t, float32(1), out[2][0]) // len("d")

	// Only the uncached texts reached the provider, in one batch.
	require.Len(t, inner.batches, 2)
	assert.Equal(t, []string{"cccc", "d"}, inner.batches[1])
}

func TestCachedEmbedder_CapacityBound(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner)
	ctx := context.Background()

	texts := make([]string, 0, CacheCapacity+100)
	for i := 0; i < CacheCapacity+100; i++ {
		texts = append(texts, fmt.Sprintf("texte-%d", i))
	}
	_, err := cached.Embed(ctx, texts)
	require.NoError(t, err)

	// The LRU never exceeds its bound.
	assert.Equal(t, CacheCapacity, cached.Len())

	// The oldest entry was evicted first: re-embedding it goes back to
	// the provider.
	before := len(inner.batches)
	_, err = cached.Embed(ctx, []string{"texte-0"})
	require.NoError(t, err)
	assert.Equal(t, before+1, len(inner.batches))

	// The newest entry is still cached.
	before = len(inner.batches)
	_, err = cached.Embed(ctx, []string{fmt.Sprintf("texte-%d", CacheCapacity+99)})
	require.NoError(t, err)
	assert.Equal(t, before, len(inner.batches))
}
