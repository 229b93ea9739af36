// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
)

func TestMemoryResponseCache_RoundTrip(t *testing.T) {
	cache := NewMemoryResponseCache(time.Hour)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "question", "u1")
	assert.False(t, ok)

	cache.Set(ctx, "question", "u1", datatypes.EndData{Reply: "réponse", Language: "fr"})

	got, ok := cache.Get(ctx, "question", "u1")
	require.True(t, ok)
	assert.Equal(t, "réponse", got.Reply)

	// Scoped per user.
	_, ok = cache.Get(ctx, "question", "u2")
	assert.False(t, ok)
}

func TestMemoryResponseCache_TTLExpiry(t *testing.T) {
	cache := NewMemoryResponseCache(10 * time.Millisecond)
	ctx := context.Background()

	cache.Set(ctx, "question", "u1", datatypes.EndData{Reply: "réponse"})
	time.Sleep(30 * time.Millisecond)

	_, ok := cache.Get(ctx, "question", "u1")
	assert.False(t, ok)
}

func TestFingerprint_NormalizesMessage(t *testing.T) {
	// Whitespace and case don't create distinct entries; users do.
	assert.Equal(t, fingerprint("Bonjour ", "u1"), fingerprint("bonjour", "u1"))
	assert.NotEqual(t, fingerprint("bonjour", "u1"), fingerprint("bonjour", "u2"))
}
