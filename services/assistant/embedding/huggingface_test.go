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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortBackoffs shrinks the retry schedules for tests and restores them
// afterwards.
func shortBackoffs(t *testing.T) {
	t.Helper()
	oldLoading, oldRate := hfLoadingBackoff, hfRateLimitBackoff
	hfLoadingBackoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	hfRateLimitBackoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	t.Cleanup(func() {
		hfLoadingBackoff, hfRateLimitBackoff = oldLoading, oldRate
	})
}

func TestHuggingFaceEmbedder_RetriesModelLoading(t *testing.T) {
	shortBackoffs(t)

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([][]float32{{0.1, 0.2}})
	}))
	defer server.Close()

	e := NewHuggingFaceEmbedderWithEndpoint("secret", server.URL)
	vecs, err := e.Embed(context.Background(), []string{"texte"})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	require.Len(t, vecs, 1)
	assert.Equal(t, []float32{0.1, 0.2}, vecs[0])
}

func TestHuggingFaceEmbedder_GivesUpAfterMaxAttempts(t *testing.T) {
	shortBackoffs(t)

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	e := NewHuggingFaceEmbedderWithEndpoint("", server.URL)
	_, err := e.Embed(context.Background(), []string{"texte"})

	require.Error(t, err)
	assert.Equal(t, hfMaxAttempts, attempts)
	assert.Contains(t, err.Error(), "attempts exhausted")
}

func TestHuggingFaceEmbedder_NonTransientFailsImmediately(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	e := NewHuggingFaceEmbedderWithEndpoint("", server.URL)
	_, err := e.Embed(context.Background(), []string{"texte"})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestHuggingFaceEmbedder_FlatVectorForSingleInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Some deployments return one flat vector for a single input.
		_ = json.NewEncoder(w).Encode([]float32{0.5, 0.6})
	}))
	defer server.Close()

	e := NewHuggingFaceEmbedderWithEndpoint("", server.URL)
	vecs, err := e.Embed(context.Background(), []string{"texte"})

	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, []float32{0.5, 0.6}, vecs[0])
}
