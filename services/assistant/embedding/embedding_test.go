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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newLocalFake serves the sidecar protocol with non-zero vectors.
func newLocalFake(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req localEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := localEmbedResponse{Embeddings: make([][]float32, len(req.Texts))}
		for i := range req.Texts {
			vec := make([]float32, DefaultDimensions)
			vec[0] = 1
			resp.Embeddings[i] = vec
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestResolve_PrefersLocalSidecar(t *testing.T) {
	local := newLocalFake(t)
	defer local.Close()

	e := Resolve(context.Background(), ResolveConfig{LocalURL: local.URL})
	assert.Equal(t, "local", e.Name())
	assert.Equal(t, DefaultDimensions, e.Dimensions())
}

func TestResolve_FallsBackToDummyWhenEverythingIsDown(t *testing.T) {
	// Unreachable endpoints all the way down the chain; the dummy closes
	// it and keeps the pipeline operational.
	e := Resolve(context.Background(), ResolveConfig{
		LocalURL:   "http://127.0.0.1:1",
		HFEndpoint: "http://127.0.0.1:1",
		OllamaURL:  "http://127.0.0.1:1",
	})
	require.Equal(t, "dummy", e.Name())

	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], DefaultDimensions)
}

func TestResolve_PrimaryOverride(t *testing.T) {
	local := newLocalFake(t)
	defer local.Close()

	// Forcing ollama puts it first; with ollama unreachable the chain
	// continues to the healthy local sidecar.
	e := Resolve(context.Background(), ResolveConfig{
		Primary:   "ollama",
		LocalURL:  local.URL,
		OllamaURL: "http://127.0.0.1:1",
	})
	assert.Equal(t, "local", e.Name())
}

func TestCandidates_OrderWithPrimary(t *testing.T) {
	chain := candidates(ResolveConfig{Primary: "huggingface"})
	require.Len(t, chain, 3)
	assert.Equal(t, "huggingface", chain[0].Name())
	assert.Equal(t, "local", chain[1].Name())
	assert.Equal(t, "ollama", chain[2].Name())
}

func TestLocalEmbedder_SplitsLargeBatches(t *testing.T) {
	var batchSizes []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req localEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batchSizes = append(batchSizes, len(req.Texts))

		resp := localEmbedResponse{Embeddings: make([][]float32, len(req.Texts))}
		for i := range req.Texts {
			resp.Embeddings[i] = make([]float32, DefaultDimensions)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	e := NewLocalEmbedder(server.URL)
	texts := make([]string, 50)
	for i := range texts {
		texts[i] = "t"
	}

	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vecs, 50)
	assert.Equal(t, []int{32, 18}, batchSizes)
}

func TestOllamaEmbedder_SubstitutesZeroVectorOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	e := NewOllamaEmbedder(server.URL)
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})

	// Shape invariants hold even when every call fails.
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	for _, vec := range vecs {
		assert.Len(t, vec, e.Dimensions())
		for _, v := range vec {
			assert.Zero(t, v)
		}
	}
}
