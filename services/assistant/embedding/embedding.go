// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embedding turns text into fixed-dimension vectors.
//
// # Description
//
// The package provides a small capability interface (Embedder) and four
// implementations forming an ordered fallback chain:
//
//  1. local       - sentence-embedding sidecar (multilingual, 384-dim)
//  2. huggingface - hosted feature-extraction endpoint with retry/backoff
//  3. ollama      - local embedding daemon, per-text requests
//  4. dummy       - all-zero vectors, degraded but operational
//
// Resolve probes the chain once at startup and latches the first working
// provider for the process lifetime. Embeddings are deterministic for the
// active provider but NOT compatible across providers: switching providers
// requires rebuilding the affected collections.
//
// # Thread Safety
//
// All implementations are safe for concurrent use.
package embedding

import (
	"context"
	"log/slog"
	"os"
)

// DefaultDimensions is the vector size of the multilingual MiniLM family,
// used by the local, huggingface, and dummy providers.
const DefaultDimensions = 384

// Embedder maps a batch of texts to a list of equal-length vectors.
//
// # Contract
//
// Embed returns exactly one vector per input text, in input order, each of
// Dimensions() length. Implementations may substitute zero vectors for
// individual failures when that is their documented degradation mode, but
// must never change the output shape.
type Embedder interface {
	// Embed encodes texts into vectors. The returned slice has the same
	// length and order as the input.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Name identifies the provider ("local", "huggingface", "ollama",
	// "dummy") for logging and collection compatibility checks.
	Name() string

	// Dimensions is the fixed output vector length.
	Dimensions() int
}

// =============================================================================
// Chain Resolution
// =============================================================================

// ResolveConfig controls provider chain resolution.
type ResolveConfig struct {
	// Primary forces a provider to the front of the chain.
	// Valid values: "local", "huggingface", "ollama". Empty keeps the
	// default order. Populated from EMBEDDING_PRIMARY.
	Primary string

	// LocalURL is the base URL of the local embedding sidecar.
	LocalURL string

	// HFAPIKey is the optional Hugging Face bearer token.
	HFAPIKey string

	// HFEndpoint overrides the feature-extraction endpoint (tests).
	HFEndpoint string

	// OllamaURL is the base URL of the Ollama daemon.
	OllamaURL string
}

// ResolveConfigFromEnv builds a ResolveConfig from the environment.
func ResolveConfigFromEnv() ResolveConfig {
	return ResolveConfig{
		Primary:   os.Getenv("EMBEDDING_PRIMARY"),
		LocalURL:  os.Getenv("EMBEDDING_SERVICE_URL"),
		HFAPIKey:  os.Getenv("HF_API_KEY"),
		OllamaURL: os.Getenv("OLLAMA_BASE_URL"),
	}
}

// Resolve probes the provider chain and returns the first working provider.
//
// # Description
//
// Each candidate is constructed and probed with a single short encoding
// call. The first success wins and is used for the process lifetime; the
// dummy provider closes the chain and always succeeds, so Resolve never
// returns an error in practice. A degraded (dummy) result is logged loudly.
//
// # Inputs
//
//   - ctx: Bounds the probe calls.
//   - cfg: Chain configuration. Zero value uses built-in defaults.
//
// # Outputs
//
//   - Embedder: The latched provider. Wrap with NewCachedEmbedder before
//     handing to the retriever.
func Resolve(ctx context.Context, cfg ResolveConfig) Embedder {
	for _, e := range candidates(cfg) {
		if probe(ctx, e) {
			slog.Info("Embedding provider latched", "provider", e.Name(), "dimensions", e.Dimensions())
			return e
		}
		slog.Warn("Embedding provider unavailable, trying next", "provider", e.Name())
	}

	slog.Error("No embedding provider available, running degraded with zero vectors")
	return NewDummyEmbedder()
}

// candidates returns the chain in resolution order, honoring cfg.Primary.
func candidates(cfg ResolveConfig) []Embedder {
	hf := NewHuggingFaceEmbedder(cfg.HFAPIKey)
	if cfg.HFEndpoint != "" {
		hf = NewHuggingFaceEmbedderWithEndpoint(cfg.HFAPIKey, cfg.HFEndpoint)
	}
	byName := map[string]Embedder{
		"local":       NewLocalEmbedder(cfg.LocalURL),
		"huggingface": hf,
		"ollama":      NewOllamaEmbedder(cfg.OllamaURL),
	}
	order := []string{"local", "huggingface", "ollama"}

	if forced, ok := byName[cfg.Primary]; ok {
		chain := []Embedder{forced}
		for _, name := range order {
			if name != cfg.Primary {
				chain = append(chain, byName[name])
			}
		}
		return chain
	}

	chain := make([]Embedder, 0, len(order))
	for _, name := range order {
		chain = append(chain, byName[name])
	}
	return chain
}

// probe encodes a single short text to verify the provider works.
// An all-zero result counts as a failure for every provider, since the
// ollama provider substitutes zero vectors on failure.
func probe(ctx context.Context, e Embedder) bool {
	vecs, err := e.Embed(ctx, []string{"test"})
	if err != nil || len(vecs) != 1 || len(vecs[0]) == 0 {
		return false
	}
	for _, v := range vecs[0] {
		if v != 0 {
			return true
		}
	}
	return false
}
