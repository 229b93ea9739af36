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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// hfEndpoint is the router feature-extraction endpoint for the multilingual
// MiniLM model matching the local sidecar.
const hfEndpoint = "https://router.huggingface.co/pipeline/feature-extraction/sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2"

// hfMaxAttempts caps retries against the hosted endpoint.
const hfMaxAttempts = 3

// Backoff schedules for the two transient conditions the endpoint reports.
var (
	hfLoadingBackoff   = []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second}
	hfRateLimitBackoff = []time.Duration{30 * time.Second, 60 * time.Second, 90 * time.Second}
)

// HuggingFaceEmbedder calls the hosted feature-extraction endpoint.
//
// # Description
//
// Second provider in the chain. The authorization header is optional (the
// endpoint serves unauthenticated requests at a lower rate). Transient
// "model loading" responses (503) are retried with 10/20/30s backoff,
// rate limits (429) with 30/60/90s backoff, at most hfMaxAttempts attempts.
// A client-side limiter smooths request bursts so the 429 path stays rare.
type HuggingFaceEmbedder struct {
	httpClient *http.Client
	apiKey     string
	endpoint   string
	limiter    *rate.Limiter
}

// NewHuggingFaceEmbedder creates a HuggingFaceEmbedder. apiKey may be empty.
func NewHuggingFaceEmbedder(apiKey string) *HuggingFaceEmbedder {
	return &HuggingFaceEmbedder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		endpoint:   hfEndpoint,
		limiter:    rate.NewLimiter(rate.Limit(4), 8),
	}
}

// NewHuggingFaceEmbedderWithEndpoint creates a client against an explicit
// endpoint. Used by tests with a local fake.
func NewHuggingFaceEmbedderWithEndpoint(apiKey, endpoint string) *HuggingFaceEmbedder {
	e := NewHuggingFaceEmbedder(apiKey)
	e.endpoint = endpoint
	return e
}

// Name implements Embedder.
func (h *HuggingFaceEmbedder) Name() string { return "huggingface" }

// Dimensions implements Embedder.
func (h *HuggingFaceEmbedder) Dimensions() int { return DefaultDimensions }

// hfTransient classifies a retryable endpoint condition.
type hfTransient int

const (
	hfNotTransient hfTransient = iota
	hfModelLoading             // 503, the model is warming up
	hfRateLimited              // 429
)

// Embed implements Embedder with retry on transient endpoint conditions.
func (h *HuggingFaceEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt < hfMaxAttempts; attempt++ {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		vecs, transient, err := h.call(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		var backoff time.Duration
		switch transient {
		case hfModelLoading:
			backoff = hfLoadingBackoff[min(attempt, len(hfLoadingBackoff)-1)]
		case hfRateLimited:
			backoff = hfRateLimitBackoff[min(attempt, len(hfRateLimitBackoff)-1)]
		default:
			return nil, err
		}
		slog.Warn("Hugging Face endpoint transient failure, backing off",
			"attempt", attempt+1, "backoff", backoff.String(), "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("huggingface: %d attempts exhausted: %w", hfMaxAttempts, lastErr)
}

// call performs one request and classifies retryable failures.
func (h *HuggingFaceEmbedder) call(ctx context.Context, texts []string) (vecs [][]float32, transient hfTransient, err error) {
	payload, err := json.Marshal(map[string]any{"inputs": texts})
	if err != nil {
		return nil, hfNotTransient, fmt.Errorf("huggingface: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, hfNotTransient, fmt.Errorf("huggingface: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, hfNotTransient, fmt.Errorf("huggingface: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, hfNotTransient, fmt.Errorf("huggingface: reading response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// Fall through to parsing.
	case http.StatusServiceUnavailable:
		return nil, hfModelLoading, fmt.Errorf("huggingface: model loading (503)")
	case http.StatusTooManyRequests:
		return nil, hfRateLimited, fmt.Errorf("huggingface: rate limited (429)")
	default:
		return nil, hfNotTransient, fmt.Errorf("huggingface: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed [][]float32
	if err := json.Unmarshal(body, &parsed); err != nil {
		// A single input may come back as one flat vector.
		var flat []float32
		if err2 := json.Unmarshal(body, &flat); err2 != nil || len(texts) != 1 {
			return nil, hfNotTransient, fmt.Errorf("huggingface: parsing response: %w", err)
		}
		parsed = [][]float32{flat}
	}
	if len(parsed) != len(texts) {
		return nil, hfNotTransient, fmt.Errorf("huggingface: got %d vectors for %d texts", len(parsed), len(texts))
	}

	return parsed, hfNotTransient, nil
}
