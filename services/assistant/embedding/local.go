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
)

// localCallTimeout bounds one sidecar call. The sidecar is the fast path;
// anything slower should fail over.
const localCallTimeout = 3 * time.Second

// localBatchSize is the native batch size of the sidecar model.
const localBatchSize = 32

// LocalEmbedder calls the in-network sentence-embedding sidecar.
//
// # Description
//
// The sidecar serves paraphrase-multilingual-MiniLM-L12-v2 (384-dim) over a
// simple batch endpoint. This is the preferred provider for latency and
// cost. Inputs are encoded in native batches of min(32, n); on batch
// failure the embedder falls back to sequential single-text calls.
type LocalEmbedder struct {
	httpClient *http.Client
	baseURL    string
}

// NewLocalEmbedder creates a LocalEmbedder against baseURL.
// An empty baseURL uses the in-cluster default.
func NewLocalEmbedder(baseURL string) *LocalEmbedder {
	if baseURL == "" {
		baseURL = "http://smartpresence-embedder:8100"
	}
	return &LocalEmbedder{
		httpClient: &http.Client{Timeout: localCallTimeout},
		baseURL:    baseURL,
	}
}

// Name implements Embedder.
func (l *LocalEmbedder) Name() string { return "local" }

// Dimensions implements Embedder.
func (l *LocalEmbedder) Dimensions() int { return DefaultDimensions }

type localEmbedRequest struct {
	Texts []string `json:"texts"`
}

type localEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements Embedder. Batches of localBatchSize are sent to the
// sidecar; a failed batch degrades to sequential calls before the error is
// surfaced.
func (l *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += localBatchSize {
		end := min(start+localBatchSize, len(texts))
		batch := texts[start:end]

		vecs, err := l.call(ctx, batch)
		if err != nil {
			slog.Warn("Batch encoding failed, falling back to sequential", "error", err, "batch_size", len(batch))
			vecs, err = l.sequential(ctx, batch)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, vecs...)
	}

	return out, nil
}

// sequential encodes one text at a time, used when a batch call fails.
func (l *LocalEmbedder) sequential(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vecs, err := l.call(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (l *LocalEmbedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(localEmbedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("local embedder: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/embed", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("local embedder: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("local embedder: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("local embedder: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed localEmbedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("local embedder: parsing response: %w", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("local embedder: got %d vectors for %d texts", len(parsed.Embeddings), len(texts))
	}

	return parsed.Embeddings, nil
}
