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

import "context"

// DummyEmbedder returns all-zero vectors.
//
// Last provider in the chain. It marks the process as degraded (similarity
// search returns arbitrary order) but keeps the pipeline operational so the
// assistant can still answer from the LLM alone. By contract it never fails.
type DummyEmbedder struct{}

// NewDummyEmbedder creates a DummyEmbedder.
func NewDummyEmbedder() *DummyEmbedder { return &DummyEmbedder{} }

// Name implements Embedder.
func (d *DummyEmbedder) Name() string { return "dummy" }

// Dimensions implements Embedder.
func (d *DummyEmbedder) Dimensions() int { return DefaultDimensions }

// Embed implements Embedder.
func (d *DummyEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, DefaultDimensions)
	}
	return out, nil
}
