// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/AleutianAI/SmartPresence/services/assistant/embedding"
)

// ChromemStore is the embedded persistent backend.
//
// # Description
//
// Collections live under a single directory (CHROMA_PATH; Docker default
// /app/chroma_db, local default ./chroma_db), one subtree per collection,
// cosine similarity. The active embedding provider's name and dimension
// are recorded in a marker file next to the data; opening the store with a
// different provider is refused (ErrEmbedderMismatch) because vectors are
// not comparable across providers.
//
// # Thread Safety
//
// Safe for concurrent reads. Concurrent ingestion must be serialized by
// the caller.
type ChromemStore struct {
	db       *chromem.DB
	embedder embedding.Embedder
	path     string
}

// embedderMarker records which provider built the on-disk collections.
type embedderMarker struct {
	Name       string `json:"name"`
	Dimensions int    `json:"dimensions"`
}

// DefaultChromaPath resolves the store directory: CHROMA_PATH when set,
// /app/chroma_db inside containers, ./chroma_db otherwise.
func DefaultChromaPath() string {
	if p := os.Getenv("CHROMA_PATH"); p != "" {
		return p
	}
	if _, err := os.Stat("/app"); err == nil {
		return "/app/chroma_db"
	}
	return "./chroma_db"
}

// NewChromemStore opens (or creates) the persistent store at path using
// embedder for query-side encoding.
func NewChromemStore(path string, embedder embedding.Embedder) (*ChromemStore, error) {
	if path == "" {
		path = DefaultChromaPath()
	}

	if err := checkEmbedderMarker(path, embedder); err != nil {
		return nil, err
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening vector store at %s: %w", path, err)
	}

	slog.Info("Embedded vector store opened", "path", path, "embedder", embedder.Name())
	return &ChromemStore{db: db, embedder: embedder, path: path}, nil
}

// checkEmbedderMarker enforces embedding-function compatibility for the
// on-disk data, writing the marker on first use.
func checkEmbedderMarker(path string, embedder embedding.Embedder) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("creating vector store directory: %w", err)
	}

	markerPath := filepath.Join(path, "embedder.json")
	raw, err := os.ReadFile(markerPath)
	if os.IsNotExist(err) {
		marker := embedderMarker{Name: embedder.Name(), Dimensions: embedder.Dimensions()}
		data, _ := json.Marshal(marker)
		return os.WriteFile(markerPath, data, 0o644)
	}
	if err != nil {
		return fmt.Errorf("reading embedder marker: %w", err)
	}

	var marker embedderMarker
	if err := json.Unmarshal(raw, &marker); err != nil {
		return fmt.Errorf("parsing embedder marker: %w", err)
	}
	if marker.Name != embedder.Name() || marker.Dimensions != embedder.Dimensions() {
		return fmt.Errorf("%w: store built with %s/%d, active provider is %s/%d (rebuild the collections)",
			ErrEmbedderMismatch, marker.Name, marker.Dimensions, embedder.Name(), embedder.Dimensions())
	}
	return nil
}

// embeddingFunc adapts the active embedder to chromem's per-text signature.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := s.embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		return vecs[0], nil
	}
}

// OpenOrCreate implements Store.
func (s *ChromemStore) OpenOrCreate(_ context.Context, name string) (Collection, error) {
	col, err := s.db.GetOrCreateCollection(name, map[string]string{"embedder": s.embedder.Name()}, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", name, err)
	}
	return &chromemCollection{name: name, col: col, dim: s.embedder.Dimensions()}, nil
}

// Open implements Store.
func (s *ChromemStore) Open(_ context.Context, name string) (Collection, error) {
	col := s.db.GetCollection(name, s.embeddingFunc())
	if col == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return &chromemCollection{name: name, col: col, dim: s.embedder.Dimensions()}, nil
}

// Delete implements Store.
func (s *ChromemStore) Delete(_ context.Context, name string) error {
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	return nil
}

// =============================================================================
// Collection
// =============================================================================

type chromemCollection struct {
	name string
	col  *chromem.Collection
	dim  int
}

func (c *chromemCollection) Name() string { return c.name }

// Add implements Collection with AddBatchSize batches and one retry per
// batch on transient failure.
func (c *chromemCollection) Add(ctx context.Context, docs []Document) error {
	for start := 0; start < len(docs); start += AddBatchSize {
		end := min(start+AddBatchSize, len(docs))
		batch := make([]chromem.Document, 0, end-start)
		for _, d := range docs[start:end] {
			batch = append(batch, chromem.Document{
				ID:        d.ID,
				Content:   d.Content,
				Embedding: d.Embedding,
				Metadata:  d.Metadata,
			})
		}

		err := c.col.AddDocuments(ctx, batch, 1)
		if err != nil {
			slog.Warn("Batch insert failed, retrying once", "collection", c.name, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			if err = c.col.AddDocuments(ctx, batch, 1); err != nil {
				return fmt.Errorf("adding batch to %s: %w", c.name, err)
			}
		}
	}
	return nil
}

// Query implements Collection. chromem reports cosine similarity; the
// adapter converts to distance = 1 - similarity so callers see one scale.
func (c *chromemCollection) Query(ctx context.Context, embedding []float32, topK int) ([]Candidate, error) {
	count := c.col.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := c.col.QueryEmbedding(ctx, embedding, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c.name, err)
	}

	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		dist := float64(1 - r.Similarity)
		if dist < 0 {
			dist = 0
		}
		candidates = append(candidates, Candidate{
			Document: Document{
				ID:        r.ID,
				Content:   r.Content,
				Embedding: r.Embedding,
				Metadata:  r.Metadata,
			},
			Distance:   dist,
			Collection: c.name,
		})
	}
	return candidates, nil
}

// GetAll implements Collection via a full-size query against a fixed unit
// vector. Ranking is irrelevant for a scan; only completeness matters, and
// nResults = Count returns every document.
func (c *chromemCollection) GetAll(ctx context.Context) ([]Document, error) {
	count := c.col.Count()
	if count == 0 {
		return nil, nil
	}

	probe := make([]float32, c.dim)
	probe[0] = 1

	results, err := c.col.QueryEmbedding(ctx, probe, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", c.name, err)
	}

	docs := make([]Document, 0, len(results))
	for _, r := range results {
		docs = append(docs, Document{ID: r.ID, Content: r.Content, Embedding: r.Embedding, Metadata: r.Metadata})
	}
	return docs, nil
}

// Count implements Collection.
func (c *chromemCollection) Count(_ context.Context) (int, error) {
	return c.col.Count(), nil
}
