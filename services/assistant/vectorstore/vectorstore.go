// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vectorstore is a thin port over a persistent similarity-search
// engine.
//
// # Description
//
// The package owns the two knowledge collections of the assistant:
//
//   - website_content: unstructured chunks scraped from the institute site
//   - ista_documents:  structured knowledge with typed metadata
//
// Two backends implement the port: an embedded persistent store (chromem)
// rooted at a configurable directory, and a remote Weaviate deployment.
// Both use cosine distance; smaller is more similar, and distances are
// non-negative.
//
// # Failure Semantics
//
// A missing collection surfaces ErrNotFound. Callers must treat it as an
// empty index and return no context; they never fabricate results.
package vectorstore

import (
	"context"
	"errors"
)

// Logical collection names.
const (
	CollectionWebsite = "website_content"
	CollectionIsta    = "ista_documents"
)

// ErrNotFound is returned when a collection does not exist.
var ErrNotFound = errors.New("collection not found")

// ErrEmbedderMismatch is returned when a persistent collection was built
// with a different embedding function than the active one. Embeddings are
// not compatible across providers; the collection must be rebuilt.
var ErrEmbedderMismatch = errors.New("collection embedder mismatch")

// AddBatchSize is the recommended upsert batch size. The adapters retry
// transient failures per batch.
const AddBatchSize = 100

// Document is the persisted unit of retrievable knowledge.
//
// # Fields
//
//   - ID: Unique within its collection.
//   - Content: The chunked passage.
//   - Embedding: Dense vector; dimension is fixed per collection.
//   - Metadata: String key/values. Recognized keys include title, url,
//     section, source_type, keywords, chunk_index, total_chunks, and the
//     structured-knowledge keys type, groupe, jour, heure, module,
//     professeur, salle, date, info_type, parrain.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// Candidate is a document returned by a similarity query before re-ranking.
type Candidate struct {
	Document Document

	// Distance is the cosine distance to the query; non-negative,
	// smaller is more similar.
	Distance float64

	// Collection is the logical collection the candidate came from.
	Collection string
}

// Collection is a named persistent set of documents sharing one embedding
// dimension.
type Collection interface {
	// Name returns the logical collection name.
	Name() string

	// Add upserts documents. Implementations batch internally
	// (AddBatchSize) and retry transient failures per batch.
	Add(ctx context.Context, docs []Document) error

	// Query returns up to topK candidates nearest to the embedding,
	// ordered by ascending distance.
	Query(ctx context.Context, embedding []float32, topK int) ([]Candidate, error)

	// GetAll returns every document, for the keyword-scan fallback when
	// similarity search yields nothing. Ordering is unspecified.
	GetAll(ctx context.Context) ([]Document, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}

// Store opens and manages collections.
type Store interface {
	// OpenOrCreate returns the named collection, creating it when absent.
	// Idempotent. The embedding-function check is not made here: the
	// embedded backend makes it when the store is opened (NewChromemStore
	// returns ErrEmbedderMismatch).
	OpenOrCreate(ctx context.Context, name string) (Collection, error)

	// Open returns the named collection or ErrNotFound.
	Open(ctx context.Context, name string) (Collection, error)

	// Delete removes the named collection and its data.
	Delete(ctx context.Context, name string) error
}
