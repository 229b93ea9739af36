// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// =============================================================================
// Ingestion Types
// =============================================================================

// IngestRequest is the body of POST /v1/documents.
//
// # Description
//
// Submits one document for chunking, embedding, and upsert into a knowledge
// collection. Long texts are split into passages before storage; each chunk
// receives chunk_index/total_chunks metadata.
//
// # Fields
//
//   - Collection: Target collection. "website_content" for scraped pages,
//     "ista_documents" for structured knowledge.
//   - ID: Stable document identifier. Chunk IDs derive from it.
//   - Text: The document body.
//   - Metadata: String key/value pairs stored with every chunk
//     (title, url, section, source_type, keywords, type, groupe, jour, ...).
type IngestRequest struct {
	Collection string            `json:"collection" validate:"required,oneof=website_content ista_documents"`
	ID         string            `json:"id" validate:"required,max=256"`
	Text       string            `json:"text" validate:"required"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Validate checks the request against its validation tags.
func (r *IngestRequest) Validate() error {
	return chatValidate.Struct(r)
}

// IngestResponse reports the outcome of an ingestion call.
type IngestResponse struct {
	Collection string `json:"collection"`
	Chunks     int    `json:"chunks"`
}
