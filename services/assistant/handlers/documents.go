// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
	"github.com/AleutianAI/SmartPresence/services/assistant/embedding"
	"github.com/AleutianAI/SmartPresence/services/assistant/vectorstore"
)

// Chunking targets 300-500 tokens per passage.
const (
	chunkSize    = 1500
	chunkOverlap = 200
)

// HandleIngestDocument serves POST /v1/documents: split, embed, upsert.
//
// # Description
//
// The document body is split into overlapping passages, the passages are
// embedded in one batch through the active provider, and the chunks are
// upserted into the target collection with chunk_index/total_chunks
// metadata. Re-submitting the same document id replaces its chunks'
// content in place (stable chunk ids).
func HandleIngestDocument(store vectorstore.Store, embedder embedding.Embedder) gin.HandlerFunc {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	return func(c *gin.Context) {
		var req datatypes.IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()

		chunks, err := splitter.SplitText(req.Text)
		if err != nil {
			slog.Error("Failed to split document", "id", req.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to split document"})
			return
		}
		if len(chunks) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "document produced no chunks"})
			return
		}

		vectors, err := embedder.Embed(ctx, chunks)
		if err != nil {
			slog.Error("Failed to embed document chunks", "id", req.ID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "embedding failed"})
			return
		}

		col, err := store.OpenOrCreate(ctx, req.Collection)
		if err != nil {
			slog.Error("Failed to open collection", "collection", req.Collection, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open collection"})
			return
		}

		docs := make([]vectorstore.Document, 0, len(chunks))
		for i, chunk := range chunks {
			meta := map[string]string{
				"chunk_index":  strconv.Itoa(i),
				"total_chunks": strconv.Itoa(len(chunks)),
			}
			for k, v := range req.Metadata {
				meta[k] = v
			}
			docs = append(docs, vectorstore.Document{
				ID:        fmt.Sprintf("%s_chunk_%d", req.ID, i),
				Content:   chunk,
				Embedding: vectors[i],
				Metadata:  meta,
			})
		}

		if err := col.Add(ctx, docs); err != nil {
			slog.Error("Failed to store document chunks", "id", req.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store document"})
			return
		}

		slog.Info("Document ingested", "id", req.ID, "collection", req.Collection, "chunks", len(chunks))
		c.JSON(http.StatusCreated, datatypes.IngestResponse{Collection: req.Collection, Chunks: len(chunks)})
	}
}
