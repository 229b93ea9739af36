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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
	"github.com/AleutianAI/SmartPresence/services/assistant/embedding"
	"github.com/AleutianAI/SmartPresence/services/assistant/vectorstore"
)

// HandleStatus serves GET /chat/status: a shallow readiness snapshot for
// dashboards and smoke tests.
func HandleStatus(store vectorstore.Store, embedder embedding.Embedder, providerCount int) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		totalDocs := 0
		ragInitialized := false
		for _, name := range []string{vectorstore.CollectionWebsite, vectorstore.CollectionIsta} {
			col, err := store.Open(ctx, name)
			if err != nil {
				continue
			}
			count, err := col.Count(ctx)
			if err != nil {
				continue
			}
			totalDocs += count
			if count > 0 {
				ragInitialized = true
			}
		}

		embedderName := ""
		if embedder != nil {
			embedderName = embedder.Name()
		}

		c.JSON(http.StatusOK, datatypes.StatusResponse{
			Status:              "ok",
			RagInitialized:      ragInitialized,
			KnowledgeDocuments:  totalDocs,
			ProvidersConfigured: providerCount,
			EmbeddingProvider:   embedderName,
		})
	}
}
