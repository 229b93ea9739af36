// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/SmartPresence/services/assistant/embedding"
	"github.com/AleutianAI/SmartPresence/services/assistant/handlers"
	"github.com/AleutianAI/SmartPresence/services/assistant/middleware"
	"github.com/AleutianAI/SmartPresence/services/assistant/observability"
	"github.com/AleutianAI/SmartPresence/services/assistant/services"
	"github.com/AleutianAI/SmartPresence/services/assistant/vectorstore"
)

// Deps carries the constructed collaborators into route registration.
type Deps struct {
	Engine        *services.ChatEngine
	Store         vectorstore.Store
	Embedder      embedding.Embedder
	Metrics       *observability.StreamingMetrics
	ProviderCount int

	// AuthToken enables the perimeter bearer check when non-empty.
	AuthToken string
}

// SetupRoutes registers every HTTP route of the assistant.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.BearerAuth(deps.AuthToken)

	chat := router.Group("/chat", auth)
	{
		chat.POST("/ask", handlers.HandleAsk(deps.Engine))
		chat.POST("/ask/stream", handlers.HandleAskStream(deps.Engine, deps.Metrics))
		chat.GET("/status", handlers.HandleStatus(deps.Store, deps.Embedder, deps.ProviderCount))
		chat.GET("/history/:user_id", handlers.HandleGetHistory(deps.Engine))
		chat.DELETE("/history/:user_id", handlers.HandleClearHistory(deps.Engine))
	}

	v1 := router.Group("/v1", auth)
	{
		v1.POST("/documents", handlers.HandleIngestDocument(deps.Store, deps.Embedder))
	}
}
