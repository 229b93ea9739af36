// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin HTTP handlers of the assistant.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
	"github.com/AleutianAI/SmartPresence/services/assistant/retrieval"
	"github.com/AleutianAI/SmartPresence/services/assistant/services"
)

// HealthCheck is the liveness endpoint.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleAsk serves POST /chat/ask: one full reply as JSON.
//
// The response mirrors the streaming endpoint's terminal payload so the
// two surfaces stay interchangeable.
func HandleAsk(engine *services.ChatEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := engine.Answer(c.Request.Context(), req.Message, req.UserID, retrieval.Options{NResults: req.NResults, SectionHint: req.Section})
		if err != nil {
			slog.Error("Chat answer failed", "user_id", req.UserID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "generation failed"})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
