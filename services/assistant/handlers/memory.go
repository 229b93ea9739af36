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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
	"github.com/AleutianAI/SmartPresence/services/assistant/services"
)

// HandleGetHistory serves GET /chat/history/:user_id.
func HandleGetHistory(engine *services.ChatEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		turns, err := engine.History(c.Request.Context(), userID, datatypes.DefaultHistoryTurns)
		if err != nil {
			slog.Error("Failed to load history", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
			return
		}

		resp := datatypes.HistoryResponse{UserID: userID, Turns: []datatypes.HistoryTurn{}}
		for _, t := range turns {
			resp.Turns = append(resp.Turns, datatypes.HistoryTurn{
				UserMessage:      t.UserMessage,
				AssistantMessage: t.AssistantMessage,
				CreatedAt:        t.CreatedAt.Format(time.RFC3339),
			})
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleClearHistory serves DELETE /chat/history/:user_id.
func HandleClearHistory(engine *services.ChatEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		if err := engine.ClearHistory(c.Request.Context(), userID); err != nil {
			slog.Error("Failed to clear history", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "cleared": true})
	}
}
