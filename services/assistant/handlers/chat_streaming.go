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
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
	"github.com/AleutianAI/SmartPresence/services/assistant/observability"
	"github.com/AleutianAI/SmartPresence/services/assistant/retrieval"
	"github.com/AleutianAI/SmartPresence/services/assistant/services"
)

// keepAliveInterval paces SSE comment pings during long operations.
// Load balancers commonly cut idle connections at 60s.
const keepAliveInterval = 15 * time.Second

// HandleAskStream serves POST /chat/ask/stream: the tagged event sequence
// over Server-Sent Events.
//
// # Description
//
// The handler owns the transport concerns: SSE headers, keep-alive pings
// until the first event, client-disconnect propagation (the request
// context is cancelled by the server when the client goes away, which
// aborts the upstream provider call), and metrics. Event semantics live in
// the engine.
func HandleAskStream(engine *services.ChatEngine, metrics *observability.StreamingMetrics) gin.HandlerFunc {
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

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")
		c.Writer.WriteHeader(http.StatusOK)

		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			slog.Error("SSE not supported by response writer", "error", err)
			return
		}

		if metrics != nil {
			metrics.ActiveStreams.Inc()
			defer metrics.ActiveStreams.Dec()
		}
		start := time.Now()
		var firstToken time.Time

		// Keep-alive pings until the stream produces content or a terminal
		// event; the engine's start event comes before retrieval. The ping loop
		// gets its own cancellable context so stopping it does not abort
		// the engine's request context.
		reqCtx := c.Request.Context()
		kaCtx, stopKeepAlive := context.WithCancel(reqCtx)
		defer stopKeepAlive()
		go keepAliveLoop(kaCtx, writer)

		status := "success"
		err = engine.AnswerStream(reqCtx, req.Message, req.UserID, retrieval.Options{NResults: req.NResults, SectionHint: req.Section}, func(event datatypes.StreamEvent) error {
			if event.Type != datatypes.EventStart {
				stopKeepAlive() // first content or terminal event ends the ping loop
			}

			if event.Type == datatypes.EventContent && firstToken.IsZero() {
				firstToken = time.Now()
				if metrics != nil {
					metrics.TimeToFirstTokenSeconds.WithLabelValues("ask_stream").Observe(time.Since(start).Seconds())
				}
			}
			if metrics != nil && event.Type == datatypes.EventContent {
				metrics.TokensTotal.WithLabelValues("output").Inc()
			}
			return writer.WriteEvent(event)
		})
		if err != nil {
			status = "error"
			slog.Info("Stream finished with error", "user_id", req.UserID, "error", err)
		}

		if metrics != nil {
			metrics.RequestsTotal.WithLabelValues("ask_stream", status).Inc()
			metrics.StreamDurationSeconds.WithLabelValues("ask_stream", status).Observe(time.Since(start).Seconds())
		}
	}
}

// keepAliveLoop pings the client until ctx is cancelled. Write failures
// end the loop; the engine will notice the dead client on its next emit.
func keepAliveLoop(ctx context.Context, writer SSEWriter) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				return
			}
		}
	}
}
