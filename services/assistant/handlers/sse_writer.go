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
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter writes chat stream events to an HTTP response in SSE framing.
//
// # Description
//
// Each event is serialized as one JSON object and written as
// "data: <json>\n\n", flushed immediately so slow consumers apply
// backpressure between tokens. Keep-alive comments (": ping") keep idle
// connections open through load balancers during long retrievals.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use: the keep-alive ticker
// and the engine goroutine write through the same writer.
//
// # Assumptions
//
//   - The caller set Content-Type: text/event-stream before the first
//     write and disabled proxy buffering.
type SSEWriter interface {
	// WriteEvent serializes v to JSON and writes one SSE data frame.
	// Returns a non-nil error when the client is gone; no further writes
	// may follow.
	WriteEvent(v any) error

	// WriteKeepAlive sends an SSE comment line to hold the connection
	// open. Comments are invisible to clients.
	WriteKeepAlive() error
}

// =============================================================================
// Implementation
// =============================================================================

// sseWriter implements SSEWriter over an http.ResponseWriter.
type sseWriter struct {
	mu      sync.Mutex
	writer  http.ResponseWriter
	flusher http.Flusher
	failed  bool
}

// NewSSEWriter wraps w. Returns an error when w cannot flush, which would
// buffer the whole stream and defeat token-by-token delivery.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// WriteEvent implements SSEWriter.
func (s *sseWriter) WriteEvent(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling SSE event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return fmt.Errorf("SSE stream already failed")
	}
	if _, err := fmt.Fprintf(s.writer, "data: %s\n\n", payload); err != nil {
		s.failed = true
		return fmt.Errorf("writing SSE event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// WriteKeepAlive implements SSEWriter.
func (s *sseWriter) WriteKeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return fmt.Errorf("SSE stream already failed")
	}
	if _, err := fmt.Fprint(s.writer, ": ping\n\n"); err != nil {
		s.failed = true
		return fmt.Errorf("writing SSE keep-alive: %w", err)
	}
	s.flusher.Flush()
	return nil
}
