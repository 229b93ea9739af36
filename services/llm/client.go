// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides interfaces and implementations for LLM backends.
//
// This package defines the LLMClient interface for chat-style generation
// and provides three backends: Groq (OpenAI-compatible fast inference),
// Google Gemini, and OpenAI. The FailoverClient folds over an ordered
// chain of backends, trying the next one when a provider fails, so the
// assistant keeps answering as long as a single provider is healthy.
//
// # Streaming
//
// Streaming uses the callback pattern: ChatStream invokes the callback for
// each token in generation order, enabling real-time SSE display. Token
// order from one provider is preserved exactly downstream.
//
// # Thread Safety
//
// All implementations are safe for concurrent use.
package llm

import (
	"context"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
)

// Default generation parameters shared by every backend.
const (
	// DefaultTemperature keeps answers grounded on the provided context.
	DefaultTemperature float32 = 0.3

	// DefaultMaxTokens bounds one answer.
	DefaultMaxTokens = 1024
)

// =============================================================================
// Generation Parameters
// =============================================================================

// GenerationParams holds parameters for LLM generation.
//
// nil pointer fields mean "use the service default" (DefaultTemperature,
// DefaultMaxTokens); not every backend honors every field.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// temperature resolves the effective sampling temperature.
func (p GenerationParams) temperature() float32 {
	if p.Temperature != nil {
		return *p.Temperature
	}
	return DefaultTemperature
}

// maxTokens resolves the effective completion budget.
func (p GenerationParams) maxTokens() int {
	if p.MaxTokens != nil {
		return *p.MaxTokens
	}
	return DefaultMaxTokens
}

// =============================================================================
// Streaming Types
// =============================================================================

// StreamEventType categorizes streaming events.
type StreamEventType string

const (
	// StreamEventToken indicates a content token event.
	StreamEventToken StreamEventType = "token"

	// StreamEventError indicates an error during streaming. Streaming
	// stops after an error event.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is a single event during LLM streaming. Exactly one of
// Content or Error is populated, per Type.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Error   string
}

// StreamCallback is called for each event during streaming, in generation
// order, from a single goroutine. Returning an error aborts the stream
// (used on client disconnect).
type StreamCallback func(event StreamEvent) error

// =============================================================================
// Interface Definition
// =============================================================================

// LLMClient is the standard contract for any LLM backend.
//
// # Methods
//
//   - Name: Provider identifier for logging and failover reporting.
//   - Chat: Blocking conversation, returns the full response.
//   - ChatStream: Streaming conversation with token-by-token callbacks.
//
// # Assumptions
//
//   - Messages use the unified role set (system/user/assistant); backends
//     whose native schema differs translate internally.
//   - Context cancellation is respected and aborts in-flight requests.
type LLMClient interface {
	// Name identifies the backend ("groq", "gemini", "openai").
	Name() string

	// Chat sends a conversation and returns the assistant's complete
	// response. Blocks until done.
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)

	// ChatStream is Chat with token-by-token delivery via callback. If an
	// error occurs mid-stream the callback receives an error event before
	// the method returns.
	ChatStream(ctx context.Context, messages []datatypes.Message, params GenerationParams, callback StreamCallback) error
}
