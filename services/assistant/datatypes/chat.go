// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the assistant service.
//
// This file contains request and response types for the chat endpoints.
// For streaming event types, see events.go; for ingestion types, see
// documents.go.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single chat message.
	// Checked in bytes, not runes, to bound memory per request.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxStoredMessageChars is the maximum number of characters of a user or
	// assistant message persisted to conversation history. Longer messages
	// are truncated at save time.
	MaxStoredMessageChars = 10000

	// DefaultHistoryTurns is the number of prior turns loaded into the
	// prompt for follow-up questions.
	DefaultHistoryTurns = 10
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed
// MaxMessageContentBytes. Byte length is used deliberately.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Message
// =============================================================================

// Message is one turn of a chat conversation in the unified provider format.
//
// # Description
//
// Message is the neutral shape handed to every LLM backend. Providers whose
// native schema differs (for example a two-role schema without "system")
// translate internally; callers always build []Message.
//
// # Fields
//
//   - Role: One of "system", "user", "assistant".
//   - Content: The message text.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required,maxbytes"`
}

// =============================================================================
// Ask Request / Response
// =============================================================================

// AskRequest is the body of POST /chat/ask and POST /chat/ask/stream.
//
// # Fields
//
//   - Message: Required. The user's question. Capped at 32KB.
//   - UserID: Required. Scopes conversation memory and the response cache.
//   - NResults: Optional. Number of passages the retriever may emit.
//     Zero means the service default (1 passage, terse answers).
//   - Section: Optional advisory section hint for retrieval.
//
// # Example
//
//	{"message": "emploi du temps NTIC2-FS201 lundi", "user_id": "u1"}
type AskRequest struct {
	Message  string `json:"message" validate:"required,maxbytes"`
	UserID   string `json:"user_id" validate:"required,max=128"`
	NResults int    `json:"n_results,omitempty" validate:"gte=0,lte=10"`
	Section  string `json:"section,omitempty" validate:"max=128"`
}

// Validate checks the request against its validation tags.
func (r *AskRequest) Validate() error {
	return chatValidate.Struct(r)
}

// AskResponse is the body returned by POST /chat/ask (non-streaming).
//
// The fields mirror the terminal "end" event of the streaming endpoint so
// both surfaces stay interchangeable for clients.
type AskResponse struct {
	Reply    string   `json:"reply"`
	Sources  []Source `json:"sources"`
	RagUsed  bool     `json:"rag_used"`
	Language string   `json:"language"`
	Cached   bool     `json:"cached,omitempty"`
}

// =============================================================================
// Status
// =============================================================================

// StatusResponse is the body of GET /chat/status.
type StatusResponse struct {
	Status              string `json:"status"`
	RagInitialized      bool   `json:"rag_initialized"`
	KnowledgeDocuments  int    `json:"knowledge_documents"`
	ProvidersConfigured int    `json:"providers_configured"`
	EmbeddingProvider   string `json:"embedding_provider,omitempty"`
}

// =============================================================================
// History
// =============================================================================

// HistoryTurn is one stored exchange returned by GET /chat/history.
type HistoryTurn struct {
	UserMessage      string `json:"user_message"`
	AssistantMessage string `json:"assistant_message"`
	CreatedAt        string `json:"created_at"`
}

// HistoryResponse is the body of GET /chat/history/:user_id.
type HistoryResponse struct {
	UserID string        `json:"user_id"`
	Turns  []HistoryTurn `json:"turns"`
}
