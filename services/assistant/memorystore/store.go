// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memorystore persists conversation memory.
//
// # Description
//
// The ConversationStore port keeps per-user chat history in a relational
// store: one active conversation row per user and two message rows per
// turn, alternating user/assistant in insertion order. The engine treats
// every store call as best-effort; persistence failures are logged, never
// surfaced to the caller mid-stream.
//
// The port has no back-reference to the engine; it is a pure dependency.
package memorystore

import (
	"context"
	"time"
)

// Turn is one stored (user message, assistant message) exchange.
type Turn struct {
	UserID           string
	UserMessage      string
	AssistantMessage string
	CreatedAt        time.Time
}

// ConversationStore is the persistence contract for conversation memory.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Each write runs in its
// own short transaction; a failure rolls back that turn only.
type ConversationStore interface {
	// SaveTurn appends one exchange for userID. Messages longer than the
	// stored-message cap are truncated. Appended turns are never mutated.
	SaveTurn(ctx context.Context, userID, userMessage, assistantMessage string) error

	// LoadContext returns up to limit recent turns for userID,
	// oldest-first, for prompt composition.
	LoadContext(ctx context.Context, userID string, limit int) ([]Turn, error)

	// Clear deletes all stored turns for userID.
	Clear(ctx context.Context, userID string) error
}

// NopStore is the storeless-mode implementation: turns vanish, history is
// always empty. Used when CONVERSATION_DB_URL is not configured.
type NopStore struct{}

// SaveTurn implements ConversationStore.
func (NopStore) SaveTurn(context.Context, string, string, string) error { return nil }

// LoadContext implements ConversationStore.
func (NopStore) LoadContext(context.Context, string, int) ([]Turn, error) { return nil, nil }

// Clear implements ConversationStore.
func (NopStore) Clear(context.Context, string) error { return nil }
