// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memorystore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxStoredMessageChars caps one persisted message; longer text is
// truncated at save time.
const maxStoredMessageChars = 10000

// PostgresStore implements ConversationStore over Postgres via pgx.
//
// # Schema
//
//	conversations(id, user_id, session_id, is_active, last_activity,
//	              message_count, history_json)
//	messages(id, conversation_id, role, content, created_at)
//
// One active conversation per user; every turn appends two message rows
// inside a single short transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn (CONVERSATION_DB_URL) and ensures the
// schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to conversation store: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	slog.Info("Conversation store connected")
	return s, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS conversations (
    id            BIGSERIAL PRIMARY KEY,
    user_id       TEXT NOT NULL,
    session_id    TEXT NOT NULL DEFAULT '',
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    last_activity TIMESTAMPTZ NOT NULL DEFAULT now(),
    message_count INTEGER NOT NULL DEFAULT 0,
    history_json  JSONB
);
CREATE UNIQUE INDEX IF NOT EXISTS conversations_active_user
    ON conversations (user_id) WHERE is_active;
CREATE TABLE IF NOT EXISTS messages (
    id              BIGSERIAL PRIMARY KEY,
    conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role            TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content         TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS messages_conversation_created
    ON messages (conversation_id, created_at);
`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensuring conversation schema: %w", err)
	}
	return nil
}

// truncateStored trims content to the persisted message cap.
func truncateStored(content string) string {
	if utf8.RuneCountInString(content) <= maxStoredMessageChars {
		return content
	}
	return string([]rune(content)[:maxStoredMessageChars])
}

// SaveTurn implements ConversationStore. The conversation row and both
// message rows commit or roll back together.
func (s *PostgresStore) SaveTurn(ctx context.Context, userID, userMessage, assistantMessage string) error {
	if userID == "" || userMessage == "" || assistantMessage == "" {
		return fmt.Errorf("save turn: user id and both messages are required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning turn transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var conversationID int64
	err = tx.QueryRow(ctx, `
INSERT INTO conversations (user_id, is_active, last_activity, message_count)
VALUES ($1, TRUE, now(), 0)
ON CONFLICT (user_id) WHERE is_active
DO UPDATE SET last_activity = now()
RETURNING id`, userID).Scan(&conversationID)
	if err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO messages (conversation_id, role, content) VALUES ($1, 'user', $2)`,
		conversationID, truncateStored(userMessage))
	batch.Queue(`INSERT INTO messages (conversation_id, role, content) VALUES ($1, 'assistant', $2)`,
		conversationID, truncateStored(assistantMessage))
	batch.Queue(`UPDATE conversations SET message_count = message_count + 2 WHERE id = $1`,
		conversationID)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting turn messages: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}

	return nil
}

// LoadContext implements ConversationStore: the most recent limit turns,
// returned oldest-first.
func (s *PostgresStore) LoadContext(ctx context.Context, userID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}

	// Pull the most recent 2*limit messages newest-first, then pair them
	// user/assistant in chronological order.
	rows, err := s.pool.Query(ctx, `
SELECT m.role, m.content, m.created_at
FROM messages m
JOIN conversations c ON c.id = m.conversation_id
WHERE c.user_id = $1 AND c.is_active
ORDER BY m.created_at DESC, m.id DESC
LIMIT $2`, userID, limit*2)
	if err != nil {
		return nil, fmt.Errorf("loading conversation context: %w", err)
	}
	defer rows.Close()

	type message struct {
		role      string
		content   string
		createdAt time.Time
	}
	var messages []message
	for rows.Next() {
		var m message
		if err := rows.Scan(&m.role, &m.content, &m.createdAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading message rows: %w", err)
	}

	// Reverse to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	// Pair alternating user/assistant rows into turns, skipping any
	// orphaned leading assistant message from the LIMIT cut.
	var turns []Turn
	for i := 0; i+1 < len(messages); i++ {
		if messages[i].role != "user" || messages[i+1].role != "assistant" {
			continue
		}
		turns = append(turns, Turn{
			UserID:           userID,
			UserMessage:      messages[i].content,
			AssistantMessage: messages[i+1].content,
			CreatedAt:        messages[i].createdAt,
		})
		i++
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	return turns, nil
}

// Clear implements ConversationStore. Message rows go with the
// conversation via ON DELETE CASCADE.
func (s *PostgresStore) Clear(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clearing conversation history: %w", err)
	}
	slog.Info("Conversation history cleared", "user_id", userID)
	return nil
}
