// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
	"github.com/AleutianAI/SmartPresence/services/assistant/embedding"
	"github.com/AleutianAI/SmartPresence/services/assistant/memorystore"
	"github.com/AleutianAI/SmartPresence/services/assistant/retrieval"
	"github.com/AleutianAI/SmartPresence/services/assistant/vectorstore"
	"github.com/AleutianAI/SmartPresence/services/llm"
)

// =============================================================================
// Test Doubles
// =============================================================================

// fakeLLM streams a fixed reply, or fails.
type fakeLLM struct {
	reply string
	fail  bool
	calls int
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Chat(context.Context, []datatypes.Message, llm.GenerationParams) (string, error) {
	f.calls++
	if f.fail {
		return "", fmt.Errorf("%w: down", llm.ErrProvidersExhausted)
	}
	return f.reply, nil
}

func (f *fakeLLM) ChatStream(_ context.Context, _ []datatypes.Message, _ llm.GenerationParams, cb llm.StreamCallback) error {
	f.calls++
	if f.fail {
		return fmt.Errorf("%w: down", llm.ErrProvidersExhausted)
	}
	for _, token := range strings.Split(f.reply, "") {
		if err := cb(llm.StreamEvent{Type: llm.StreamEventToken, Content: token}); err != nil {
			return err
		}
	}
	return nil
}

// recordingStore counts persisted turns.
type recordingStore struct {
	memorystore.NopStore
	saved []memorystore.Turn
}

func (r *recordingStore) SaveTurn(_ context.Context, userID, userMsg, assistantMsg string) error {
	r.saved = append(r.saved, memorystore.Turn{UserID: userID, UserMessage: userMsg, AssistantMessage: assistantMsg})
	return nil
}

// emptyStore has no collections at all: retrieval degrades to no context.
type emptyStore struct{}

func (emptyStore) OpenOrCreate(context.Context, string) (vectorstore.Collection, error) {
	return nil, vectorstore.ErrNotFound
}
func (emptyStore) Open(context.Context, string) (vectorstore.Collection, error) {
	return nil, vectorstore.ErrNotFound
}
func (emptyStore) Delete(context.Context, string) error { return nil }

func newTestEngine(client llm.LLMClient, store memorystore.ConversationStore) *ChatEngine {
	retriever := retrieval.New(emptyStore{}, embedding.NewCachedEmbedder(embedding.NewDummyEmbedder()))
	return NewChatEngine(retriever, client, store, NewMemoryResponseCache(time.Hour))
}

func collectEvents(t *testing.T, engine *ChatEngine, message, userID string) []datatypes.StreamEvent {
	t.Helper()
	var events []datatypes.StreamEvent
	_ = engine.AnswerStream(context.Background(), message, userID, retrieval.Options{}, func(e datatypes.StreamEvent) error {
		events = append(events, e)
		return nil
	})
	return events
}

// =============================================================================
// Stream Shape Invariants
// =============================================================================

func TestAnswerStream_EventSequence(t *testing.T) {
	engine := newTestEngine(&fakeLLM{reply: "Bonjour !"}, &recordingStore{})
	events := collectEvents(t, engine, "salut", "u1")

	require.NotEmpty(t, events)
	assert.Equal(t, datatypes.EventStart, events[0].Type)

	// Zero or more content events strictly before exactly one terminal.
	var reply strings.Builder
	terminalSeen := false
	for _, e := range events[1:] {
		switch e.Type {
		case datatypes.EventContent:
			assert.False(t, terminalSeen, "content after terminal event")
			reply.WriteString(e.Content)
		case datatypes.EventEnd, datatypes.EventError:
			assert.False(t, terminalSeen, "more than one terminal event")
			terminalSeen = true
		}
	}
	require.True(t, terminalSeen)

	last := events[len(events)-1]
	require.Equal(t, datatypes.EventEnd, last.Type)
	// The reply byte-equals the concatenation of content chunks.
	assert.Equal(t, reply.String(), last.Data.Reply)
	assert.Equal(t, "Bonjour !", last.Data.Reply)
	assert.False(t, last.Data.RagUsed)
	assert.Equal(t, "fr", last.Data.Language)
	assert.NotNil(t, last.Data.Sources)
}

func TestAnswerStream_ArabicLanguageOnTerminalEvent(t *testing.T) {
	engine := newTestEngine(&fakeLLM{reply: "ok"}, &recordingStore{})
	events := collectEvents(t, engine, "ما هو جدول الحصص", "u1")

	last := events[len(events)-1]
	require.Equal(t, datatypes.EventEnd, last.Type)
	assert.Equal(t, "ar", last.Data.Language)
}

func TestAnswerStream_PersistsTurn(t *testing.T) {
	store := &recordingStore{}
	engine := newTestEngine(&fakeLLM{reply: "réponse"}, store)

	collectEvents(t, engine, "question", "u1")

	require.Len(t, store.saved, 1)
	assert.Equal(t, "question", store.saved[0].UserMessage)
	assert.Equal(t, "réponse", store.saved[0].AssistantMessage)
}

// =============================================================================
// Response Cache
// =============================================================================

func TestAnswerStream_CacheHitSkipsProviders(t *testing.T) {
	client := &fakeLLM{reply: "mise en cache"}
	engine := newTestEngine(client, &recordingStore{})

	first := collectEvents(t, engine, "même question", "u1")
	require.Equal(t, datatypes.EventEnd, first[len(first)-1].Type)
	callsAfterFirst := client.calls

	second := collectEvents(t, engine, "même question", "u1")
	last := second[len(second)-1]

	require.Equal(t, datatypes.EventEnd, last.Type)
	assert.True(t, last.Data.Cached)
	assert.Equal(t, "mise en cache", last.Data.Reply)
	// Zero provider calls on the cached turn.
	assert.Equal(t, callsAfterFirst, client.calls)

	// The cached stream is still well formed: content then end.
	var reply strings.Builder
	for _, e := range second {
		if e.Type == datatypes.EventContent {
			reply.WriteString(e.Content)
		}
	}
	assert.Equal(t, last.Data.Reply, reply.String())
}

func TestAnswerStream_CacheIsPerUser(t *testing.T) {
	client := &fakeLLM{reply: "réponse"}
	engine := newTestEngine(client, &recordingStore{})

	collectEvents(t, engine, "question", "u1")
	events := collectEvents(t, engine, "question", "u2")

	last := events[len(events)-1]
	require.Equal(t, datatypes.EventEnd, last.Type)
	assert.False(t, last.Data.Cached)
}

// =============================================================================
// Failure Semantics
// =============================================================================

func TestAnswerStream_ProviderExhaustionEmitsSingleError(t *testing.T) {
	store := &recordingStore{}
	engine := newTestEngine(&fakeLLM{fail: true}, store)

	events := collectEvents(t, engine, "question", "u1")

	errorCount := 0
	for _, e := range events {
		assert.NotEqual(t, datatypes.EventEnd, e.Type)
		if e.Type == datatypes.EventError {
			errorCount++
			assert.NotEmpty(t, e.Message)
		}
	}
	assert.Equal(t, 1, errorCount)

	// No turn is persisted on failure.
	assert.Empty(t, store.saved)
}

func TestAnswerStream_ClientDisconnectLeavesNoTrace(t *testing.T) {
	store := &recordingStore{}
	engine := newTestEngine(&fakeLLM{reply: "une réponse assez longue"}, store)

	seen := 0
	err := engine.AnswerStream(context.Background(), "question", "u1", retrieval.Options{}, func(e datatypes.StreamEvent) error {
		if e.Type == datatypes.EventContent {
			seen++
			if seen == 3 {
				return fmt.Errorf("client gone")
			}
		}
		assert.NotEqual(t, datatypes.EventEnd, e.Type, "no end event after disconnect")
		return nil
	})

	require.Error(t, err)
	assert.Empty(t, store.saved)
}

// =============================================================================
// Non-Streaming Wrapper
// =============================================================================

func TestAnswer_ReturnsTerminalPayload(t *testing.T) {
	engine := newTestEngine(&fakeLLM{reply: "voici la réponse"}, &recordingStore{})

	resp, err := engine.Answer(context.Background(), "question", "u1", retrieval.Options{})
	require.NoError(t, err)
	assert.Equal(t, "voici la réponse", resp.Reply)
	assert.False(t, resp.RagUsed)
	assert.Equal(t, "fr", resp.Language)
}

func TestAnswer_PropagatesProviderFailure(t *testing.T) {
	engine := newTestEngine(&fakeLLM{fail: true}, &recordingStore{})

	_, err := engine.Answer(context.Background(), "question", "u1", retrieval.Options{})
	assert.Error(t, err)
}

// =============================================================================
// Prompt Composition
// =============================================================================

func TestBuildMessages(t *testing.T) {
	history := []memorystore.Turn{
		{UserMessage: "q1", AssistantMessage: "r1"},
		{UserMessage: "q2", AssistantMessage: "r2"},
	}

	messages := buildMessages("question actuelle", "contexte récupéré", history)

	require.Len(t, messages, 6)
	assert.Equal(t, "system", messages[0].Role)
	assert.Contains(t, messages[0].Content, "Contexte pertinent:\ncontexte récupéré")
	assert.Equal(t, "user", messages[1].Role)
	assert.Equal(t, "q1", messages[1].Content)
	assert.Equal(t, "assistant", messages[2].Role)
	assert.Equal(t, "user", messages[5].Role)
	assert.Equal(t, "question actuelle", messages[5].Content)
}

func TestBuildMessages_NoContext(t *testing.T) {
	messages := buildMessages("question", "", nil)
	require.Len(t, messages, 2)
	assert.NotContains(t, messages[0].Content, "Contexte pertinent")
}
