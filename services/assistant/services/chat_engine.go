// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides the business logic of the assistant.
//
// The ChatEngine orchestrates one conversation turn end-to-end: response
// cache, conversation memory, retrieval, prompt composition, provider
// streaming, persistence, and the tagged event sequence the transport
// forwards to the client.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
	"github.com/AleutianAI/SmartPresence/services/assistant/memorystore"
	"github.com/AleutianAI/SmartPresence/services/assistant/retrieval"
	"github.com/AleutianAI/SmartPresence/services/llm"
)

// engineTracer is the OpenTelemetry tracer for ChatEngine operations.
var engineTracer = otel.Tracer("smartpresence.assistant.services.chat_engine")

// EmitFunc delivers one stream event to the transport. Returning an error
// means the client is gone; the engine aborts the turn, skips persistence,
// and emits nothing further.
type EmitFunc func(event datatypes.StreamEvent) error

// ChatEngine answers user queries as tagged event streams.
//
// # Event Contract
//
// Every call emits: "start", zero or more ordered "content" events, then
// exactly one terminal event ("end" or "error"). The reply in the end
// payload byte-equals the concatenation of the content chunks.
//
// # Thread Safety
//
// Safe for concurrent use; each call is an independent turn. Concurrent
// turns for the same user have no ordering guarantee.
type ChatEngine struct {
	retriever *retrieval.Retriever
	llmClient llm.LLMClient
	store     memorystore.ConversationStore
	cache     ResponseCache
}

// NewChatEngine wires the engine's collaborators.
//
// store and cache must be non-nil; use memorystore.NopStore and
// NewMemoryResponseCache for storeless deployments.
func NewChatEngine(retriever *retrieval.Retriever, llmClient llm.LLMClient, store memorystore.ConversationStore, cache ResponseCache) *ChatEngine {
	return &ChatEngine{
		retriever: retriever,
		llmClient: llmClient,
		store:     store,
		cache:     cache,
	}
}

// AnswerStream runs one conversation turn, delivering events through emit.
//
// # Description
//
// The returned error is for logging only: by the time AnswerStream
// returns, the stream has already been terminated correctly (end event,
// error event, or silent stop when the client disconnected). Callers must
// not emit anything afterwards.
func (e *ChatEngine) AnswerStream(ctx context.Context, message, userID string, opts retrieval.Options, emit EmitFunc) error {
	ctx, span := engineTracer.Start(ctx, "ChatEngine.AnswerStream")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if err := emit(datatypes.StartEvent()); err != nil {
		return err
	}

	// 1. Response cache: replay the stored payload as a well-formed stream.
	if cached, ok := e.cache.Get(ctx, message, userID); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		slog.Info("Serving reply from response cache", "user_id", userID)

		if err := emit(datatypes.ContentEvent(cached.Reply)); err != nil {
			return err
		}
		cached.Cached = true
		return emit(datatypes.EndEvent(*cached))
	}

	// 2. Conversation memory (best-effort).
	history, err := e.store.LoadContext(ctx, userID, datatypes.DefaultHistoryTurns)
	if err != nil {
		slog.Warn("Failed to load conversation context, continuing without history",
			"user_id", userID, "error", err)
		history = nil
	}

	// 3. Retrieval. An empty message skips retrieval entirely: the answer
	// comes from history alone.
	var ragContext string
	var sources []datatypes.Source
	analysis := retrieval.Analyze(message)
	if strings.TrimSpace(message) != "" {
		ragContext, sources, analysis = e.retriever.Retrieve(ctx, message, opts)
	}
	span.SetAttributes(
		attribute.Bool("rag.used", len(sources) > 0),
		attribute.String("query.language", analysis.Language),
		attribute.Int("history.turns", len(history)),
	)

	// 4-5. Prompt composition and provider streaming.
	messages := buildMessages(message, ragContext, history)

	var reply strings.Builder
	emitFailed := false
	streamErr := e.llmClient.ChatStream(ctx, messages, llm.GenerationParams{}, func(event llm.StreamEvent) error {
		if event.Type != llm.StreamEventToken {
			return nil
		}
		reply.WriteString(event.Content)
		if err := emit(datatypes.ContentEvent(event.Content)); err != nil {
			emitFailed = true
			return err
		}
		return nil
	})

	if streamErr != nil {
		if emitFailed || errors.Is(streamErr, context.Canceled) {
			// Client gone: abort quietly, leave no memory trace.
			span.SetStatus(codes.Error, "client cancelled")
			slog.Info("Stream cancelled by client", "user_id", userID)
			return streamErr
		}
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, "providers failed")
		slog.Error("LLM generation failed", "user_id", userID, "error", streamErr)
		_ = emit(datatypes.ErrorEvent(userFacingError(streamErr)))
		return streamErr
	}

	fullReply := reply.String()

	// 6a. Persist the turn (best-effort; the user already has the answer).
	if strings.TrimSpace(message) != "" && fullReply != "" {
		if err := e.store.SaveTurn(ctx, userID, message, fullReply); err != nil {
			slog.Warn("Failed to persist conversation turn", "user_id", userID, "error", err)
		}
	}

	endData := datatypes.EndData{
		Reply:    fullReply,
		Sources:  sources,
		RagUsed:  len(sources) > 0,
		Language: analysis.Language,
	}

	// 6b. Populate the response cache.
	e.cache.Set(ctx, message, userID, endData)

	// 6c. Terminal event.
	return emit(datatypes.EndEvent(endData))
}

// Answer runs one turn without streaming, for the plain JSON endpoint.
func (e *ChatEngine) Answer(ctx context.Context, message, userID string, opts retrieval.Options) (*datatypes.AskResponse, error) {
	var endData *datatypes.EndData

	err := e.AnswerStream(ctx, message, userID, opts, func(event datatypes.StreamEvent) error {
		switch event.Type {
		case datatypes.EventEnd:
			endData = event.Data
		case datatypes.EventError:
			return fmt.Errorf("%s", event.Message)
		}
		return nil
	})
	if err != nil && endData == nil {
		return nil, err
	}
	if endData == nil {
		return nil, fmt.Errorf("stream ended without terminal event")
	}

	return &datatypes.AskResponse{
		Reply:    endData.Reply,
		Sources:  endData.Sources,
		RagUsed:  endData.RagUsed,
		Language: endData.Language,
		Cached:   endData.Cached,
	}, nil
}

// History exposes stored turns for the history endpoint.
func (e *ChatEngine) History(ctx context.Context, userID string, limit int) ([]memorystore.Turn, error) {
	return e.store.LoadContext(ctx, userID, limit)
}

// ClearHistory deletes all stored turns for userID.
func (e *ChatEngine) ClearHistory(ctx context.Context, userID string) error {
	return e.store.Clear(ctx, userID)
}

// userFacingError maps internal failures to a safe client message.
func userFacingError(err error) string {
	if errors.Is(err, llm.ErrProvidersExhausted) {
		return "Le service de génération est momentanément indisponible. Réessayez dans quelques instants."
	}
	return "Une erreur est survenue pendant la génération de la réponse."
}
