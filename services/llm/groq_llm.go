// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
)

// groqBaseURL is Groq's OpenAI-compatible endpoint.
const groqBaseURL = "https://api.groq.com/openai/v1"

// GroqClient is the fast-inference backend, first in the default chain.
//
// Groq speaks the OpenAI wire protocol, so the client reuses the OpenAI
// SDK with a different base URL.
type GroqClient struct {
	client *openai.Client
	model  string
}

// NewGroqClient creates a GroqClient from GROQ_API_KEY / GROQ_MODEL.
func NewGroqClient() (*GroqClient, error) {
	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
	}

	model := os.Getenv("GROQ_MODEL")
	if model == "" {
		model = "llama-3.1-8b-instant"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = groqBaseURL

	slog.Info("Initializing Groq client", "model", model)
	return &GroqClient{client: openai.NewClientWithConfig(config), model: model}, nil
}

// Name implements LLMClient.
func (g *GroqClient) Name() string { return "groq" }

// buildRequest translates the unified message list into the OpenAI shape.
func (g *GroqClient) buildRequest(messages []datatypes.Message, params GenerationParams, stream bool) openai.ChatCompletionRequest {
	oaiMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		oaiMessages = append(oaiMessages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    oaiMessages,
		Temperature: params.temperature(),
		MaxTokens:   params.maxTokens(),
		Stream:      stream,
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	return req
}

// Chat implements LLMClient.
func (g *GroqClient) Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, g.buildRequest(messages, params, false))
	if err != nil {
		return "", fmt.Errorf("groq: chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("groq: returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatStream implements LLMClient.
func (g *GroqClient) ChatStream(ctx context.Context, messages []datatypes.Message, params GenerationParams, callback StreamCallback) error {
	stream, err := g.client.CreateChatCompletionStream(ctx, g.buildRequest(messages, params, true))
	if err != nil {
		_ = callback(StreamEvent{Type: StreamEventError, Error: err.Error()})
		return fmt.Errorf("groq: opening stream: %w", err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			_ = callback(StreamEvent{Type: StreamEventError, Error: err.Error()})
			return fmt.Errorf("groq: stream receive: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if token := chunk.Choices[0].Delta.Content; token != "" {
			if err := callback(StreamEvent{Type: StreamEventToken, Content: token}); err != nil {
				return err
			}
		}
	}
}
