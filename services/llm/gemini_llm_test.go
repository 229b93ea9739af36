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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
)

func TestGeminiBuildRequest_FoldsSystemIntoFirstUserTurn(t *testing.T) {
	client := NewGeminiClientWithConfig("key", "gemini-1.5-flash", "http://unused")

	req := client.buildRequest([]datatypes.Message{
		{Role: "system", Content: "Tu es un assistant."},
		{Role: "user", Content: "Bonjour"},
		{Role: "assistant", Content: "Salut"},
		{Role: "user", Content: "Question"},
	}, GenerationParams{})

	require.Len(t, req.Contents, 3)
	assert.Equal(t, "user", req.Contents[0].Role)
	assert.Equal(t, "Tu es un assistant.\n\nBonjour", req.Contents[0].Parts[0].Text)
	assert.Equal(t, "model", req.Contents[1].Role)
	assert.Equal(t, "user", req.Contents[2].Role)
	assert.Equal(t, "Question", req.Contents[2].Parts[0].Text)
}

func TestGeminiChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("x-goog-api-key"))
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"))

		body, _ := io.ReadAll(r.Body)
		var req geminiRequest
		require.NoError(t, json.Unmarshal(body, &req))
		require.NotEmpty(t, req.Contents)

		resp := geminiResponse{Candidates: []geminiCandidate{{
			Content: geminiContent{Role: "model", Parts: []geminiPart{{Text: "Réponse"}}},
		}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewGeminiClientWithConfig("key", "gemini-1.5-flash", server.URL)
	out, err := client.Chat(context.Background(), []datatypes.Message{{Role: "user", Content: "q"}}, GenerationParams{})

	require.NoError(t, err)
	assert.Equal(t, "Réponse", out)
}

func TestGeminiChat_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer server.Close()

	client := NewGeminiClientWithConfig("key", "gemini-1.5-flash", server.URL)
	_, err := client.Chat(context.Background(), []datatypes.Message{{Role: "user", Content: "q"}}, GenerationParams{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGeminiChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.Contains(r.URL.Path, ":streamGenerateContent"))
		w.Header().Set("Content-Type", "text/event-stream")

		for _, token := range []string{"Bon", "jour", " !"} {
			chunk := geminiResponse{Candidates: []geminiCandidate{{
				Content: geminiContent{Parts: []geminiPart{{Text: token}}},
			}}}
			payload, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
	}))
	defer server.Close()

	client := NewGeminiClientWithConfig("key", "gemini-1.5-flash", server.URL)

	var sb strings.Builder
	err := client.ChatStream(context.Background(), []datatypes.Message{{Role: "user", Content: "q"}}, GenerationParams{}, func(e StreamEvent) error {
		if e.Type == StreamEventToken {
			sb.WriteString(e.Content)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Bonjour !", sb.String())
}
