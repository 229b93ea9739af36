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
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
)

// scriptedClient is a deterministic LLMClient for chain tests.
type scriptedClient struct {
	name string

	// reply is streamed token-by-token and returned whole by Chat.
	reply string

	// failBefore makes every call fail before producing output.
	failBefore bool

	// failAfter makes ChatStream fail after emitting half the tokens.
	failAfter bool

	calls int
}

func (s *scriptedClient) Name() string { return s.name }

func (s *scriptedClient) Chat(_ context.Context, _ []datatypes.Message, _ GenerationParams) (string, error) {
	s.calls++
	if s.failBefore {
		return "", fmt.Errorf("%s unavailable", s.name)
	}
	return s.reply, nil
}

func (s *scriptedClient) ChatStream(_ context.Context, _ []datatypes.Message, _ GenerationParams, callback StreamCallback) error {
	s.calls++
	if s.failBefore {
		_ = callback(StreamEvent{Type: StreamEventError, Error: s.name + " unavailable"})
		return fmt.Errorf("%s unavailable", s.name)
	}

	tokens := strings.Split(s.reply, "")
	for i, token := range tokens {
		if s.failAfter && i == len(tokens)/2 {
			return fmt.Errorf("%s died mid-stream", s.name)
		}
		if err := callback(StreamEvent{Type: StreamEventToken, Content: token}); err != nil {
			return err
		}
	}
	return nil
}

func collectStream(t *testing.T, client LLMClient) (string, error) {
	t.Helper()
	var sb strings.Builder
	err := client.ChatStream(context.Background(), []datatypes.Message{{Role: "user", Content: "q"}}, GenerationParams{}, func(e StreamEvent) error {
		if e.Type == StreamEventToken {
			sb.WriteString(e.Content)
		}
		return nil
	})
	return sb.String(), err
}

func TestFailover_FirstProviderWins(t *testing.T) {
	a := &scriptedClient{name: "a", reply: "bonjour"}
	b := &scriptedClient{name: "b", reply: "salut"}

	chain := NewFailoverClient(a, b)
	resp, err := chain.Chat(context.Background(), nil, GenerationParams{})

	require.NoError(t, err)
	assert.Equal(t, "bonjour", resp)
	assert.Zero(t, b.calls)
}

func TestFailover_Dominance(t *testing.T) {
	// With providers [A, B, C] and A forced to fail, the output is
	// byte-equal to running with [B, C] alone.
	newChainWithBrokenA := func() *FailoverClient {
		return NewFailoverClient(
			&scriptedClient{name: "a", failBefore: true},
			&scriptedClient{name: "b", reply: "réponse de b"},
			&scriptedClient{name: "c", reply: "réponse de c"},
		)
	}
	newChainBC := func() *FailoverClient {
		return NewFailoverClient(
			&scriptedClient{name: "b", reply: "réponse de b"},
			&scriptedClient{name: "c", reply: "réponse de c"},
		)
	}

	withA, err := newChainWithBrokenA().Chat(context.Background(), nil, GenerationParams{})
	require.NoError(t, err)
	withoutA, err := newChainBC().Chat(context.Background(), nil, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, withoutA, withA)

	streamedWithA, err := collectStream(t, newChainWithBrokenA())
	require.NoError(t, err)
	streamedWithoutA, err := collectStream(t, newChainBC())
	require.NoError(t, err)
	assert.Equal(t, streamedWithoutA, streamedWithA)
}

func TestFailover_Exhaustion(t *testing.T) {
	chain := NewFailoverClient(
		&scriptedClient{name: "a", failBefore: true},
		&scriptedClient{name: "b", failBefore: true},
	)

	_, err := chain.Chat(context.Background(), nil, GenerationParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvidersExhausted)

	_, err = collectStream(t, chain)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvidersExhausted)
}

func TestFailover_NoSwitchAfterOutput(t *testing.T) {
	// Once tokens reached the caller, a mid-stream failure must surface
	// instead of restarting on the next provider (which would duplicate
	// output).
	b := &scriptedClient{name: "b", reply: "jamais"}
	chain := NewFailoverClient(
		&scriptedClient{name: "a", reply: "bonjour", failAfter: true},
		b,
	)

	out, err := collectStream(t, chain)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProvidersExhausted)
	assert.Equal(t, "bon", out)
	assert.Zero(t, b.calls)
}

func TestFailover_TokenOrderPreserved(t *testing.T) {
	chain := NewFailoverClient(&scriptedClient{name: "a", reply: "réponse complète"})

	out, err := collectStream(t, chain)
	require.NoError(t, err)
	assert.Equal(t, "réponse complète", out)
}

func TestFailover_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chain := NewFailoverClient(&scriptedClient{name: "a", reply: "x"})
	_, err := chain.Chat(ctx, nil, GenerationParams{})
	assert.ErrorIs(t, err, context.Canceled)
}
