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
	"log/slog"
	"os"
	"time"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
)

// DefaultCallTimeout bounds one provider attempt of Chat. ChatStream
// attempts get no timeout of their own; they end with the caller's context.
const DefaultCallTimeout = 30 * time.Second

// ErrNoProviders is returned by NewFailoverFromEnv when no API key is
// configured.
var ErrNoProviders = errors.New("no LLM providers configured")

// ErrProvidersExhausted is returned when every provider in the chain
// failed. The last provider's error is attached.
var ErrProvidersExhausted = errors.New("all LLM providers failed")

// ProviderError wraps a single provider's failure with its identity.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ProviderError) Unwrap() error { return e.Err }

// FailoverClient folds a chat call over an ordered provider chain.
//
// # Description
//
// Providers are tried in order; a failure (network, 4xx/5xx, parse error,
// timeout) is logged and the next provider is tried. Exhaustion yields a
// single ErrProvidersExhausted with the last cause attached.
//
// For streaming, failover only happens while zero tokens have been
// emitted: once output reached the caller, switching providers would
// corrupt the stream, so a mid-stream failure is surfaced instead.
//
// # Thread Safety
//
// Safe for concurrent use; the chain is immutable after construction.
type FailoverClient struct {
	providers []LLMClient
	timeout   time.Duration
}

// NewFailoverClient creates a FailoverClient over providers in order.
func NewFailoverClient(providers ...LLMClient) *FailoverClient {
	return &FailoverClient{providers: providers, timeout: DefaultCallTimeout}
}

// WithTimeout overrides the per-call timeout of Chat.
func (f *FailoverClient) WithTimeout(d time.Duration) *FailoverClient {
	f.timeout = d
	return f
}

// Providers returns the number of configured backends.
func (f *FailoverClient) Providers() int { return len(f.providers) }

// Name implements LLMClient.
func (f *FailoverClient) Name() string { return "failover" }

// NewFailoverFromEnv builds the chain from configured credentials.
//
// The default order is Groq, Gemini, OpenAI; a provider is included only
// when its API key is present. LLM_PROVIDER pins the named provider to the
// front of the chain.
func NewFailoverFromEnv() (*FailoverClient, error) {
	type constructor struct {
		name  string
		build func() (LLMClient, error)
	}
	ctors := []constructor{
		{"groq", func() (LLMClient, error) { return NewGroqClient() }},
		{"gemini", func() (LLMClient, error) { return NewGeminiClient() }},
		{"openai", func() (LLMClient, error) { return NewOpenAIClient() }},
	}

	if pinned := os.Getenv("LLM_PROVIDER"); pinned != "" {
		for i, c := range ctors {
			if c.name == pinned && i > 0 {
				reordered := append([]constructor{c}, append(ctors[:i:i], ctors[i+1:]...)...)
				ctors = reordered
				break
			}
		}
	}

	var providers []LLMClient
	for _, c := range ctors {
		client, err := c.build()
		if err != nil {
			slog.Debug("LLM provider not configured", "provider", c.name, "reason", err)
			continue
		}
		providers = append(providers, client)
	}
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	slog.Info("LLM provider chain configured", "providers", names)

	return NewFailoverClient(providers...), nil
}

// Chat implements LLMClient with ordered failover.
func (f *FailoverClient) Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error) {
	var lastErr error

	for _, provider := range f.providers {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		callCtx, cancel := context.WithTimeout(ctx, f.timeout)
		resp, err := provider.Chat(callCtx, messages, params)
		cancel()

		if err == nil {
			return resp, nil
		}
		lastErr = &ProviderError{Provider: provider.Name(), Err: err}
		slog.Warn("LLM provider failed, trying next", "provider", provider.Name(), "error", err)
	}

	return "", fmt.Errorf("%w: %v", ErrProvidersExhausted, lastErr)
}

// ChatStream implements LLMClient with ordered failover until first output.
func (f *FailoverClient) ChatStream(ctx context.Context, messages []datatypes.Message, params GenerationParams, callback StreamCallback) error {
	var lastErr error

	for _, provider := range f.providers {
		if err := ctx.Err(); err != nil {
			return err
		}

		emitted := false
		guarded := func(event StreamEvent) error {
			// Provider-internal error events are not forwarded: either the
			// chain recovers silently or the terminal error is surfaced by
			// the caller.
			if event.Type == StreamEventError {
				return nil
			}
			emitted = true
			return callback(event)
		}

		err := provider.ChatStream(ctx, messages, params, guarded)
		if err == nil {
			return nil
		}
		if emitted || errors.Is(err, context.Canceled) {
			// Output already reached the caller (or the client went away);
			// switching providers now would corrupt the stream.
			return &ProviderError{Provider: provider.Name(), Err: err}
		}

		lastErr = &ProviderError{Provider: provider.Name(), Err: err}
		slog.Warn("LLM provider stream failed before output, trying next", "provider", provider.Name(), "error", err)
	}

	return fmt.Errorf("%w: %v", ErrProvidersExhausted, lastErr)
}
