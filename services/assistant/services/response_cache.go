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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
)

// DefaultResponseTTL is how long a completed reply is served from cache.
const DefaultResponseTTL = time.Hour

// ResponseCache short-circuits repeated (message, user) queries.
//
// # Description
//
// The cache stores the terminal end-event payload keyed by a fingerprint
// of the message and user id. Entries expire after the configured TTL;
// eviction is lazy on read for the in-memory implementation.
type ResponseCache interface {
	// Get returns the cached payload for (message, userID), if any.
	Get(ctx context.Context, message, userID string) (*datatypes.EndData, bool)

	// Set stores the payload for (message, userID).
	Set(ctx context.Context, message, userID string, data datatypes.EndData)
}

// fingerprint digests (message, userID) into a stable cache key.
func fingerprint(message, userID string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(message)) + ":" + userID))
	return "chat:resp:" + hex.EncodeToString(sum[:])
}

// NewResponseCacheFromEnv picks the cache backing: Redis when
// REDIS_CACHE_ENABLED is true and REDIS_URL parses, in-memory otherwise.
func NewResponseCacheFromEnv() ResponseCache {
	if strings.EqualFold(os.Getenv("REDIS_CACHE_ENABLED"), "true") {
		url := os.Getenv("REDIS_URL")
		if url == "" {
			url = "redis://localhost:6379/0"
		}
		opts, err := redis.ParseURL(url)
		if err != nil {
			slog.Warn("Invalid REDIS_URL, using in-memory response cache", "error", err)
		} else {
			slog.Info("Redis response cache enabled")
			return NewRedisResponseCache(redis.NewClient(opts), DefaultResponseTTL)
		}
	}
	return NewMemoryResponseCache(DefaultResponseTTL)
}

// =============================================================================
// Redis Implementation
// =============================================================================

// RedisResponseCache stores payloads in Redis with server-side TTL.
// Cache errors are logged and treated as misses; the cache never blocks an
// answer.
type RedisResponseCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisResponseCache creates a RedisResponseCache.
func NewRedisResponseCache(client *redis.Client, ttl time.Duration) *RedisResponseCache {
	return &RedisResponseCache{client: client, ttl: ttl}
}

// Get implements ResponseCache.
func (c *RedisResponseCache) Get(ctx context.Context, message, userID string) (*datatypes.EndData, bool) {
	raw, err := c.client.Get(ctx, fingerprint(message, userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("Response cache get failed", "error", err)
		}
		return nil, false
	}

	var data datatypes.EndData
	if err := json.Unmarshal(raw, &data); err != nil {
		slog.Warn("Response cache entry unreadable, dropping", "error", err)
		return nil, false
	}
	return &data, true
}

// Set implements ResponseCache.
func (c *RedisResponseCache) Set(ctx context.Context, message, userID string, data datatypes.EndData) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Warn("Response cache marshal failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, fingerprint(message, userID), raw, c.ttl).Err(); err != nil {
		slog.Warn("Response cache set failed", "error", err)
	}
}

// =============================================================================
// In-Memory Implementation
// =============================================================================

// MemoryResponseCache is the single-process fallback when Redis is not
// configured. TTL eviction happens lazily on read.
type MemoryResponseCache struct {
	mu      sync.Mutex
	entries map[string]memoryCacheEntry
	ttl     time.Duration
}

type memoryCacheEntry struct {
	data      datatypes.EndData
	expiresAt time.Time
}

// NewMemoryResponseCache creates a MemoryResponseCache with the given TTL.
func NewMemoryResponseCache(ttl time.Duration) *MemoryResponseCache {
	return &MemoryResponseCache{entries: map[string]memoryCacheEntry{}, ttl: ttl}
}

// Get implements ResponseCache.
func (c *MemoryResponseCache) Get(_ context.Context, message, userID string) (*datatypes.EndData, bool) {
	key := fingerprint(message, userID)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	data := entry.data
	return &data, true
}

// Set implements ResponseCache.
func (c *MemoryResponseCache) Set(_ context.Context, message, userID string, data datatypes.EndData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint(message, userID)] = memoryCacheEntry{
		data:      data,
		expiresAt: time.Now().Add(c.ttl),
	}
}
