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
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopStore(t *testing.T) {
	ctx := context.Background()
	store := NopStore{}

	require.NoError(t, store.SaveTurn(ctx, "u1", "q", "r"))

	turns, err := store.LoadContext(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)

	assert.NoError(t, store.Clear(ctx, "u1"))
}

func TestTruncateStored(t *testing.T) {
	short := "message court"
	assert.Equal(t, short, truncateStored(short))

	long := strings.Repeat("é", maxStoredMessageChars+1)
	truncated := truncateStored(long)
	// The 10,001st character is dropped; truncation counts runes, not
	// bytes, so multi-byte text is never cut mid-character.
	assert.Equal(t, maxStoredMessageChars, utf8.RuneCountInString(truncated))
	assert.True(t, utf8.ValidString(truncated))
}
