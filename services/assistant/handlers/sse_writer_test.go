// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
)

func TestSSEWriter_EventFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, writer.WriteEvent(datatypes.ContentEvent("Bonjour")))
	require.NoError(t, writer.WriteEvent(datatypes.EndEvent(datatypes.EndData{
		Reply:    "Bonjour",
		Language: "fr",
	})))

	body := rec.Body.String()
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	require.Len(t, frames, 2)

	for _, frame := range frames {
		require.True(t, strings.HasPrefix(frame, "data: "), "frame %q", frame)
	}

	var content datatypes.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[0], "data: ")), &content))
	assert.Equal(t, datatypes.EventContent, content.Type)
	assert.Equal(t, "Bonjour", content.Content)

	var end datatypes.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[1], "data: ")), &end))
	assert.Equal(t, datatypes.EventEnd, end.Type)
	require.NotNil(t, end.Data)
	assert.Equal(t, "Bonjour", end.Data.Reply)
	// Sources serialize as an empty array, never null.
	assert.NotNil(t, end.Data.Sources)
}

func TestSSEWriter_KeepAliveIsComment(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, writer.WriteKeepAlive())
	assert.Equal(t, ": ping\n\n", rec.Body.String())
}
