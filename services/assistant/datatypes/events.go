// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// =============================================================================
// Stream Event Contract
// =============================================================================

// EventType identifies one kind of streamed chat event.
//
// # Description
//
// A stream is a sequence of UTF-8 JSON objects: an optional "start", zero
// or more ordered "content" events, then exactly one terminal event
// ("end" or "error"). The concatenation of all content chunks byte-equals
// the terminal reply.
type EventType string

const (
	// EventStart opens a stream. Optional; carries no payload.
	EventStart EventType = "start"

	// EventContent carries one generated token (or chunk) in order.
	EventContent EventType = "content"

	// EventEnd terminates a successful stream with the full reply and
	// retrieval sources.
	EventEnd EventType = "end"

	// EventError terminates a failed stream with a human-readable message.
	// No further events follow.
	EventError EventType = "error"
)

// StreamEvent is one tagged event of the chat stream.
//
// Exactly the fields relevant to the Type are populated:
//
//	{"type":"start"}
//	{"type":"content","content":"Bon"}
//	{"type":"end","data":{...}}
//	{"type":"error","message":"..."}
type StreamEvent struct {
	Type    EventType `json:"type"`
	Content string    `json:"content,omitempty"`
	Data    *EndData  `json:"data,omitempty"`
	Message string    `json:"message,omitempty"`
}

// EndData is the payload of the terminal "end" event.
//
// # Fields
//
//   - Reply: The complete assistant answer (byte-equal to the concatenated
//     content chunks).
//   - Sources: Deduplicated retrieval sources. Empty, not null, when the
//     answer was generated without context.
//   - RagUsed: True when at least one source backed the answer.
//   - Language: Detected query language, "fr" or "ar".
//   - Cached: Set when the reply was served from the response cache.
type EndData struct {
	Reply    string   `json:"reply"`
	Sources  []Source `json:"sources"`
	RagUsed  bool     `json:"rag_used"`
	Language string   `json:"language"`
	Cached   bool     `json:"cached,omitempty"`
}

// Source identifies one retrieved document exposed to the caller.
// Sources are deduplicated on (URL, Title); structured knowledge entries
// carry no URL and therefore surface no source.
type Source struct {
	Title   string `json:"title"`
	Section string `json:"section"`
	URL     string `json:"url"`
}

// StartEvent returns the stream-opening event.
func StartEvent() StreamEvent {
	return StreamEvent{Type: EventStart}
}

// ContentEvent returns a content event carrying one token.
func ContentEvent(token string) StreamEvent {
	return StreamEvent{Type: EventContent, Content: token}
}

// EndEvent returns the terminal success event.
func EndEvent(data EndData) StreamEvent {
	if data.Sources == nil {
		data.Sources = []Source{}
	}
	return StreamEvent{Type: EventEnd, Data: &data}
}

// ErrorEvent returns the terminal failure event.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Message: message}
}
