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

import "encoding/json"

// Object values mirrored from the completion provider.
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
)

// =============================================================================
// Wire Envelope
// =============================================================================

// ResponseEnvelope is the single wire shape the gateway emits for chat
// completions. Buffered responses carry choices with a messages array;
// streaming responses carry one envelope per NDJSON line with a delta.
type ResponseEnvelope struct {
	ID              string           `json:"id"`
	Model           string           `json:"model"`
	Created         int64            `json:"created"`
	Object          string           `json:"object"`
	Choices         []Choice         `json:"choices"`
	HistoryMetadata *HistoryMetadata `json:"history_metadata,omitempty"`
	APIMRequestID   string           `json:"apim_request_id,omitempty"`
}

// Choice holds either a fully materialized messages array (buffered) or
// a single incremental delta (streaming). Exactly one side is set.
type Choice struct {
	Messages []ChatMessage `json:"messages,omitempty"`
	Delta    *Delta        `json:"delta,omitempty"`
}

// Delta is one streamed increment of assistant output. Context carries
// retrieval citations verbatim when the provider attached them.
type Delta struct {
	Role    string          `json:"role,omitempty"`
	Content string          `json:"content,omitempty"`
	Context json.RawMessage `json:"context,omitempty"`
}

// HistoryMetadata correlates a completion response with the stored
// conversation it belongs to. Populated by the history endpoints and
// echoed back untouched by the completion pipeline.
type HistoryMetadata struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Title          string `json:"title,omitempty"`
	Date           string `json:"date,omitempty"`
}

// =============================================================================
// History Endpoint Responses
// =============================================================================

// ErrorResponse is the uniform error body for every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse acknowledges a write with no further payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// StatusResponse acknowledges an operation with a human-readable
// confirmation. ConversationID and MessageID are set when the operation
// targeted a specific record.
type StatusResponse struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

// ConversationMessagesResponse is the read-conversation payload: the
// sanitized transcript of one conversation in ascending createdAt
// order.
type ConversationMessagesResponse struct {
	ConversationID string        `json:"conversation_id"`
	Messages       []ChatMessage `json:"messages"`
}
