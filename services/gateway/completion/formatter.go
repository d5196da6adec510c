// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package completion

import (
	"encoding/json"
	"time"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// FormatResponse maps a complete provider response into the wire
// envelope. Citations, when present, become a leading tool message so
// the UI renders sources before the answer.
func FormatResponse(resp *openai.ChatCompletionResponse, citations json.RawMessage, metadata *datatypes.HistoryMetadata, apimRequestID string) *datatypes.ResponseEnvelope {
	env := &datatypes.ResponseEnvelope{
		ID:              resp.ID,
		Model:           resp.Model,
		Created:         resp.Created,
		Object:          datatypes.ObjectChatCompletion,
		HistoryMetadata: metadata,
		APIMRequestID:   apimRequestID,
	}

	var messages []datatypes.ChatMessage
	if len(citations) > 0 {
		messages = append(messages, datatypes.ChatMessage{
			Role:    datatypes.RoleTool,
			Content: string(citations),
		})
	}
	if len(resp.Choices) > 0 {
		messages = append(messages, datatypes.ChatMessage{
			Role:    datatypes.RoleAssistant,
			Content: resp.Choices[0].Message.Content,
		})
	}
	env.Choices = []datatypes.Choice{{Messages: messages}}
	return env
}

// FormatChunk maps one streamed chunk into the wire envelope. The
// transform is chunk-local: nothing is buffered, so output lines track
// provider chunks one to one.
func FormatChunk(chunk openai.ChatCompletionStreamResponse, metadata *datatypes.HistoryMetadata, apimRequestID string) *datatypes.ResponseEnvelope {
	env := &datatypes.ResponseEnvelope{
		ID:              chunk.ID,
		Model:           chunk.Model,
		Created:         chunk.Created,
		Object:          datatypes.ObjectChatCompletionChunk,
		HistoryMetadata: metadata,
		APIMRequestID:   apimRequestID,
	}

	delta := &datatypes.Delta{}
	if len(chunk.Choices) > 0 {
		delta.Role = chunk.Choices[0].Delta.Role
		delta.Content = chunk.Choices[0].Delta.Content
	}
	env.Choices = []datatypes.Choice{{Delta: delta}}
	return env
}

// FormatCitationsChunk synthesizes the leading streamed line carrying
// retrieval citations, mirroring the tool message the buffered path
// emits. The id is minted locally because no provider chunk backs it.
func FormatCitationsChunk(model string, citations json.RawMessage, metadata *datatypes.HistoryMetadata, apimRequestID string) *datatypes.ResponseEnvelope {
	return &datatypes.ResponseEnvelope{
		ID:              uuid.NewString(),
		Model:           model,
		Created:         time.Now().Unix(),
		Object:          datatypes.ObjectChatCompletionChunk,
		HistoryMetadata: metadata,
		APIMRequestID:   apimRequestID,
		Choices: []datatypes.Choice{{Delta: &datatypes.Delta{
			Role:    datatypes.RoleTool,
			Content: string(citations),
		}}},
	}
}
