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
	"testing"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFormatResponse_Shape verifies the buffered envelope carries the
// provider identity fields and the assistant message.
func TestFormatResponse_Shape(t *testing.T) {
	resp := bufferedResponse("hello there")
	metadata := &datatypes.HistoryMetadata{ConversationID: "c1"}

	env := FormatResponse(resp, nil, metadata, "apim-9")
	assert.Equal(t, "resp-1", env.ID)
	assert.Equal(t, "gpt-test", env.Model)
	assert.Equal(t, int64(1700000000), env.Created)
	assert.Equal(t, datatypes.ObjectChatCompletion, env.Object)
	assert.Equal(t, "apim-9", env.APIMRequestID)
	require.Len(t, env.Choices, 1)
	require.Len(t, env.Choices[0].Messages, 1)
	assert.Equal(t, datatypes.RoleAssistant, env.Choices[0].Messages[0].Role)
	assert.Equal(t, "hello there", env.Choices[0].Messages[0].Content)
}

// TestFormatResponse_CitationsLeadTheMessages verifies citations become
// a tool message before the assistant answer.
func TestFormatResponse_CitationsLeadTheMessages(t *testing.T) {
	citations := json.RawMessage(`{"citations":[{"content":"x","filepath":"a.md"}]}`)
	env := FormatResponse(bufferedResponse("answer"), citations, nil, "")

	require.Len(t, env.Choices[0].Messages, 2)
	assert.Equal(t, datatypes.RoleTool, env.Choices[0].Messages[0].Role)
	assert.JSONEq(t, string(citations), env.Choices[0].Messages[0].Content)
	assert.Equal(t, datatypes.RoleAssistant, env.Choices[0].Messages[1].Role)
}

// TestFormatChunk_Delta verifies streamed chunks map to deltas and the
// envelope serializes as one self-contained JSON object.
func TestFormatChunk_Delta(t *testing.T) {
	chunk := openai.ChatCompletionStreamResponse{
		ID:      "chunk-7",
		Model:   "gpt-test",
		Created: 1700000001,
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{Role: "assistant", Content: "par"},
		}},
	}
	env := FormatChunk(chunk, nil, "apim-9")
	assert.Equal(t, datatypes.ObjectChatCompletionChunk, env.Object)
	require.Len(t, env.Choices, 1)
	require.NotNil(t, env.Choices[0].Delta)
	assert.Equal(t, "assistant", env.Choices[0].Delta.Role)
	assert.Equal(t, "par", env.Choices[0].Delta.Content)

	line, err := json.Marshal(env)
	require.NoError(t, err)
	var roundTrip map[string]any
	require.NoError(t, json.Unmarshal(line, &roundTrip))
	assert.Equal(t, "chunk-7", roundTrip["id"])
}

// TestFormatCitationsChunk verifies the synthesized leading line.
func TestFormatCitationsChunk(t *testing.T) {
	citations := json.RawMessage(`{"citations":[]}`)
	env := FormatCitationsChunk("gpt-test", citations, nil, "apim-1")
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, "gpt-test", env.Model)
	require.NotNil(t, env.Choices[0].Delta)
	assert.Equal(t, datatypes.RoleTool, env.Choices[0].Delta.Role)
	assert.JSONEq(t, string(citations), env.Choices[0].Delta.Content)
}
