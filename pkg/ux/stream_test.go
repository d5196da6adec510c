// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamProcessor_ConcatenatesDeltas(t *testing.T) {
	stream := strings.Join([]string{
		`{"id":"1","model":"gpt-test","choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"id":"1","model":"gpt-test","choices":[{"delta":{"content":"lo"}}]}`,
	}, "\n")

	var out strings.Builder
	p := NewStreamProcessorWithWriter(&out)
	result, err := p.Process(strings.NewReader(stream))

	require.NoError(t, err)
	assert.Equal(t, "Hello", result.Answer)
	assert.Equal(t, "Hello", out.String())
	assert.Equal(t, "gpt-test", result.Model)
}

func TestStreamProcessor_CapturesHistoryMetadata(t *testing.T) {
	stream := `{"id":"1","choices":[{"delta":{"content":"hi"}}],"history_metadata":{"conversation_id":"conv-1","title":"Greetings"}}`

	p := NewStreamProcessorWithWriter(&strings.Builder{})
	result, err := p.Process(strings.NewReader(stream))

	require.NoError(t, err)
	require.NotNil(t, result.Metadata)
	assert.Equal(t, "conv-1", result.Metadata.ConversationID)
	assert.Equal(t, "Greetings", result.Metadata.Title)
}

// TestStreamProcessor_MidStreamError verifies the partial answer
// survives an in-stream error line.
func TestStreamProcessor_MidStreamError(t *testing.T) {
	stream := strings.Join([]string{
		`{"id":"1","choices":[{"delta":{"content":"partial"}}]}`,
		`{"error":"upstream timeout"}`,
	}, "\n")

	p := NewStreamProcessorWithWriter(&strings.Builder{})
	result, err := p.Process(strings.NewReader(stream))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream timeout")
	assert.Equal(t, "partial", result.Answer)
}

func TestStreamProcessor_BufferedReply(t *testing.T) {
	stream := `{"id":"1","choices":[{"messages":[{"role":"tool","content":"{}"},{"role":"assistant","content":"Done."}]}]}`

	var out strings.Builder
	p := NewStreamProcessorWithWriter(&out)
	result, err := p.Process(strings.NewReader(stream))

	require.NoError(t, err)
	assert.Equal(t, "Done.", result.Answer)
}

func TestStreamProcessor_MalformedLine(t *testing.T) {
	p := NewStreamProcessorWithWriter(&strings.Builder{})
	_, err := p.Process(strings.NewReader("this is not json\n"))
	assert.Error(t, err)
}

func TestStreamProcessor_SkipsBlankLines(t *testing.T) {
	stream := "\n\n" + `{"id":"1","choices":[{"delta":{"content":"ok"}}]}` + "\n\n"

	p := NewStreamProcessorWithWriter(&strings.Builder{})
	result, err := p.Process(strings.NewReader(stream))

	require.NoError(t, err)
	assert.Equal(t, "ok", result.Answer)
}
